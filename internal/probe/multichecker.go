package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// MultiChecker runs every checker concurrently and blocks until each one has
// returned or hit its own timeout.
type MultiChecker struct {
	Checkers []Checker
	Timeout  time.Duration
	Now      func() time.Time
}

func NewMultiChecker(timeout time.Duration, checkers ...Checker) *MultiChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MultiChecker{Checkers: checkers, Timeout: timeout, Now: time.Now}
}

// Run checks host once with every checker. It never returns an error: a
// checker that times out, fails or panics is recorded as Success=false.
func (m *MultiChecker) Run(ctx context.Context, host string) domain.Sample {
	results := make(map[domain.CheckName]domain.CheckResult, len(m.Checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range m.Checkers {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.Timeout)
			defer cancel()

			r := runBounded(cctx, c, host)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}()
	}
	wg.Wait()

	return domain.Sample{At: m.Now().UTC(), Checks: results}
}

// runBounded returns when the checker does or when ctx expires, whichever
// comes first. A checker that ignores ctx is left to finish in the
// background; its late result is discarded.
func runBounded(ctx context.Context, c Checker, host string) domain.CheckResult {
	start := time.Now()
	out := make(chan domain.CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- failed(c.Name(), start, fmt.Sprintf("panic: %v", r))
			}
		}()
		r := c.Check(ctx, host)
		r.Name = c.Name()
		out <- r
	}()

	select {
	case r := <-out:
		return r
	case <-ctx.Done():
		return failed(c.Name(), start, "timeout: "+ctx.Err().Error())
	}
}
