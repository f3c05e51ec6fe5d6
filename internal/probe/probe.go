package probe

import (
	"context"
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// Checker performs one kind of reachability check against a host.
//
// Implementations must honour ctx: the probe gives every checker its own
// deadline and records a failure if the checker has not returned by then.
type Checker interface {
	Name() domain.CheckName
	Check(ctx context.Context, host string) domain.CheckResult
}

// Ports are the TCP ports probed by the ssh, http and https checkers.
type Ports struct {
	SSH   int
	HTTP  int
	HTTPS int
}

// Standard returns the four checkers that make up one tick.
func Standard(ports Ports, timeout time.Duration) []Checker {
	return []Checker{
		NewSSHChecker(ports.SSH, timeout),
		NewHTTPChecker(ports.HTTP, timeout),
		NewHTTPSChecker(ports.HTTPS, timeout),
		NewPingChecker(),
	}
}

func failed(name domain.CheckName, start time.Time, msg string) domain.CheckResult {
	return domain.CheckResult{
		Name:    name,
		Success: false,
		Latency: time.Since(start),
		Message: msg,
	}
}
