package memory

import (
	"context"
	"sync"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

const (
	DefaultSampleCap = 1440 // one day at the default interval
	DefaultEventCap  = 256
)

// Store keeps the latest snapshot and bounded histories of samples and
// events. Nothing survives a restart.
type Store struct {
	mu       sync.RWMutex
	snapshot *domain.Snapshot
	samples  ring[domain.Sample]
	events   ring[domain.Event]
}

// New returns a store keeping at most sampleCap samples and eventCap events.
// Non-positive capacities select the defaults.
func New(sampleCap, eventCap int) *Store {
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	if eventCap <= 0 {
		eventCap = DefaultEventCap
	}
	return &Store{
		samples: newRing[domain.Sample](sampleCap),
		events:  newRing[domain.Event](eventCap),
	}
}

func (m *Store) PutSnapshot(ctx context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &s
	return nil
}

func (m *Store) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return nil, nil
	}
	cp := *m.snapshot
	return &cp, nil
}

func (m *Store) AppendSample(ctx context.Context, s domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples.push(s)
	return nil
}

func (m *Store) RecentSamples(ctx context.Context, limit int) ([]domain.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.samples.newest(limit), nil
}

func (m *Store) AppendEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.push(e)
	return nil
}

func (m *Store) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events.newest(limit), nil
}

// ring is a fixed-capacity buffer that overwrites its oldest entry.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](n int) ring[T] {
	return ring[T]{buf: make([]T, n)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// newest copies up to limit entries, newest first. limit <= 0 means all.
func (r *ring[T]) newest(limit int) []T {
	n := r.len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
