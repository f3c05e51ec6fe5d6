package repo

import (
	"context"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// Ports (interfaces) for the monitor journal. The loop is the only writer;
// the status API only reads.

type SnapshotStore interface {
	PutSnapshot(ctx context.Context, s domain.Snapshot) error
	// Snapshot returns nil, nil before the first tick.
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

type SampleStore interface {
	AppendSample(ctx context.Context, s domain.Sample) error
	// RecentSamples returns up to limit samples, newest first.
	RecentSamples(ctx context.Context, limit int) ([]domain.Sample, error)
}

type EventStore interface {
	AppendEvent(ctx context.Context, e domain.Event) error
	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]domain.Event, error)
}

// Journal is everything the loop publishes after a tick.
type Journal interface {
	SnapshotStore
	SampleStore
	EventStore
}
