package memory

import (
	"context"
	"testing"
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

func sampleAt(min int) domain.Sample {
	return domain.Sample{
		At:     time.Date(2025, 1, 1, 0, min, 0, 0, time.UTC),
		Checks: map[domain.CheckName]domain.CheckResult{domain.CheckPing: {Name: domain.CheckPing, Success: min%2 == 0}},
	}
}

func TestMemoryStore_SnapshotBeforeFirstTick(t *testing.T) {
	s := New(0, 0)
	snap, err := s.Snapshot(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("want nil, nil got %+v, %v", snap, err)
	}
}

func TestMemoryStore_SnapshotIsCopied(t *testing.T) {
	ctx := context.Background()
	s := New(0, 0)
	if err := s.PutSnapshot(ctx, domain.Snapshot{Target: "h", Phase: domain.PhaseDegraded, ConsecutiveFailures: 1}); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	got, _ := s.Snapshot(ctx)
	got.Phase = domain.PhaseHealthy

	again, _ := s.Snapshot(ctx)
	if again.Phase != domain.PhaseDegraded || again.ConsecutiveFailures != 1 {
		t.Fatalf("stored snapshot mutated through returned copy: %+v", again)
	}
}

func TestMemoryStore_SamplesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(10, 0)
	for i := 0; i < 3; i++ {
		if err := s.AppendSample(ctx, sampleAt(i)); err != nil {
			t.Fatalf("AppendSample: %v", err)
		}
	}
	got, err := s.RecentSamples(ctx, 0)
	if err != nil {
		t.Fatalf("RecentSamples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 samples, got %d", len(got))
	}
	if got[0].At.Minute() != 2 || got[2].At.Minute() != 0 {
		t.Fatalf("wrong order: %v %v", got[0].At, got[2].At)
	}

	two, _ := s.RecentSamples(ctx, 2)
	if len(two) != 2 || two[0].At.Minute() != 2 {
		t.Fatalf("limit not honoured: %+v", two)
	}
}

func TestMemoryStore_RingOverwritesOldest(t *testing.T) {
	ctx := context.Background()
	s := New(3, 2)
	for i := 0; i < 5; i++ {
		_ = s.AppendSample(ctx, sampleAt(i))
		_ = s.AppendEvent(ctx, domain.Event{ID: string(rune('a' + i)), Kind: domain.EventOffline})
	}
	got, _ := s.RecentSamples(ctx, 100)
	if len(got) != 3 {
		t.Fatalf("want capacity 3, got %d", len(got))
	}
	if got[0].At.Minute() != 4 || got[2].At.Minute() != 2 {
		t.Fatalf("want minutes 4..2, got %v..%v", got[0].At.Minute(), got[2].At.Minute())
	}

	evs, _ := s.RecentEvents(ctx, 0)
	if len(evs) != 2 || evs[0].ID != "e" || evs[1].ID != "d" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}
