package scheduler

import (
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// NotifyKey identifies a notification within an episode. The same kind may
// be sent again only for a new remediation attempt.
type NotifyKey struct {
	Kind    domain.EventKind
	Attempt int
}

// MonitorState is the failure state machine's memory. It is owned by the
// Loop and passed by pointer into the Machine; nothing else writes it.
type MonitorState struct {
	Phase               domain.Phase
	ConsecutiveFailures int
	// OfflineSince is set on the first failure of an episode and cleared
	// when the episode ends.
	OfflineSince        *time.Time
	EpisodeID           string
	RemediationAttempts int
	CooldownUntil       time.Time
	LastNotified        map[NotifyKey]time.Time

	LastSample       *domain.Sample
	LastAttempt      *domain.RemediationAttempt
	LastVerification []domain.AggregateStatus
}

func NewMonitorState() *MonitorState {
	return &MonitorState{
		Phase:        domain.PhaseHealthy,
		LastNotified: make(map[NotifyKey]time.Time),
	}
}

func (s *MonitorState) inEpisode() bool { return s.OfflineSince != nil }

func (s *MonitorState) openEpisode(now time.Time, id string) {
	t := now
	s.OfflineSince = &t
	s.EpisodeID = id
}

// closeEpisode returns to a clean Healthy state.
func (s *MonitorState) closeEpisode() {
	s.Phase = domain.PhaseHealthy
	s.ConsecutiveFailures = 0
	s.RemediationAttempts = 0
	s.OfflineSince = nil
	s.EpisodeID = ""
	s.CooldownUntil = time.Time{}
	s.LastVerification = nil
	s.LastNotified = make(map[NotifyKey]time.Time)
}

// Snapshot copies the state for readers outside the loop.
func (s *MonitorState) Snapshot(target string, now time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		Target:              target,
		Phase:               s.Phase,
		ConsecutiveFailures: s.ConsecutiveFailures,
		RemediationAttempts: s.RemediationAttempts,
		EpisodeID:           s.EpisodeID,
		UpdatedAt:           now,
	}
	if s.OfflineSince != nil {
		t := *s.OfflineSince
		snap.OfflineSince = &t
	}
	if !s.CooldownUntil.IsZero() {
		t := s.CooldownUntil
		snap.CooldownUntil = &t
	}
	if s.LastSample != nil {
		cp := copySample(*s.LastSample)
		snap.LastSample = &cp
		snap.Status = cp.Status()
	}
	if s.LastAttempt != nil {
		a := *s.LastAttempt
		snap.LastAttempt = &a
	}
	return snap
}

func copySample(s domain.Sample) domain.Sample {
	out := domain.Sample{At: s.At, Checks: make(map[domain.CheckName]domain.CheckResult, len(s.Checks))}
	for k, v := range s.Checks {
		out.Checks[k] = v
	}
	return out
}
