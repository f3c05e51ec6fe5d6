package domain

import (
	"sort"
	"time"
)

// CheckName identifies one of the reachability checks run every tick.
type CheckName string

const (
	CheckSSH   CheckName = "ssh"
	CheckHTTP  CheckName = "http"
	CheckHTTPS CheckName = "https"
	CheckPing  CheckName = "ping"
)

// AllChecks is the fixed set of checks, in reporting order.
var AllChecks = []CheckName{CheckSSH, CheckHTTP, CheckHTTPS, CheckPing}

// CheckResult is the outcome of one check. Values are never mutated after
// the checker returns them.
type CheckResult struct {
	Name    CheckName     `json:"name"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency_ns"`
	Message string        `json:"message,omitempty"`
}

// AggregateStatus is the single verdict for one round of checks.
type AggregateStatus string

const (
	Online  AggregateStatus = "ONLINE"
	Offline AggregateStatus = "OFFLINE"
)

// Aggregate returns Offline only when every check failed. One success is
// proof of life. An empty set proves nothing and counts as Offline.
func Aggregate(results map[CheckName]CheckResult) AggregateStatus {
	for _, r := range results {
		if r.Success {
			return Online
		}
	}
	return Offline
}

// Sample is one round of checks taken at a point in time.
type Sample struct {
	At     time.Time                 `json:"at"`
	Checks map[CheckName]CheckResult `json:"checks"`
}

func (s Sample) Status() AggregateStatus {
	return Aggregate(s.Checks)
}

// CheckMap flattens the sample to name -> success, sorted by name when
// encoded. Used for log lines.
func (s Sample) CheckMap() map[string]bool {
	out := make(map[string]bool, len(s.Checks))
	for name, r := range s.Checks {
		out[string(name)] = r.Success
	}
	return out
}

// Names returns the check names present in the sample, sorted.
func (s Sample) Names() []CheckName {
	out := make([]CheckName, 0, len(s.Checks))
	for name := range s.Checks {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Phase is the position of the failure state machine.
type Phase string

const (
	PhaseHealthy     Phase = "healthy"
	PhaseDegraded    Phase = "degraded"
	PhaseVerifying   Phase = "verifying"
	PhaseRemediating Phase = "remediating"
	PhaseCooldown    Phase = "cooldown"
)

// Outcome classifies a remediation call.
type Outcome string

const (
	// OutcomeSuccess: the API accepted the restart command.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure: the API was reachable but rejected the command.
	OutcomeFailure Outcome = "failure"
	// OutcomeError: the API could not be reached or timed out.
	OutcomeError Outcome = "error"
)

// RemediationAttempt records one restart call within the current episode.
type RemediationAttempt struct {
	Number  int       `json:"number"`
	At      time.Time `json:"at"`
	Outcome Outcome   `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

// EventKind names a state-machine transition worth telling a human about.
type EventKind string

const (
	EventOffline              EventKind = "offline"
	EventFalseAlarm           EventKind = "false_alarm"
	EventRemediationStarted   EventKind = "remediation_started"
	EventRemediationSucceeded EventKind = "remediation_succeeded"
	EventRemediationFailed    EventKind = "remediation_failed"
	EventStillOffline         EventKind = "still_offline"
	EventRecovered            EventKind = "recovered"
)

// Event carries everything a notification needs to describe a transition.
type Event struct {
	ID                  string              `json:"id"`
	Kind                EventKind           `json:"kind"`
	Phase               Phase               `json:"phase"`
	Target              string              `json:"target"`
	EpisodeID           string              `json:"episode_id,omitempty"`
	At                  time.Time           `json:"at"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	RemediationAttempts int                 `json:"remediation_attempts"`
	OfflineSince        *time.Time          `json:"offline_since,omitempty"`
	Sample              *Sample             `json:"sample,omitempty"`
	Attempt             *RemediationAttempt `json:"attempt,omitempty"`
	Verification        []AggregateStatus   `json:"verification,omitempty"`
	Reason              string              `json:"reason,omitempty"`
}

// OfflineFor returns how long the target has been offline at the event time,
// or zero when no episode is open.
func (e Event) OfflineFor() time.Duration {
	if e.OfflineSince == nil || e.OfflineSince.IsZero() {
		return 0
	}
	return e.At.Sub(*e.OfflineSince)
}

// Snapshot is a read-only copy of the monitor's state, published after every
// tick for status readers.
type Snapshot struct {
	Target              string              `json:"target"`
	Phase               Phase               `json:"phase"`
	Status              AggregateStatus     `json:"status,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	RemediationAttempts int                 `json:"remediation_attempts"`
	EpisodeID           string              `json:"episode_id,omitempty"`
	OfflineSince        *time.Time          `json:"offline_since,omitempty"`
	CooldownUntil       *time.Time          `json:"cooldown_until,omitempty"`
	LastSample          *Sample             `json:"last_sample,omitempty"`
	LastAttempt         *RemediationAttempt `json:"last_attempt,omitempty"`
	UpdatedAt           time.Time           `json:"updated_at"`
}
