package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// Sampler takes one round of checks against the target.
type Sampler interface {
	Run(ctx context.Context, host string) domain.Sample
}

// Remediator issues a single restart request.
type Remediator interface {
	Restart(ctx context.Context, target string) (domain.RemediationAttempt, error)
}

// Notifier delivers an event to humans. Errors are logged, never acted on.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

type MachineConfig struct {
	Target                 string
	VerificationThreshold  int
	VerificationSamples    int
	VerificationInterval   time.Duration
	RecoveryWait           time.Duration
	MaxRemediationAttempts int // 0 disables the limit
}

// Machine decides, tick by tick, whether the target is down for real and
// when to restart it. It holds no state of its own; everything lives in the
// MonitorState passed in by the caller.
type Machine struct {
	cfg        MachineConfig
	sampler    Sampler
	remediator Remediator
	notifier   Notifier
	log        *zap.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
}

func NewMachine(cfg MachineConfig, sampler Sampler, remediator Remediator, notifier Notifier, log *zap.Logger) *Machine {
	if cfg.VerificationThreshold < 1 {
		cfg.VerificationThreshold = 1
	}
	if cfg.VerificationSamples < 1 {
		cfg.VerificationSamples = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		cfg:        cfg,
		sampler:    sampler,
		remediator: remediator,
		notifier:   notifier,
		log:        log,
		Now:        time.Now,
		Sleep:      sleepCtx,
		NewID:      uuid.NewString,
	}
}

// Observe applies one tick's sample to st and returns the events that should
// be announced. It performs no I/O. When it leaves st in PhaseVerifying the
// caller must run the verification gate (Tick does).
func (m *Machine) Observe(st *MonitorState, s domain.Sample) []domain.Event {
	now := m.Now().UTC()
	cp := copySample(s)
	st.LastSample = &cp
	status := s.Status()

	var out []domain.Event
	emit := func(ev domain.Event, attempt int) {
		if m.record(st, ev, attempt) {
			out = append(out, ev)
		}
	}

	if st.Phase == domain.PhaseCooldown {
		if now.Before(st.CooldownUntil) {
			// Waiting for the restart to take effect: observe only.
			if status == domain.Online {
				st.ConsecutiveFailures = 0
			} else {
				st.ConsecutiveFailures++
			}
			return nil
		}
		st.CooldownUntil = time.Time{}
		if status == domain.Online {
			m.setPhase(st, domain.PhaseHealthy)
			st.ConsecutiveFailures = 0
			emit(m.event(st, domain.EventRecovered, now), 0)
			st.closeEpisode()
			return out
		}
		st.ConsecutiveFailures++
		if m.exhausted(st) {
			m.setPhase(st, domain.PhaseDegraded)
			emit(m.event(st, domain.EventStillOffline, now), st.RemediationAttempts)
			emit(m.limitEvent(st, now), m.cfg.MaxRemediationAttempts+1)
			return out
		}
		m.setPhase(st, domain.PhaseVerifying)
		emit(m.event(st, domain.EventStillOffline, now), st.RemediationAttempts)
		return out
	}

	// Healthy and Degraded. Verifying or Remediating only show up here if
	// the previous tick was cancelled mid-gate, and are handled the same way.
	if status == domain.Online {
		if st.inEpisode() {
			m.setPhase(st, domain.PhaseHealthy)
			st.ConsecutiveFailures = 0
			emit(m.event(st, domain.EventRecovered, now), 0)
		}
		m.setPhase(st, domain.PhaseHealthy)
		st.closeEpisode()
		return out
	}

	st.ConsecutiveFailures++
	first := !st.inEpisode()
	if first {
		st.openEpisode(now, m.NewID())
	}
	// With the restart budget spent there is nothing to verify for; stay
	// Degraded and keep ticking on schedule until the target comes back.
	limited := st.ConsecutiveFailures >= m.cfg.VerificationThreshold && m.exhausted(st)
	if st.ConsecutiveFailures >= m.cfg.VerificationThreshold && !limited {
		m.setPhase(st, domain.PhaseVerifying)
	} else {
		m.setPhase(st, domain.PhaseDegraded)
	}
	if first {
		emit(m.event(st, domain.EventOffline, now), 0)
	}
	if limited {
		emit(m.limitEvent(st, now), m.cfg.MaxRemediationAttempts+1)
	}
	return out
}

// Tick is Observe followed, when Observe entered Verifying, by the
// verification gate and any remediation it triggers. Every event returned
// has already been handed to the notifier.
func (m *Machine) Tick(ctx context.Context, st *MonitorState, s domain.Sample) []domain.Event {
	evs := m.Observe(st, s)
	m.send(ctx, evs)
	if st.Phase != domain.PhaseVerifying {
		return evs
	}
	return append(evs, m.verify(ctx, st)...)
}

// verify takes VerificationSamples spaced samples. Any Online sample is a
// false alarm; all Offline moves on to remediation.
func (m *Machine) verify(ctx context.Context, st *MonitorState) []domain.Event {
	results := make([]domain.AggregateStatus, 0, m.cfg.VerificationSamples)
	m.log.Info("verification_started",
		zap.String("target", m.cfg.Target),
		zap.Int("samples", m.cfg.VerificationSamples),
		zap.Duration("interval", m.cfg.VerificationInterval),
	)

	for i := 1; i <= m.cfg.VerificationSamples; i++ {
		if err := m.Sleep(ctx, m.cfg.VerificationInterval); err != nil {
			m.log.Warn("verification_aborted", zap.Int("sample", i), zap.Error(err))
			st.LastVerification = results
			return nil
		}
		s := m.sampler.Run(ctx, m.cfg.Target)
		cp := copySample(s)
		st.LastSample = &cp
		status := s.Status()
		results = append(results, status)
		st.LastVerification = results

		m.log.Info("verification_sample",
			zap.Int("sample", i),
			zap.Int("of", m.cfg.VerificationSamples),
			zap.String("status", string(status)),
			zap.Any("checks", s.CheckMap()),
		)

		if status == domain.Online {
			m.setPhase(st, domain.PhaseHealthy)
			st.ConsecutiveFailures = 0
			ev := m.event(st, domain.EventFalseAlarm, m.Now().UTC())
			var out []domain.Event
			if m.record(st, ev, st.RemediationAttempts) {
				out = append(out, ev)
			}
			st.closeEpisode()
			m.send(ctx, out)
			return out
		}
	}

	m.setPhase(st, domain.PhaseRemediating)
	return m.remediate(ctx, st)
}

func (m *Machine) remediate(ctx context.Context, st *MonitorState) []domain.Event {
	var out []domain.Event
	announce := func(ev domain.Event, attempt int) {
		if m.record(st, ev, attempt) {
			out = append(out, ev)
			m.send(ctx, []domain.Event{ev})
		}
	}

	if m.exhausted(st) {
		m.fail(st)
		announce(m.limitEvent(st, m.Now().UTC()), m.cfg.MaxRemediationAttempts+1)
		return out
	}

	st.RemediationAttempts++
	n := st.RemediationAttempts
	announce(m.event(st, domain.EventRemediationStarted, m.Now().UTC()), n)

	att, err := m.remediator.Restart(ctx, m.cfg.Target)
	att.Number = n
	if att.At.IsZero() {
		att.At = m.Now().UTC()
	}
	if err != nil && att.Outcome == domain.OutcomeSuccess {
		att.Outcome = domain.OutcomeError
	}
	st.LastAttempt = &att

	if att.Outcome == domain.OutcomeSuccess {
		now := m.Now().UTC()
		st.CooldownUntil = now.Add(m.cfg.RecoveryWait)
		m.setPhase(st, domain.PhaseCooldown)
		ev := m.event(st, domain.EventRemediationSucceeded, now)
		ev.Attempt = &att
		announce(ev, n)
		return out
	}

	m.fail(st)
	ev := m.event(st, domain.EventRemediationFailed, m.Now().UTC())
	ev.Attempt = &att
	ev.Reason = att.Detail
	if err != nil {
		ev.Reason = err.Error()
	}
	announce(ev, n)
	return out
}

// fail returns to Healthy one failure short of the threshold so the next
// Offline tick goes straight back to verification. The episode stays open.
func (m *Machine) fail(st *MonitorState) {
	m.setPhase(st, domain.PhaseHealthy)
	st.ConsecutiveFailures = m.cfg.VerificationThreshold - 1
}

// exhausted reports whether the episode has used every allowed restart.
func (m *Machine) exhausted(st *MonitorState) bool {
	limit := m.cfg.MaxRemediationAttempts
	return limit > 0 && st.RemediationAttempts >= limit
}

// limitEvent builds the remediation_failed event for a spent restart budget.
// Callers dedup it on attempt limit+1 so it is announced once per episode.
func (m *Machine) limitEvent(st *MonitorState, now time.Time) domain.Event {
	m.log.Error("remediation_limit_reached",
		zap.String("target", m.cfg.Target),
		zap.Int("attempts", st.RemediationAttempts),
	)
	ev := m.event(st, domain.EventRemediationFailed, now)
	ev.Reason = fmt.Sprintf("automatic restart limit reached (%d attempts)", m.cfg.MaxRemediationAttempts)
	return ev
}

// record marks ev as notified and reports whether it is new.
func (m *Machine) record(st *MonitorState, ev domain.Event, attempt int) bool {
	if st.LastNotified == nil {
		st.LastNotified = make(map[NotifyKey]time.Time)
	}
	key := NotifyKey{Kind: ev.Kind, Attempt: attempt}
	if _, dup := st.LastNotified[key]; dup {
		m.log.Debug("notification_suppressed", zap.String("event", string(ev.Kind)), zap.Int("attempt", attempt))
		return false
	}
	st.LastNotified[key] = ev.At
	return true
}

func (m *Machine) send(ctx context.Context, evs []domain.Event) {
	if m.notifier == nil {
		return
	}
	for _, ev := range evs {
		if err := m.notifier.Notify(ctx, ev); err != nil {
			m.log.Warn("notify_error", zap.String("event", string(ev.Kind)), zap.Error(err))
		}
	}
}

func (m *Machine) event(st *MonitorState, kind domain.EventKind, now time.Time) domain.Event {
	ev := domain.Event{
		ID:                  m.NewID(),
		Kind:                kind,
		Phase:               st.Phase,
		Target:              m.cfg.Target,
		EpisodeID:           st.EpisodeID,
		At:                  now,
		ConsecutiveFailures: st.ConsecutiveFailures,
		RemediationAttempts: st.RemediationAttempts,
	}
	if st.OfflineSince != nil {
		t := *st.OfflineSince
		ev.OfflineSince = &t
	}
	if st.LastSample != nil {
		cp := copySample(*st.LastSample)
		ev.Sample = &cp
	}
	if len(st.LastVerification) > 0 && kind != domain.EventOffline && kind != domain.EventRecovered {
		ev.Verification = append([]domain.AggregateStatus(nil), st.LastVerification...)
	}
	return ev
}

func (m *Machine) setPhase(st *MonitorState, p domain.Phase) {
	if st.Phase == p {
		return
	}
	m.log.Info("phase_change",
		zap.String("from", string(st.Phase)),
		zap.String("to", string(p)),
		zap.Int("consecutive_failures", st.ConsecutiveFailures),
	)
	st.Phase = p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
