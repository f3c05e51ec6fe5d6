package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

type DispatcherConfig struct {
	Enabled bool
	Timeout time.Duration
	// CheckInterval and RobotUser only appear in rendered text.
	CheckInterval time.Duration
	RobotUser     string
	// Live receives every message whether or not Enabled is set. It backs
	// the status API's event feed.
	Live Sink
}

// Dispatcher turns state-machine events into messages and hands them to a
// sink. Delivery failures are logged and never reported to the caller.
type Dispatcher struct {
	sink Sink
	cfg  DispatcherConfig
	log  *zap.Logger
}

func NewDispatcher(sink Sink, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sink: sink, cfg: cfg, log: log}
}

// Notify renders ev and delivers it. The returned error is always nil; the
// signature lets callers treat the dispatcher like any other collaborator.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.Event) error {
	m := d.Render(ev)
	d.log.Info("notification",
		zap.String("event", string(ev.Kind)),
		zap.String("title", m.Title),
		zap.String("target", ev.Target),
		zap.String("episode_id", ev.EpisodeID),
	)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	if d.cfg.Live != nil {
		if err := d.cfg.Live.Send(ctx, m); err != nil {
			d.log.Warn("live_feed_failed", zap.String("event", string(ev.Kind)), zap.Error(err))
		}
	}
	if !d.cfg.Enabled || d.sink == nil {
		d.log.Debug("notification_log_only", zap.String("body", m.Body))
		return nil
	}
	if err := d.sink.Send(ctx, m); err != nil {
		d.log.Error("notification_failed", zap.String("event", string(ev.Kind)), zap.Error(err))
		return nil
	}
	d.log.Info("notification_sent", zap.String("event", string(ev.Kind)))
	return nil
}

// Render builds the message for ev.
func (d *Dispatcher) Render(ev domain.Event) Message {
	m := Message{
		At:      ev.At,
		EventID: ev.ID,
		Fields:  []Field{{Name: "Server IP", Value: ev.Target, Inline: true}},
	}
	checks := ""
	if ev.Sample != nil {
		checks = formatChecks(*ev.Sample)
	}

	var b strings.Builder
	switch ev.Kind {
	case domain.EventOffline:
		m.Title = "ALERT: Server Offline Detected"
		m.Severity = SeverityOffline
		fmt.Fprintf(&b, "Server %s is not responding!\n", ev.Target)
		fmt.Fprintf(&b, "Check results: %s\n", checks)
		fmt.Fprintf(&b, "Consecutive failures: %d\n", ev.ConsecutiveFailures)
		b.WriteString("Verification will start if the failures continue.")
	case domain.EventFalseAlarm:
		m.Title = "INFO: False Alarm - Server Responsive"
		m.Severity = SeverityInfo
		fmt.Fprintf(&b, "Server %s responded during verification.\n", ev.Target)
		fmt.Fprintf(&b, "Verification results: %s\n", formatVerification(ev.Verification))
		b.WriteString("No restart needed. Failure counter reset.")
	case domain.EventRemediationStarted:
		m.Title = "CRITICAL: Server Restart Required"
		m.Severity = SeverityOffline
		fmt.Fprintf(&b, "Server %s failed every verification check.\n", ev.Target)
		fmt.Fprintf(&b, "Verification results: %s\n", formatVerification(ev.Verification))
		fmt.Fprintf(&b, "Offline for: %s\n", formatDuration(ev.OfflineFor()))
		fmt.Fprintf(&b, "Attempting automatic restart (attempt #%d).", ev.RemediationAttempts)
	case domain.EventRemediationSucceeded:
		m.Title = "Server Restart Initiated"
		m.Severity = SeverityRestart
		fmt.Fprintf(&b, "Server %s restart initiated.\n", ev.Target)
		if ev.Attempt != nil {
			fmt.Fprintf(&b, "Details: %s (attempt #%d)\n", ev.Attempt.Detail, ev.RemediationAttempts)
		}
		b.WriteString("Waiting for the server to come back...")
	case domain.EventRemediationFailed:
		m.Title = "URGENT: Manual Server Restart Required"
		m.Severity = SeverityOffline
		fmt.Fprintf(&b, "Server %s is offline and automatic restart failed.\n", ev.Target)
		if ev.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", ev.Reason)
		}
		b.WriteString("\n")
		b.WriteString(d.manualInstructions(ev.Target))
	case domain.EventStillOffline:
		m.Title = "WARNING: Server Still Offline After Restart"
		m.Severity = SeverityOffline
		fmt.Fprintf(&b, "Server %s did not come back after restart attempt #%d.\n", ev.Target, ev.RemediationAttempts)
		fmt.Fprintf(&b, "Check results: %s\n", checks)
		fmt.Fprintf(&b, "Offline for: %s\n", formatDuration(ev.OfflineFor()))
		b.WriteString("Verifying again before the next attempt.")
	case domain.EventRecovered:
		m.Title = "Server Recovery Detected"
		m.Severity = SeverityOnline
		fmt.Fprintf(&b, "Server %s is back online!\n", ev.Target)
		fmt.Fprintf(&b, "Offline duration: %s\n", formatDuration(ev.OfflineFor()))
		fmt.Fprintf(&b, "Check results: %s\n", checks)
		b.WriteString("Resuming normal monitoring...")
	default:
		m.Title = "Server Monitor: " + string(ev.Kind)
		m.Severity = SeverityInfo
		fmt.Fprintf(&b, "Server %s: %s", ev.Target, ev.Kind)
	}
	m.Body = b.String()
	return m
}

func (d *Dispatcher) manualInstructions(target string) string {
	user := d.cfg.RobotUser
	if user == "" {
		user = "<robot user>"
	}
	interval := "the next scheduled check"
	if d.cfg.CheckInterval > 0 {
		interval = "every " + d.cfg.CheckInterval.String()
	}
	return fmt.Sprintf(`MANUAL SERVER RESTART REQUIRED

1. Hetzner Robot web interface:
   - https://robot.hetzner.com/ (login: %s)
   - Open server %s
   - Reset -> Hardware Reset
2. Hetzner support, quoting server IP %s.
3. Out-of-band management (IPMI/iDRAC) if available.

Monitoring continues; recovery is checked %s.`, user, target, target, interval)
}

func formatChecks(s domain.Sample) string {
	parts := make([]string, 0, len(s.Checks))
	for _, n := range s.Names() {
		st := "fail"
		if s.Checks[n].Success {
			st = "ok"
		}
		parts = append(parts, string(n)+"="+st)
	}
	return strings.Join(parts, " ")
}

func formatVerification(v []domain.AggregateStatus) string {
	if len(v) == 0 {
		return "n/a"
	}
	parts := make([]string, len(v))
	for i, s := range v {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	return d.Round(time.Second).String()
}
