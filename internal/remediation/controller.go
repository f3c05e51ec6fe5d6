package remediation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// Controller issues restart commands through a PowerControl. It never
// retries; the caller decides whether another attempt is warranted.
type Controller struct {
	power   PowerControl
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	attempts atomic.Int64
}

func NewController(power PowerControl, timeout time.Duration, log *zap.Logger) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{power: power, timeout: timeout, log: log, now: time.Now}
}

// Restart issues exactly one restart request for target. The returned
// attempt is always populated; err is non-nil unless the outcome is
// OutcomeSuccess. Attempt.Number is the controller's lifetime count.
func (c *Controller) Restart(ctx context.Context, target string) (domain.RemediationAttempt, error) {
	n := c.attempts.Add(1)
	att := domain.RemediationAttempt{Number: int(n), At: c.now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.log.Info("restart_requested", zap.String("target", target), zap.Int64("attempt", n))
	err := c.power.Restart(ctx, target)
	att.Outcome = Classify(err)
	switch att.Outcome {
	case domain.OutcomeSuccess:
		att.Detail = "restart command accepted"
		c.log.Info("restart_accepted", zap.String("target", target), zap.Int64("attempt", n))
		return att, nil
	case domain.OutcomeFailure:
		att.Detail = err.Error()
		c.log.Error("restart_rejected", zap.String("target", target), zap.Error(err))
	default:
		att.Detail = err.Error()
		c.log.Error("restart_error", zap.String("target", target), zap.Error(err))
	}
	return att, fmt.Errorf("restart %s: %w", target, err)
}

// Verify checks that a restart would be accepted without performing one.
func (c *Controller) Verify(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.power.Verify(ctx, target); err != nil {
		return fmt.Errorf("verify restart capability for %s: %w", target, err)
	}
	return nil
}

// Pinned restarts a fixed address whatever target name it is handed. The
// Robot API knows servers by IP, so a host name target is pinned to the
// address it resolved to at startup.
type Pinned struct {
	*Controller
	IP string
}

func (p Pinned) Restart(ctx context.Context, _ string) (domain.RemediationAttempt, error) {
	return p.Controller.Restart(ctx, p.IP)
}

// Attempts is the number of restart calls made since start.
func (c *Controller) Attempts() int {
	return int(c.attempts.Load())
}

// Classify maps a PowerControl error onto a remediation outcome: nil is a
// success, a rejection by a reachable API is a failure, anything else
// (transport errors, timeouts, 5xx) is an error.
func Classify(err error) domain.Outcome {
	if err == nil {
		return domain.OutcomeSuccess
	}
	if errors.Is(err, ErrServerNotFound) {
		return domain.OutcomeFailure
	}
	var ae *APIError
	if errors.As(err, &ae) && ae.Rejected() {
		return domain.OutcomeFailure
	}
	return domain.OutcomeError
}
