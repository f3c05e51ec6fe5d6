package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
	"github.com/AidanWarner97/server-watcher/internal/repo"
)

// Loop drives the machine on a schedule. It owns the MonitorState; the
// journal receives copies for readers.
type Loop struct {
	Logger   *zap.Logger
	Target   string
	Sampler  Sampler
	Machine  *Machine
	Journal  repo.Journal
	Schedule cron.Schedule
	Now      func() time.Time

	state *MonitorState
}

func NewLoop(
	logger *zap.Logger,
	target string,
	sampler Sampler,
	machine *Machine,
	journal repo.Journal,
	schedule cron.Schedule,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == nil {
		schedule = cron.Every(time.Minute)
	}
	return &Loop{
		Logger:   logger,
		Target:   target,
		Sampler:  sampler,
		Machine:  machine,
		Journal:  journal,
		Schedule: schedule,
		Now:      time.Now,
		state:    NewMonitorState(),
	}
}

// Run ticks once immediately, then on every schedule activation, until ctx
// is cancelled. A tick that overruns the next activation causes that
// activation to be skipped, never run concurrently.
func (l *Loop) Run(ctx context.Context) {
	l.Logger.Info("monitor_started", zap.String("target", l.Target))

	// immediate pass
	l.tick(ctx)

	c := cron.New(
		cron.WithLogger(cronLogger{l.Logger.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{l.Logger.Sugar()})),
	)
	c.Schedule(l.Schedule, cron.FuncJob(func() { l.tick(ctx) }))
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	l.Logger.Info("monitor_stopped", zap.String("target", l.Target))
}

// tick runs one probe and feeds it through the machine. A panic anywhere in
// the tick is logged and contained.
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.Logger.Error("tick_panic",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if ctx.Err() != nil {
		return
	}

	sample := l.Sampler.Run(ctx, l.Target)
	evs := l.Machine.Tick(ctx, l.state, sample)

	// Verification may have sampled again; report the last verdict so it
	// agrees with the counters and phase.
	final := sample
	if l.state.LastSample != nil {
		final = *l.state.LastSample
	}
	status := final.Status()

	fields := []zap.Field{
		zap.Any("checks", final.CheckMap()),
		zap.Int("consecutive_failures", l.state.ConsecutiveFailures),
		zap.String("phase", string(l.state.Phase)),
	}
	summary := string(status) + " " + l.Target
	if status == domain.Online {
		l.Logger.Info(summary, fields...)
	} else {
		l.Logger.Warn(summary, fields...)
	}

	l.publish(ctx, sample, evs)
}

func (l *Loop) publish(ctx context.Context, sample domain.Sample, evs []domain.Event) {
	if l.Journal == nil {
		return
	}
	if err := l.Journal.AppendSample(ctx, sample); err != nil {
		l.Logger.Warn("journal_sample_error", zap.Error(err))
	}
	for _, ev := range evs {
		if err := l.Journal.AppendEvent(ctx, ev); err != nil {
			l.Logger.Warn("journal_event_error", zap.String("event", string(ev.Kind)), zap.Error(err))
		}
	}
	if err := l.Journal.PutSnapshot(ctx, l.state.Snapshot(l.Target, l.Now().UTC())); err != nil {
		l.Logger.Warn("journal_snapshot_error", zap.Error(err))
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.s.Debugw("cron_"+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
