package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/config"
	"github.com/AidanWarner97/server-watcher/internal/httpapi"
	apimw "github.com/AidanWarner97/server-watcher/internal/httpapi/middleware"
	"github.com/AidanWarner97/server-watcher/internal/logging"
	"github.com/AidanWarner97/server-watcher/internal/notify"
	"github.com/AidanWarner97/server-watcher/internal/probe"
	"github.com/AidanWarner97/server-watcher/internal/remediation"
	"github.com/AidanWarner97/server-watcher/internal/repo/memory"
	"github.com/AidanWarner97/server-watcher/internal/scheduler"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *cfgPath); err != nil {
		log.Fatalf("server-watcher: %v", err)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := probe.Resolve(ctx, cfg.ServerIdentifier)
	if err != nil {
		logger.Error("target_unusable",
			zap.String("target", target.Host),
			zap.String("class", target.Class),
			zap.String("resolver_error", target.ResolverError),
		)
		return err
	}
	addr := target.IPs[0].String()
	logger.Info("target_resolved",
		zap.String("target", target.Host),
		zap.String("class", target.Class),
		zap.String("address", addr),
	)

	sampler := probe.NewMultiChecker(cfg.CheckTimeout(), probe.Standard(probe.Ports{
		SSH:   cfg.Ports.SSH,
		HTTP:  cfg.Ports.HTTP,
		HTTPS: cfg.Ports.HTTPS,
	}, cfg.CheckTimeout())...)

	robot := remediation.NewRobotClient(
		cfg.Remediation.BaseURL,
		cfg.RemediationCredentials.Username,
		cfg.RemediationCredentials.Password,
		cfg.Remediation.ResetType,
		cfg.RemediationTimeout(),
	)
	ctrl := remediation.NewController(robot, cfg.RemediationTimeout(), logger.Named("remediation"))
	if err := ctrl.Verify(ctx, addr); err != nil {
		// Monitoring still runs; restarts will fail and ask for manual action.
		logger.Warn("remediation_unverified", zap.Error(err))
	} else {
		logger.Info("remediation_verified", zap.String("reset_type", robot.ResetType))
	}

	hub := notify.NewHub(logger.Named("hub"))
	defer hub.Close()
	var sinks notify.Multi
	if d := notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.AvatarURL,
		cfg.Discord.MentionRole, cfg.Discord.MentionUser); d != nil {
		sinks = append(sinks, d)
	}
	if s := notify.NewSlack(cfg.Slack.WebhookURL); s != nil {
		sinks = append(sinks, s)
	}
	dispatcher := notify.NewDispatcher(sinks, notify.DispatcherConfig{
		Enabled:       cfg.NotificationsEnabled,
		Timeout:       cfg.NotifyTimeout(),
		CheckInterval: cfg.CheckInterval(),
		RobotUser:     cfg.RemediationCredentials.Username,
		Live:          hub,
	}, logger.Named("notify"))

	journal := memory.New(0, 0)
	machine := scheduler.NewMachine(scheduler.MachineConfig{
		Target:                 target.Host,
		VerificationThreshold:  cfg.VerificationThreshold,
		VerificationSamples:    cfg.VerificationSamples,
		VerificationInterval:   cfg.VerificationInterval(),
		RecoveryWait:           cfg.RecoveryWait(),
		MaxRemediationAttempts: cfg.MaxRemediationAttempts,
	}, sampler, remediation.Pinned{Controller: ctrl, IP: addr}, dispatcher, logger.Named("machine"))

	schedule, err := cfg.Schedule()
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	loop := scheduler.NewLoop(logger, target.Host, sampler, machine, journal, schedule)

	var srv *http.Server
	if cfg.StatusAPI.Addr != "" {
		api := httpapi.NewServer(logger.Named("api"), journal, hub, cfg.Redacted())
		api.TrustProxy = cfg.StatusAPI.TrustProxy
		srv = &http.Server{
			Addr: cfg.StatusAPI.Addr,
			Handler: api.Router(apimw.Keys{
				Public: cfg.StatusAPI.PublicKeys,
				Admin:  cfg.StatusAPI.AdminKeys,
			}, cfg.StatusAPI.AllowedOrigins, cfg.StatusAPI.RPM, cfg.StatusAPI.Burst),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("api_listen", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api_error", zap.Error(err))
			}
		}()
	}

	loop.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api_shutdown_error", zap.Error(err))
		}
	}
	return nil
}
