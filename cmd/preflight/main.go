// cmd/preflight/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/config"
	"github.com/AidanWarner97/server-watcher/internal/notify"
	"github.com/AidanWarner97/server-watcher/internal/probe"
	"github.com/AidanWarner97/server-watcher/internal/remediation"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file (optional)")
	testNotify := flag.Bool("notify", false, "send a test notification to every configured webhook")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail("config invalid:\n  " + strings.ReplaceAll(err.Error(), "; ", "\n  "))
	}
	ok("config valid")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	target, err := probe.Resolve(ctx, cfg.ServerIdentifier)
	if err != nil {
		fail(fmt.Sprintf("target %q unusable (%s): %v", cfg.ServerIdentifier, target.Class, err))
	}
	addr := target.IPs[0].String()
	ok(fmt.Sprintf("target %s resolves (%s) to %s", target.Host, target.Class, addr))

	robot := remediation.NewRobotClient(
		cfg.Remediation.BaseURL,
		cfg.RemediationCredentials.Username,
		cfg.RemediationCredentials.Password,
		cfg.Remediation.ResetType,
		cfg.RemediationTimeout(),
	)
	ctrl := remediation.NewController(robot, cfg.RemediationTimeout(), zap.NewNop())
	if err := ctrl.Verify(ctx, addr); err != nil {
		warn("automatic restart unavailable: " + err.Error())
	} else {
		ok("Robot API accepts " + cfg.Remediation.ResetType + " resets for " + addr)
	}

	sample := probe.NewMultiChecker(cfg.CheckTimeout(), probe.Standard(probe.Ports{
		SSH:   cfg.Ports.SSH,
		HTTP:  cfg.Ports.HTTP,
		HTTPS: cfg.Ports.HTTPS,
	}, cfg.CheckTimeout())...).Run(ctx, target.Host)
	for _, name := range sample.Names() {
		r := sample.Checks[name]
		if r.Success {
			ok(fmt.Sprintf("%s check passed (%s)", name, r.Latency.Round(time.Millisecond)))
		} else {
			warn(fmt.Sprintf("%s check failed: %s", name, r.Message))
		}
	}
	ok("target is " + string(sample.Status()))

	if !cfg.NotificationsEnabled {
		warn("notificationsEnabled is false; events will only be logged")
	}
	if cfg.StatusAPI.Addr == "" {
		warn("statusAPI.addr empty; the status API is disabled")
	} else {
		if len(cfg.StatusAPI.PublicKeys) == 0 {
			warn("statusAPI.publicKeys empty; read routes are open")
		}
		if len(cfg.StatusAPI.AdminKeys) == 0 {
			warn("statusAPI.adminKeys empty; /api/config will always 403")
		}
		ok("status API on " + cfg.StatusAPI.Addr)
	}

	if *testNotify {
		var sinks notify.Multi
		if d := notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.AvatarURL,
			cfg.Discord.MentionRole, cfg.Discord.MentionUser); d != nil {
			sinks = append(sinks, d)
		}
		if s := notify.NewSlack(cfg.Slack.WebhookURL); s != nil {
			sinks = append(sinks, s)
		}
		if len(sinks) == 0 {
			warn("no webhook configured; skipping test notification")
		} else if err := sinks.Send(ctx, notify.Message{
			Title:    "Server Monitor Test",
			Body:     "Preflight check for " + target.Host + ". Notifications are working.",
			Severity: notify.SeverityInfo,
			At:       time.Now().UTC(),
		}); err != nil {
			fail("test notification failed: " + err.Error())
		} else {
			ok("test notification delivered")
		}
	}

	ok("preflight passed")
}
