package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is every option the daemon recognizes. It is loaded once at startup
// and treated as read-only afterwards.
type Config struct {
	ServerIdentifier            string `yaml:"serverIdentifier"` // target IP or hostname
	CheckIntervalMinutes        int    `yaml:"checkIntervalMinutes"`
	CheckSchedule               string `yaml:"checkSchedule"` // cron spec, overrides the interval
	CheckTimeoutSeconds         int    `yaml:"checkTimeoutSeconds"`
	Ports                       Ports  `yaml:"ports"`
	VerificationThreshold       int    `yaml:"verificationThreshold"`
	VerificationSamples         int    `yaml:"verificationSamples"`
	VerificationIntervalSeconds int    `yaml:"verificationIntervalSeconds"`
	RecoveryWaitMinutes         int    `yaml:"recoveryWaitMinutes"`
	MaxRemediationAttempts      int    `yaml:"maxRemediationAttempts"` // 0 = unlimited
	NotificationsEnabled        bool   `yaml:"notificationsEnabled"`
	NotifyTimeoutSeconds        int    `yaml:"notifyTimeoutSeconds"`

	RemediationCredentials Credentials `yaml:"remediationCredentials"`
	Remediation            Remediation `yaml:"remediation"`

	Discord Discord `yaml:"discord"`
	Slack   Slack   `yaml:"slack"`

	LogDir   string `yaml:"logDir"`
	LogLevel string `yaml:"logLevel"`

	StatusAPI StatusAPI `yaml:"statusAPI"`
}

type Ports struct {
	SSH   int `yaml:"ssh"`
	HTTP  int `yaml:"http"`
	HTTPS int `yaml:"https"`
}

type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Remediation struct {
	BaseURL        string `yaml:"baseURL"`
	ResetType      string `yaml:"resetType"` // sw | hw | power
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type Discord struct {
	WebhookURL  string `yaml:"webhookURL"`
	Username    string `yaml:"username"`
	AvatarURL   string `yaml:"avatarURL"`
	MentionRole string `yaml:"mentionRole"`
	MentionUser string `yaml:"mentionUser"`
}

type Slack struct {
	WebhookURL string `yaml:"webhookURL"`
}

type StatusAPI struct {
	Addr       string   `yaml:"addr"` // empty disables the API
	PublicKeys []string `yaml:"publicKeys"`
	AdminKeys  []string `yaml:"adminKeys"`
	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
	RPM            int      `yaml:"rpm"`
	Burst          int      `yaml:"burst"`
	// TrustProxy keys rate limits on forwarding headers instead of the
	// connection address.
	TrustProxy bool `yaml:"trustProxy"`
}

var ErrMissingField = errors.New("missing required field")

// Default returns the baseline configuration. Required fields stay empty.
func Default() Config {
	return Config{
		CheckIntervalMinutes:        1,
		CheckTimeoutSeconds:         10,
		Ports:                       Ports{SSH: 22, HTTP: 80, HTTPS: 443},
		VerificationThreshold:       2,
		VerificationSamples:         3,
		VerificationIntervalSeconds: 30,
		RecoveryWaitMinutes:         5,
		MaxRemediationAttempts:      3,
		NotifyTimeoutSeconds:        30,
		Remediation: Remediation{
			BaseURL:        "https://robot-ws.your-server.de",
			ResetType:      "sw",
			TimeoutSeconds: 30,
		},
		Discord:  Discord{Username: "Server Monitor"},
		LogDir:   "logs",
		LogLevel: "info",
		StatusAPI: StatusAPI{
			RPM:   120,
			Burst: 60,
		},
	}
}

// Load builds the configuration: defaults, then .env, then the YAML file at
// path (if any), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so a typo fails startup instead of
// silently falling back to a default.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	list := func(key string, dst *[]string) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}

	str("SERVER_IP", &cfg.ServerIdentifier)
	num("CHECK_INTERVAL_MINUTES", &cfg.CheckIntervalMinutes)
	str("CHECK_SCHEDULE", &cfg.CheckSchedule)
	num("CHECK_TIMEOUT_SECONDS", &cfg.CheckTimeoutSeconds)
	num("VERIFICATION_THRESHOLD", &cfg.VerificationThreshold)
	num("VERIFICATION_CHECKS", &cfg.VerificationSamples)
	num("VERIFICATION_INTERVAL_SECONDS", &cfg.VerificationIntervalSeconds)
	num("RECOVERY_WAIT_MINUTES", &cfg.RecoveryWaitMinutes)
	num("MAX_REMEDIATION_ATTEMPTS", &cfg.MaxRemediationAttempts)
	flag("NOTIFICATIONS_ENABLED", &cfg.NotificationsEnabled)
	num("NOTIFY_TIMEOUT_SECONDS", &cfg.NotifyTimeoutSeconds)

	str("HETZNER_USERNAME", &cfg.RemediationCredentials.Username)
	str("HETZNER_PASSWORD", &cfg.RemediationCredentials.Password)
	str("HETZNER_API_URL", &cfg.Remediation.BaseURL)
	str("HETZNER_RESET_TYPE", &cfg.Remediation.ResetType)

	str("DISCORD_WEBHOOK_URL", &cfg.Discord.WebhookURL)
	str("DISCORD_MENTION_ROLE", &cfg.Discord.MentionRole)
	str("DISCORD_MENTION_USER", &cfg.Discord.MentionUser)
	str("SLACK_WEBHOOK_URL", &cfg.Slack.WebhookURL)

	str("LOG_DIR", &cfg.LogDir)
	str("LOG_LEVEL", &cfg.LogLevel)

	str("STATUS_API_ADDR", &cfg.StatusAPI.Addr)
	list("PUBLIC_API_KEYS", &cfg.StatusAPI.PublicKeys)
	list("ADMIN_API_KEYS", &cfg.StatusAPI.AdminKeys)
	list("ALLOWED_ORIGINS", &cfg.StatusAPI.AllowedOrigins)
	flag("TRUST_PROXY", &cfg.StatusAPI.TrustProxy)

	return errs
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	add := func(err error) { errs = multierr.Append(errs, err) }
	positive := func(name string, v int) {
		if v <= 0 {
			add(fmt.Errorf("%s must be > 0, got %d", name, v))
		}
	}

	if strings.TrimSpace(c.ServerIdentifier) == "" {
		add(fmt.Errorf("serverIdentifier: %w", ErrMissingField))
	}
	if c.RemediationCredentials.Username == "" {
		add(fmt.Errorf("remediationCredentials.username: %w", ErrMissingField))
	}
	if c.RemediationCredentials.Password == "" {
		add(fmt.Errorf("remediationCredentials.password: %w", ErrMissingField))
	}

	positive("checkIntervalMinutes", c.CheckIntervalMinutes)
	positive("checkTimeoutSeconds", c.CheckTimeoutSeconds)
	positive("verificationThreshold", c.VerificationThreshold)
	positive("verificationSamples", c.VerificationSamples)
	positive("recoveryWaitMinutes", c.RecoveryWaitMinutes)
	positive("notifyTimeoutSeconds", c.NotifyTimeoutSeconds)
	positive("remediation.timeoutSeconds", c.Remediation.TimeoutSeconds)
	if c.MaxRemediationAttempts < 0 {
		add(fmt.Errorf("maxRemediationAttempts must be >= 0 (0 = unlimited), got %d", c.MaxRemediationAttempts))
	}
	if c.VerificationIntervalSeconds < 0 {
		add(fmt.Errorf("verificationIntervalSeconds must be >= 0, got %d", c.VerificationIntervalSeconds))
	}
	for name, p := range map[string]int{"ports.ssh": c.Ports.SSH, "ports.http": c.Ports.HTTP, "ports.https": c.Ports.HTTPS} {
		if p <= 0 || p > 65535 {
			add(fmt.Errorf("%s out of range: %d", name, p))
		}
	}

	if c.CheckSchedule != "" {
		if _, err := cron.ParseStandard(c.CheckSchedule); err != nil {
			add(fmt.Errorf("checkSchedule: %w", err))
		}
	}
	switch c.Remediation.ResetType {
	case "sw", "hw", "power":
	default:
		add(fmt.Errorf("remediation.resetType must be sw, hw or power, got %q", c.Remediation.ResetType))
	}
	if c.Remediation.BaseURL == "" {
		add(fmt.Errorf("remediation.baseURL: %w", ErrMissingField))
	}
	if c.NotificationsEnabled && c.Discord.WebhookURL == "" && c.Slack.WebhookURL == "" {
		add(errors.New("notificationsEnabled requires discord.webhookURL or slack.webhookURL"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add(fmt.Errorf("logLevel must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return errs
}

func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

func (c Config) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSeconds) * time.Second
}

func (c Config) VerificationInterval() time.Duration {
	return time.Duration(c.VerificationIntervalSeconds) * time.Second
}

func (c Config) RecoveryWait() time.Duration {
	return time.Duration(c.RecoveryWaitMinutes) * time.Minute
}

func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func (c Config) RemediationTimeout() time.Duration {
	return time.Duration(c.Remediation.TimeoutSeconds) * time.Second
}

// Schedule returns the cron schedule driving the monitor loop.
func (c Config) Schedule() (cron.Schedule, error) {
	if c.CheckSchedule != "" {
		return cron.ParseStandard(c.CheckSchedule)
	}
	return cron.Every(c.CheckInterval()), nil
}

const redacted = "[redacted]"

// Redacted returns a copy safe to display: secrets and webhook URLs are
// replaced, everything else is kept.
func (c Config) Redacted() Config {
	r := c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	r.RemediationCredentials.Password = mask(c.RemediationCredentials.Password)
	r.Discord.WebhookURL = mask(c.Discord.WebhookURL)
	r.Slack.WebhookURL = mask(c.Slack.WebhookURL)
	r.StatusAPI.PublicKeys = make([]string, len(c.StatusAPI.PublicKeys))
	r.StatusAPI.AdminKeys = make([]string, len(c.StatusAPI.AdminKeys))
	for i := range r.StatusAPI.PublicKeys {
		r.StatusAPI.PublicKeys[i] = redacted
	}
	for i := range r.StatusAPI.AdminKeys {
		r.StatusAPI.AdminKeys[i] = redacted
	}
	return r
}
