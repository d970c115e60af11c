// Package config loads the application configuration shared by the
// pagefeed binaries from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/infra/fetcher"
	"pagefeed/internal/infra/notifier"
	"pagefeed/internal/observability/logging"
	"pagefeed/internal/usecase/monitor"
	"pagefeed/internal/usecase/notify"
	"pagefeed/internal/usecase/refresh"
	"pagefeed/internal/usecase/scheduler"
	pkgconfig "pagefeed/pkg/config"
)

// Config holds the configuration of one pagefeed process.
type Config struct {
	// DataDir is the root of the default on-disk layout.
	// Default: "data"
	DataDir string

	// JobDir holds one JSON file per job.
	// Default: <DataDir>/jobs
	JobDir string

	// FeedDir is the public directory feed files are published into.
	// Default: <DataDir>/feeds
	FeedDir string

	// FeedBaseURL is the public URL FeedDir is served under.
	// Default: "http://localhost:8080/feeds"
	FeedBaseURL string

	// MonitorStatePath is the persisted monitor state file.
	// Default: <DataDir>/monitor.json
	MonitorStatePath string

	// OverridesFile is the YAML override table. Empty disables overrides.
	OverridesFile string

	// DefaultInterval is the refresh interval given to newly registered
	// jobs that do not ask for one.
	// Default: 1 hour
	DefaultInterval time.Duration

	// EnrichBudget bounds item page fetches per custom refresh. Negative
	// disables enrichment.
	// Default: 6
	EnrichBudget int

	// DiagnosticsThreshold is the failure streak at which a diagnostics
	// snapshot is attached to a job.
	// Default: 3
	DiagnosticsThreshold int

	Fetcher   fetcher.Config
	Scheduler scheduler.Config
	Monitor   monitor.Config
	Channels  notify.ChannelsConfig
	Notify    notify.Config
	Logging   logging.Options
}

// DefaultConfig returns the configuration used when no variable is set.
func DefaultConfig() *Config {
	cfg := &Config{
		DataDir:              "data",
		FeedBaseURL:          "http://localhost:8080/feeds",
		DefaultInterval:      time.Hour,
		EnrichBudget:         extractor.DefaultEnrichBudget,
		DiagnosticsThreshold: refresh.DefaultAlertThreshold,
		Fetcher:              fetcher.DefaultConfig(),
		Scheduler:            scheduler.DefaultConfig(),
		Monitor:              monitor.DefaultConfig(),
		Channels: notify.ChannelsConfig{
			Email: notifier.SMTPConfig{
				Port:     587,
				Timeout:  30 * time.Second,
				StartTLS: true,
			},
			Slack:   notifier.SlackConfig{Timeout: 10 * time.Second},
			Discord: notifier.DiscordConfig{Timeout: 10 * time.Second},
		},
		Notify: notify.Config{
			SubjectPrefix: "[pagefeed]",
			Timeout:       2 * time.Minute,
		},
	}
	cfg.deriveLayout()
	return cfg
}

// deriveLayout places the files that were not configured explicitly
// under DataDir.
func (c *Config) deriveLayout() {
	c.JobDir = filepath.Join(c.DataDir, "jobs")
	c.FeedDir = filepath.Join(c.DataDir, "feeds")
	c.MonitorStatePath = filepath.Join(c.DataDir, "monitor.json")
	c.Scheduler.LockPath = filepath.Join(c.DataDir, "pagefeed.lock")
	c.Fetcher.CacheDir = filepath.Join(c.DataDir, "cache")
}

// LoadConfigFromEnv loads the configuration from environment variables and
// validates it.
//
// Layout:
//   - PAGEFEED_DATA_DIR (default: data)
//   - PAGEFEED_JOB_DIR, PAGEFEED_FEED_DIR, PAGEFEED_MONITOR_STATE,
//     PAGEFEED_LOCK_FILE, PAGEFEED_CACHE_DIR (default: under the data dir)
//   - PAGEFEED_NO_CACHE: disables the fetch cache
//   - PAGEFEED_FEED_BASE_URL, PAGEFEED_OVERRIDES_FILE
//
// Refresh and scheduling:
//   - PAGEFEED_DEFAULT_INTERVAL, PAGEFEED_MIN_INTERVAL, PAGEFEED_RETENTION
//   - PAGEFEED_MAX_JOBS, PAGEFEED_ENRICH_BUDGET, PAGEFEED_DIAGNOSTICS_THRESHOLD
//
// Alerting:
//   - PAGEFEED_ALERT_STREAK, PAGEFEED_OVERRIDE_ALERT_THRESHOLD,
//     PAGEFEED_OVERRIDE_ALERT_WINDOW
//   - PAGEFEED_ALERT_SUBJECT_PREFIX, PAGEFEED_ALERT_TIMEOUT
//   - EMAIL_ENABLED, SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
//     SMTP_FROM, SMTP_STARTTLS, ALERT_EMAIL_TO (comma separated)
//   - SLACK_ENABLED, SLACK_WEBHOOK_URL
//   - DISCORD_ENABLED, DISCORD_WEBHOOK_URL
//
// The fetch layer reads its own FETCH_* variables and logging its LOG_*
// variables.
func LoadConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	cfg.DataDir = pkgconfig.GetEnvString("PAGEFEED_DATA_DIR", cfg.DataDir)
	cfg.deriveLayout()

	fc, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	defaultCache := cfg.Fetcher.CacheDir
	cfg.Fetcher = fc
	switch {
	case pkgconfig.GetEnvBool("PAGEFEED_NO_CACHE", false):
		cfg.Fetcher.CacheDir = ""
	case cfg.Fetcher.CacheDir == "":
		cfg.Fetcher.CacheDir = pkgconfig.GetEnvString("PAGEFEED_CACHE_DIR", defaultCache)
	}

	cfg.JobDir = pkgconfig.GetEnvString("PAGEFEED_JOB_DIR", cfg.JobDir)
	cfg.FeedDir = pkgconfig.GetEnvString("PAGEFEED_FEED_DIR", cfg.FeedDir)
	cfg.MonitorStatePath = pkgconfig.GetEnvString("PAGEFEED_MONITOR_STATE", cfg.MonitorStatePath)
	cfg.Scheduler.LockPath = pkgconfig.GetEnvString("PAGEFEED_LOCK_FILE", cfg.Scheduler.LockPath)
	cfg.FeedBaseURL = pkgconfig.GetEnvString("PAGEFEED_FEED_BASE_URL", cfg.FeedBaseURL)
	cfg.OverridesFile = pkgconfig.GetEnvString("PAGEFEED_OVERRIDES_FILE", cfg.OverridesFile)

	cfg.DefaultInterval = pkgconfig.GetEnvDuration("PAGEFEED_DEFAULT_INTERVAL", cfg.DefaultInterval)
	cfg.Scheduler.MinInterval = pkgconfig.GetEnvDuration("PAGEFEED_MIN_INTERVAL", cfg.Scheduler.MinInterval)
	cfg.Scheduler.Retention = pkgconfig.GetEnvDuration("PAGEFEED_RETENTION", cfg.Scheduler.Retention)
	cfg.Scheduler.MaxJobs = pkgconfig.GetEnvInt("PAGEFEED_MAX_JOBS", cfg.Scheduler.MaxJobs)
	cfg.EnrichBudget = pkgconfig.GetEnvInt("PAGEFEED_ENRICH_BUDGET", cfg.EnrichBudget)
	cfg.DiagnosticsThreshold = pkgconfig.GetEnvInt("PAGEFEED_DIAGNOSTICS_THRESHOLD", cfg.DiagnosticsThreshold)

	cfg.Monitor.StreakThreshold = pkgconfig.GetEnvInt("PAGEFEED_ALERT_STREAK", cfg.Monitor.StreakThreshold)
	cfg.Monitor.OverrideThreshold = pkgconfig.GetEnvInt("PAGEFEED_OVERRIDE_ALERT_THRESHOLD", cfg.Monitor.OverrideThreshold)
	cfg.Monitor.OverrideWindow = pkgconfig.GetEnvDuration("PAGEFEED_OVERRIDE_ALERT_WINDOW", cfg.Monitor.OverrideWindow)

	cfg.Notify.SubjectPrefix = pkgconfig.GetEnvString("PAGEFEED_ALERT_SUBJECT_PREFIX", cfg.Notify.SubjectPrefix)
	cfg.Notify.Timeout = pkgconfig.GetEnvDuration("PAGEFEED_ALERT_TIMEOUT", cfg.Notify.Timeout)

	email := &cfg.Channels.Email
	email.Enabled = pkgconfig.GetEnvBool("EMAIL_ENABLED", false)
	email.Host = pkgconfig.GetEnvString("SMTP_HOST", email.Host)
	email.Port = pkgconfig.GetEnvInt("SMTP_PORT", email.Port)
	email.Username = pkgconfig.GetEnvString("SMTP_USERNAME", email.Username)
	email.Password = pkgconfig.GetEnvString("SMTP_PASSWORD", email.Password)
	email.From = pkgconfig.GetEnvString("SMTP_FROM", email.From)
	email.StartTLS = pkgconfig.GetEnvBool("SMTP_STARTTLS", email.StartTLS)
	email.To = pkgconfig.GetEnvStringList("ALERT_EMAIL_TO", email.To)

	cfg.Channels.Slack.Enabled = pkgconfig.GetEnvBool("SLACK_ENABLED", false)
	cfg.Channels.Slack.WebhookURL = pkgconfig.GetEnvString("SLACK_WEBHOOK_URL", "")
	cfg.Channels.Discord.Enabled = pkgconfig.GetEnvBool("DISCORD_ENABLED", false)
	cfg.Channels.Discord.WebhookURL = pkgconfig.GetEnvString("DISCORD_WEBHOOK_URL", "")

	cfg.Logging = logging.OptionsFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	for name, dir := range map[string]string{
		"PAGEFEED_JOB_DIR":       c.JobDir,
		"PAGEFEED_FEED_DIR":      c.FeedDir,
		"PAGEFEED_MONITOR_STATE": c.MonitorStatePath,
	} {
		if dir == "" {
			errs = append(errs, fmt.Errorf("%s cannot be empty", name))
		}
	}

	if u, err := url.Parse(c.FeedBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("PAGEFEED_FEED_BASE_URL must be an absolute http(s) URL, got %q", c.FeedBaseURL))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.DefaultInterval); err != nil {
		errs = append(errs, fmt.Errorf("PAGEFEED_DEFAULT_INTERVAL: %w", err))
	}
	if c.DiagnosticsThreshold < 1 {
		errs = append(errs, fmt.Errorf("PAGEFEED_DIAGNOSTICS_THRESHOLD must be positive, got %d", c.DiagnosticsThreshold))
	}

	if err := c.Fetcher.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fetcher: %w", err))
	}
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := c.Monitor.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitor: %w", err))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Notify.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("PAGEFEED_ALERT_TIMEOUT: %w", err))
	}

	if e := c.Channels.Email; e.Enabled {
		if e.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when email is enabled"))
		}
		if e.From == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when email is enabled"))
		}
		if len(e.To) == 0 {
			errs = append(errs, errors.New("ALERT_EMAIL_TO is required when email is enabled"))
		}
		if err := pkgconfig.ValidateIntRange(e.Port, 1, 65535); err != nil {
			errs = append(errs, fmt.Errorf("SMTP_PORT: %w", err))
		}
	}
	if s := c.Channels.Slack; s.Enabled {
		if err := validateWebhook(s.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("SLACK_WEBHOOK_URL: %w", err))
		}
	}
	if d := c.Channels.Discord; d.Enabled {
		if err := validateWebhook(d.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("DISCORD_WEBHOOK_URL: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateWebhook(raw string) error {
	if raw == "" {
		return errors.New("required when the channel is enabled")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("must be an https URL")
	}
	return nil
}
