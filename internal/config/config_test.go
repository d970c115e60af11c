package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points every variable a test could inherit from the host at
// its default.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PAGEFEED_DATA_DIR", "PAGEFEED_JOB_DIR", "PAGEFEED_FEED_DIR", "PAGEFEED_MONITOR_STATE",
		"PAGEFEED_LOCK_FILE", "PAGEFEED_CACHE_DIR", "PAGEFEED_NO_CACHE", "PAGEFEED_FEED_BASE_URL",
		"PAGEFEED_OVERRIDES_FILE", "PAGEFEED_DEFAULT_INTERVAL", "PAGEFEED_MIN_INTERVAL",
		"PAGEFEED_RETENTION", "PAGEFEED_MAX_JOBS", "PAGEFEED_ENRICH_BUDGET",
		"PAGEFEED_DIAGNOSTICS_THRESHOLD", "PAGEFEED_ALERT_STREAK",
		"PAGEFEED_OVERRIDE_ALERT_THRESHOLD", "PAGEFEED_OVERRIDE_ALERT_WINDOW",
		"PAGEFEED_ALERT_SUBJECT_PREFIX", "PAGEFEED_ALERT_TIMEOUT",
		"EMAIL_ENABLED", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"SMTP_STARTTLS", "ALERT_EMAIL_TO", "SLACK_ENABLED", "SLACK_WEBHOOK_URL",
		"DISCORD_ENABLED", "DISCORD_WEBHOOK_URL", "FETCH_CACHE_DIR", "FETCH_TIMEOUT",
		"FETCH_CONNECT_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "jobs"), cfg.JobDir)
	assert.Equal(t, filepath.Join("data", "feeds"), cfg.FeedDir)
	assert.Equal(t, filepath.Join("data", "monitor.json"), cfg.MonitorStatePath)
	assert.Equal(t, filepath.Join("data", "pagefeed.lock"), cfg.Scheduler.LockPath)
	assert.Equal(t, filepath.Join("data", "cache"), cfg.Fetcher.CacheDir)
	assert.Equal(t, time.Hour, cfg.DefaultInterval)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.MinInterval)
	assert.Equal(t, 3, cfg.Monitor.StreakThreshold)
	assert.Equal(t, "[pagefeed]", cfg.Notify.SubjectPrefix)
	assert.Empty(t, cfg.OverridesFile)
	assert.False(t, cfg.Channels.Email.Enabled)
	assert.False(t, cfg.Channels.Slack.Enabled)
	assert.False(t, cfg.Channels.Discord.Enabled)
}

func TestLoadConfigFromEnv_DataDirMovesLayout(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv("PAGEFEED_DATA_DIR", dir)
	t.Setenv("PAGEFEED_FEED_DIR", "/srv/www/feeds")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "jobs"), cfg.JobDir)
	assert.Equal(t, "/srv/www/feeds", cfg.FeedDir, "explicit paths win over the data dir")
	assert.Equal(t, filepath.Join(dir, "pagefeed.lock"), cfg.Scheduler.LockPath)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.Fetcher.CacheDir)
}

func TestLoadConfigFromEnv_CacheSelection(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "fetch variable", env: map[string]string{"FETCH_CACHE_DIR": "/tmp/fc"}, want: "/tmp/fc"},
		{name: "pagefeed variable", env: map[string]string{"PAGEFEED_CACHE_DIR": "/tmp/pc"}, want: "/tmp/pc"},
		{name: "disabled", env: map[string]string{"PAGEFEED_NO_CACHE": "true", "FETCH_CACHE_DIR": "/tmp/fc"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfigFromEnv()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Fetcher.CacheDir)
		})
	}
}

func TestLoadConfigFromEnv_CustomValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PAGEFEED_FEED_BASE_URL", "https://feeds.example.org/f")
	t.Setenv("PAGEFEED_OVERRIDES_FILE", "/etc/pagefeed/overrides.yaml")
	t.Setenv("PAGEFEED_MAX_JOBS", "25")
	t.Setenv("PAGEFEED_RETENTION", "168h")
	t.Setenv("PAGEFEED_ALERT_STREAK", "5")
	t.Setenv("PAGEFEED_OVERRIDE_ALERT_WINDOW", "12h")
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("SMTP_HOST", "smtp.example.org")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_FROM", "pagefeed@example.org")
	t.Setenv("ALERT_EMAIL_TO", "ops@example.org, dev@example.org")
	t.Setenv("SLACK_ENABLED", "true")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://feeds.example.org/f", cfg.FeedBaseURL)
	assert.Equal(t, "/etc/pagefeed/overrides.yaml", cfg.OverridesFile)
	assert.Equal(t, 25, cfg.Scheduler.MaxJobs)
	assert.Equal(t, 168*time.Hour, cfg.Scheduler.Retention)
	assert.Equal(t, 5, cfg.Monitor.StreakThreshold)
	assert.Equal(t, 12*time.Hour, cfg.Monitor.OverrideWindow)
	assert.True(t, cfg.Channels.Email.Enabled)
	assert.Equal(t, 2525, cfg.Channels.Email.Port)
	assert.Equal(t, []string{"ops@example.org", "dev@example.org"}, cfg.Channels.Email.To)
	assert.True(t, cfg.Channels.Slack.Enabled)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfigFromEnv_InvalidFetcher(t *testing.T) {
	isolateEnv(t)
	t.Setenv("FETCH_CONNECT_TIMEOUT", "1m")
	t.Setenv("FETCH_TIMEOUT", "10s")

	_, err := LoadConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.FeedBaseURL = "/feeds" },
			wantErr: []string{"PAGEFEED_FEED_BASE_URL"},
		},
		{
			name:    "empty job dir",
			mutate:  func(c *Config) { c.JobDir = "" },
			wantErr: []string{"PAGEFEED_JOB_DIR"},
		},
		{
			name:    "zero default interval",
			mutate:  func(c *Config) { c.DefaultInterval = 0 },
			wantErr: []string{"PAGEFEED_DEFAULT_INTERVAL"},
		},
		{
			name:    "monitor thresholds",
			mutate:  func(c *Config) { c.Monitor.StreakThreshold = 0 },
			wantErr: []string{"monitor"},
		},
		{
			name: "incomplete email",
			mutate: func(c *Config) {
				c.Channels.Email.Enabled = true
			},
			wantErr: []string{"SMTP_HOST", "SMTP_FROM", "ALERT_EMAIL_TO"},
		},
		{
			name: "plain http webhooks",
			mutate: func(c *Config) {
				c.Channels.Slack.Enabled = true
				c.Channels.Slack.WebhookURL = "http://hooks.slack.com/x"
				c.Channels.Discord.Enabled = true
			},
			wantErr: []string{"SLACK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL"},
		},
		{
			name: "disabled channel is not checked",
			mutate: func(c *Config) {
				c.Channels.Slack.WebhookURL = "not a url"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
