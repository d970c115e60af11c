package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"pagefeed/pkg/config"
)

// WorkerConfig holds the configuration of the long-running worker mode.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
type WorkerConfig struct {
	// CronSchedule is the five-field cron expression of scheduler passes.
	// Default: "*/10 * * * *"
	CronSchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	// Default: "UTC"
	Timezone string

	// PassTimeout bounds one scheduler pass.
	// Range: 1m-4h
	// Default: 30 minutes
	PassTimeout time.Duration

	// HealthPort is the port of the health and metrics server.
	// Range: 1024-65535 (avoid privileged ports)
	// Default: 9091
	HealthPort int

	// RunOnStart triggers one pass immediately after startup.
	// Default: true
	RunOnStart bool
}

// DefaultConfig returns a WorkerConfig with default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule: "*/10 * * * *",
		Timezone:     "UTC",
		PassTimeout:  30 * time.Minute,
		HealthPort:   9091,
		RunOnStart:   true,
	}
}

// Validate checks every field and returns all failures joined.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateDurationRange(c.PassTimeout, time.Minute, 4*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("pass timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the time zone of the schedule, UTC when it cannot be
// loaded.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv loads the worker configuration with a fail-open
// strategy: invalid values fall back to their defaults, are logged and
// counted in metrics. It never returns an error.
//
// Environment variables:
//   - WORKER_CRON_SCHEDULE: cron expression (default: "*/10 * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - WORKER_PASS_TIMEOUT: duration 1m-4h (default: 30m)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default: 9091)
//   - WORKER_RUN_ON_START: bool (default: true)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.Config
	}
	l := config.NewLoader(logger, cm)

	cfg.CronSchedule = l.String("WORKER_CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.Timezone = l.String("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.PassTimeout = l.Duration("WORKER_PASS_TIMEOUT", cfg.PassTimeout, func(d time.Duration) error {
		return config.ValidateDurationRange(d, time.Minute, 4*time.Hour)
	})
	cfg.HealthPort = l.Int("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.RunOnStart = l.Bool("WORKER_RUN_ON_START", cfg.RunOnStart)
	l.Finish()

	return &cfg, nil
}
