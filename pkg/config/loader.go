package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Loader reads validated values from the environment with a fail-open
// strategy: a value that fails to parse or validate is replaced by the
// default, a warning is logged and the fallback is counted.
//
//	l := config.NewLoader(logger, metrics)
//	cfg.CronSchedule = l.String("WORKER_CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
//	cfg.HealthPort = l.Int("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
//	    return config.ValidateIntRange(v, 1024, 65535)
//	})
//	l.Finish()
type Loader struct {
	logger    *slog.Logger
	metrics   *ConfigMetrics
	fallbacks []string
}

// NewLoader returns a Loader. Both arguments may be nil.
func NewLoader(logger *slog.Logger, metrics *ConfigMetrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, metrics: metrics}
}

// String reads key, keeping def when unset or invalid.
func (l *Loader) String(key, def string, validate func(string) error) string {
	return load(l, key, def, parseString, validate)
}

// Int reads key as an integer, keeping def when unset or invalid.
func (l *Loader) Int(key string, def int, validate func(int) error) int {
	return load(l, key, def, parseInt, validate)
}

// Duration reads key as a duration, keeping def when unset or invalid.
func (l *Loader) Duration(key string, def time.Duration, validate func(time.Duration) error) time.Duration {
	return load(l, key, def, parseDuration, validate)
}

// Bool reads key as a boolean, keeping def when unset or invalid.
func (l *Loader) Bool(key string, def bool) bool {
	return load(l, key, def, parseBool, nil)
}

func load[T any](l *Loader, key string, def T, parse func(string) (T, error), validate func(T) error) T {
	v, raw, ok, err := envValue(key, parse)
	if !ok {
		return def
	}
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		l.fallback(key, raw, def, err)
		return def
	}
	return v
}

func (l *Loader) fallback(key, raw string, def any, err error) {
	l.fallbacks = append(l.fallbacks, key)
	l.logger.Warn("configuration fallback applied",
		slog.String("env_key", key),
		slog.String("invalid_value", raw),
		slog.String("default_value", fmt.Sprint(def)),
		slog.String("error", err.Error()))
	if l.metrics != nil {
		l.metrics.RecordFallback(strings.ToLower(key))
	}
}

// Fallbacks returns the keys that fell back to their default.
func (l *Loader) Fallbacks() []string {
	return append([]string(nil), l.fallbacks...)
}

// Finish records the load in the metrics.
func (l *Loader) Finish() {
	if l.metrics == nil {
		return
	}
	l.metrics.SetFallbackActive(len(l.fallbacks) > 0)
	l.metrics.RecordLoadTimestamp()
}
