// Package config provides helpers for reading configuration from the
// environment.
//
// The GetEnv* functions never fail: unset variables yield the default and
// unparsable values yield the default plus a warning. Loader adds
// validation with fallback, and reports fallbacks through ConfigMetrics.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue reads key and parses it. ok is false when key is unset or empty.
func envValue[T any](key string, parse func(string) (T, error)) (v T, raw string, ok bool, err error) {
	raw = os.Getenv(key)
	if raw == "" {
		return v, raw, false, nil
	}
	v, err = parse(raw)
	return v, raw, true, err
}

func getEnv[T any](key string, def T, parse func(string) (T, error)) T {
	v, raw, ok, err := envValue(key, parse)
	if !ok {
		return def
	}
	if err != nil {
		slog.Warn("invalid environment value, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.String("default", fmt.Sprint(def)),
			slog.String("error", err.Error()))
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseInt(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(s))
}

// parseBool accepts strconv.ParseBool values plus yes/no and on/off.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", s)
	}
	return v, nil
}

// GetEnvString returns the value of key, or def when it is unset.
func GetEnvString(key, def string) string {
	return getEnv(key, def, parseString)
}

// GetEnvInt returns key as an integer.
func GetEnvInt(key string, def int) int {
	return getEnv(key, def, parseInt)
}

// GetEnvBool returns key as a boolean. yes/no and on/off are accepted
// besides the strconv.ParseBool forms.
func GetEnvBool(key string, def bool) bool {
	return getEnv(key, def, parseBool)
}

// GetEnvDuration returns key parsed by time.ParseDuration ("90s", "1h30m").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	return getEnv(key, def, parseDuration)
}

// GetEnvStringList returns key split on commas, trimmed, with empty
// entries dropped.
//
//	// ALERT_EMAIL_TO="ops@example.com, oncall@example.com"
//	to := GetEnvStringList("ALERT_EMAIL_TO", nil)
func GetEnvStringList(key string, def []string) []string {
	var list []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	if len(list) == 0 {
		return def
	}
	return list
}
