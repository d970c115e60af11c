package config

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PF_TEST_STRING", "value")
	t.Setenv("PF_TEST_INT", " 42 ")
	t.Setenv("PF_TEST_BAD_INT", "forty")
	t.Setenv("PF_TEST_BOOL", "yes")
	t.Setenv("PF_TEST_BAD_BOOL", "maybe")
	t.Setenv("PF_TEST_DURATION", "90s")
	t.Setenv("PF_TEST_LIST", " a@example.com, ,b@example.com ")

	assert.Equal(t, "value", GetEnvString("PF_TEST_STRING", "def"))
	assert.Equal(t, "def", GetEnvString("PF_TEST_UNSET", "def"))
	assert.Equal(t, 42, GetEnvInt("PF_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("PF_TEST_BAD_INT", 1))
	assert.True(t, GetEnvBool("PF_TEST_BOOL", false))
	assert.True(t, GetEnvBool("PF_TEST_BAD_BOOL", true))
	assert.Equal(t, 90*time.Second, GetEnvDuration("PF_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, GetEnvStringList("PF_TEST_LIST", nil))
	assert.Nil(t, GetEnvStringList("PF_TEST_UNSET", nil))
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"positive duration", ValidatePositiveDuration(time.Second), false},
		{"zero duration", ValidatePositiveDuration(0), true},
		{"non-negative zero", ValidateNonNegativeDuration(0), false},
		{"negative duration", ValidateNonNegativeDuration(-time.Second), true},
		{"duration in range", ValidateDurationRange(time.Minute, time.Second, time.Hour), false},
		{"duration below range", ValidateDurationRange(time.Millisecond, time.Second, time.Hour), true},
		{"duration inverted range", ValidateDurationRange(time.Minute, time.Hour, time.Second), true},
		{"int in range", ValidateIntRange(5, 1, 10), false},
		{"int above range", ValidateIntRange(11, 1, 10), true},
		{"cron every ten minutes", ValidateCronSchedule("*/10 * * * *"), false},
		{"cron descriptor", ValidateCronSchedule("@hourly"), false},
		{"cron six fields", ValidateCronSchedule("0 */10 * * * *"), true},
		{"cron empty", ValidateCronSchedule(""), true},
		{"timezone utc", ValidateTimezone("UTC"), false},
		{"timezone bogus", ValidateTimezone("Mars/Olympus"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, tt.err)
			} else {
				assert.NoError(t, tt.err)
			}
		})
	}
}

func TestLoader_FallsBackAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewConfigMetrics("test", reg)
	l := NewLoader(nil, metrics)

	t.Setenv("PF_SCHEDULE", "every tuesday")
	t.Setenv("PF_PORT", "80")
	t.Setenv("PF_TIMEOUT", "2m")
	t.Setenv("PF_ENABLED", "off")

	assert.Equal(t, "*/10 * * * *", l.String("PF_SCHEDULE", "*/10 * * * *", ValidateCronSchedule))
	assert.Equal(t, 9091, l.Int("PF_PORT", 9091, func(v int) error { return ValidateIntRange(v, 1024, 65535) }))
	assert.Equal(t, 2*time.Minute, l.Duration("PF_TIMEOUT", time.Minute, ValidatePositiveDuration))
	assert.False(t, l.Bool("PF_ENABLED", true))
	assert.Equal(t, 5, l.Int("PF_UNSET", 5, nil))
	l.Finish()

	assert.Equal(t, []string{"PF_SCHEDULE", "PF_PORT"}, l.Fallbacks())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("pf_schedule")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ValidationErrorsTotal.WithLabelValues("pf_port")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FallbackActive))
	assert.NotZero(t, testutil.ToFloat64(metrics.LoadTimestamp))
}

func TestLoader_NoFallback(t *testing.T) {
	metrics := NewConfigMetrics("clean", prometheus.NewRegistry())
	l := NewLoader(nil, metrics)
	t.Setenv("PF_GOOD", "@daily")

	assert.Equal(t, "@daily", l.String("PF_GOOD", "x", ValidateCronSchedule))
	l.Finish()

	assert.Empty(t, l.Fallbacks())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.FallbackActive))
}
