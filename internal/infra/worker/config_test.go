package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CronSchedule != "*/10 * * * *" {
		t.Errorf("CronSchedule = %q, want %q", cfg.CronSchedule, "*/10 * * * *")
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	if cfg.PassTimeout != 30*time.Minute {
		t.Errorf("PassTimeout = %v, want 30m", cfg.PassTimeout)
	}
	if cfg.HealthPort != 9091 {
		t.Errorf("HealthPort = %d, want 9091", cfg.HealthPort)
	}
	if !cfg.RunOnStart {
		t.Error("RunOnStart should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*WorkerConfig) {}},
		{name: "bad cron", mutate: func(c *WorkerConfig) { c.CronSchedule = "often" }, wantErr: "cron schedule"},
		{name: "bad timezone", mutate: func(c *WorkerConfig) { c.Timezone = "Nowhere/City" }, wantErr: "timezone"},
		{name: "short timeout", mutate: func(c *WorkerConfig) { c.PassTimeout = time.Second }, wantErr: "pass timeout"},
		{name: "privileged port", mutate: func(c *WorkerConfig) { c.HealthPort = 80 }, wantErr: "health port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CronSchedule = ""
	cfg.HealthPort = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"cron schedule", "health port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WORKER_CRON_SCHEDULE", "0 * * * *")
	t.Setenv("WORKER_TIMEZONE", "Europe/Berlin")
	t.Setenv("WORKER_PASS_TIMEOUT", "45m")
	t.Setenv("WORKER_HEALTH_PORT", "9200")
	t.Setenv("WORKER_RUN_ON_START", "false")

	metrics := NewWorkerMetrics(prometheus.NewRegistry())
	cfg, err := LoadConfigFromEnv(nil, metrics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CronSchedule != "0 * * * *" {
		t.Errorf("CronSchedule = %q", cfg.CronSchedule)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.PassTimeout != 45*time.Minute {
		t.Errorf("PassTimeout = %v", cfg.PassTimeout)
	}
	if cfg.HealthPort != 9200 {
		t.Errorf("HealthPort = %d", cfg.HealthPort)
	}
	if cfg.RunOnStart {
		t.Error("RunOnStart should be false")
	}
	if got := testutil.ToFloat64(metrics.Config.FallbackActive); got != 0 {
		t.Errorf("FallbackActive = %v, want 0", got)
	}
}

func TestLoadConfigFromEnv_FallsBack(t *testing.T) {
	t.Setenv("WORKER_CRON_SCHEDULE", "whenever")
	t.Setenv("WORKER_PASS_TIMEOUT", "10h")
	t.Setenv("WORKER_HEALTH_PORT", "not-a-port")

	metrics := NewWorkerMetrics(prometheus.NewRegistry())
	cfg, err := LoadConfigFromEnv(nil, metrics)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv must not fail: %v", err)
	}

	def := DefaultConfig()
	if cfg.CronSchedule != def.CronSchedule {
		t.Errorf("CronSchedule = %q, want default", cfg.CronSchedule)
	}
	if cfg.PassTimeout != def.PassTimeout {
		t.Errorf("PassTimeout = %v, want default", cfg.PassTimeout)
	}
	if cfg.HealthPort != def.HealthPort {
		t.Errorf("HealthPort = %d, want default", cfg.HealthPort)
	}
	if got := testutil.ToFloat64(metrics.Config.FallbackActive); got != 1 {
		t.Errorf("FallbackActive = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Config.FallbacksTotal.WithLabelValues("worker_cron_schedule")); got != 1 {
		t.Errorf("cron schedule fallbacks = %v, want 1", got)
	}
}

func TestWorkerConfig_Location(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Tokyo"
	if got := cfg.Location().String(); got != "Asia/Tokyo" {
		t.Errorf("Location = %s", got)
	}
	cfg.Timezone = "bogus"
	if cfg.Location() != time.UTC {
		t.Error("invalid timezone should fall back to UTC")
	}
}
