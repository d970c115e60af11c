package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pagefeed/internal/usecase/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubChannels []notify.ChannelStatus

func (s stubChannels) Status() []notify.ChannelStatus { return s }

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Errorf("failed to close response body: %v", err)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func TestHealthServer_Liveness(t *testing.T) {
	server := NewHealthServer(":0", quietLogger())
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	status, body := get(t, srv, "/health")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	var response healthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
}

func TestHealthServer_Readiness(t *testing.T) {
	server := NewHealthServer(":0", quietLogger())
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	if status, _ := get(t, srv, "/health/ready"); status != http.StatusServiceUnavailable {
		t.Errorf("before SetReady: expected 503, got %d", status)
	}

	server.SetReady(true)
	if status, _ := get(t, srv, "/health/ready"); status != http.StatusOK {
		t.Errorf("after SetReady(true): expected 200, got %d", status)
	}

	server.SetReady(false)
	if status, _ := get(t, srv, "/health/ready"); status != http.StatusServiceUnavailable {
		t.Errorf("after SetReady(false): expected 503, got %d", status)
	}
}

func TestHealthServer_Channels(t *testing.T) {
	tests := []struct {
		name       string
		channels   ChannelReporter
		wantStatus int
		wantCount  int
	}{
		{name: "no reporter", channels: nil, wantStatus: http.StatusOK, wantCount: 0},
		{
			name:       "all closed",
			channels:   stubChannels{{Name: "email"}, {Name: "slack"}},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name:       "one open",
			channels:   stubChannels{{Name: "email"}, {Name: "discord", CircuitOpen: true}},
			wantStatus: http.StatusServiceUnavailable,
			wantCount:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []HealthOption
			if tt.channels != nil {
				opts = append(opts, WithChannels(tt.channels))
			}
			srv := httptest.NewServer(NewHealthServer(":0", quietLogger(), opts...).Handler())
			defer srv.Close()

			status, body := get(t, srv, "/health/channels")
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			var resp channelHealthResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(resp.Channels) != tt.wantCount {
				t.Errorf("channels = %d, want %d", len(resp.Channels), tt.wantCount)
			}
			if resp.Healthy != (tt.wantStatus == http.StatusOK) {
				t.Errorf("healthy = %v", resp.Healthy)
			}
		})
	}
}

func TestHealthServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWorkerMetrics(reg)
	metrics.RecordPassRun("success")

	srv := httptest.NewServer(NewHealthServer(":0", quietLogger(), WithGatherer(reg)).Handler())
	defer srv.Close()

	status, body := get(t, srv, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `worker_pass_runs_total{status="success"} 1`) {
		t.Errorf("metrics output missing pass counter:\n%s", body)
	}
}

func TestHealthServer_StartStopsOnCancel(t *testing.T) {
	server := NewHealthServer("127.0.0.1:0", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start returned %v, want http.ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
