package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pagefeed/internal/observability/metrics"
	"pagefeed/internal/usecase/notify"
)

// ChannelReporter reports the health of alert channels.
type ChannelReporter interface {
	Status() []notify.ChannelStatus
}

// HealthServer serves the worker's operational endpoints:
//   - GET /health: liveness probe (always 200)
//   - GET /health/ready: readiness probe (200 once ready, 503 before)
//   - GET /health/channels: alert channel circuit state
//   - GET /metrics: Prometheus exposition
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", logger, WithChannels(notifyService))
//	go func() {
//	    if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	healthServer.SetReady(true)
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	isReady  atomic.Bool
	server   *http.Server
	channels ChannelReporter
	gatherer prometheus.Gatherer
}

// HealthOption configures a HealthServer.
type HealthOption func(*HealthServer)

// WithChannels exposes channel health on /health/channels.
func WithChannels(r ChannelReporter) HealthOption {
	return func(h *HealthServer) { h.channels = r }
}

// WithGatherer serves g on /metrics instead of the default gatherer.
func WithGatherer(g prometheus.Gatherer) HealthOption {
	return func(h *HealthServer) { h.gatherer = g }
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

type channelHealthResponse struct {
	Healthy  bool                   `json:"healthy"`
	Channels []notify.ChannelStatus `json:"channels"`
}

// NewHealthServer creates a health server listening on addr. It starts
// not ready.
func NewHealthServer(addr string, logger *slog.Logger, opts ...HealthOption) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthServer{addr: addr, logger: logger, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the router of the server.
func (h *HealthServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recordRequests)
	r.Get("/health", h.handleLiveness)
	r.Get("/health/ready", h.handleReadiness)
	r.Get("/health/channels", h.handleChannels)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Start serves until ctx is cancelled, then shuts down with a 5-second
// grace period. It returns http.ErrServerClosed on graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handleChannels answers 503 when any channel circuit is open.
func (h *HealthServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	resp := channelHealthResponse{Healthy: true, Channels: []notify.ChannelStatus{}}
	if h.channels != nil {
		resp.Channels = h.channels.Status()
	}
	for _, ch := range resp.Channels {
		if ch.CircuitOpen {
			resp.Healthy = false
		}
	}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

// recordRequests records request metrics labelled by route pattern.
func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.status), time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
