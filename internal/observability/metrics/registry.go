// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pagefeed"

// HTTP metrics track requests served by the worker's health/metrics server.
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Refresh metrics track per-job outcomes of a scheduler pass.
var (
	// RefreshTotal counts job refreshes by result (success, failure, demoted)
	// and refresh path (native, custom, override).
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Total number of job refreshes",
		},
		[]string{"result", "path"},
	)

	// RefreshDuration measures the time to refresh a single job.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time taken to refresh a job",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"path"},
	)

	// ItemsPublished measures the number of items in each published feed.
	ItemsPublished = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "items_published",
			Help:      "Number of items in a published feed",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40, 50},
		},
	)

	// JobsPurgedTotal counts jobs deleted by retention.
	JobsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_purged_total",
			Help:      "Total number of jobs purged after the retention window",
		},
	)

	// AlertsTotal counts alerts emitted by the monitor, by kind.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of monitor alerts",
		},
		[]string{"kind"},
	)

	// NotificationsTotal counts alert deliveries by channel and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of alert deliveries",
		},
		[]string{"channel", "result"},
	)

	// ChannelCircuitState is the circuit state of each alert channel:
	// 0 closed, 1 half-open, 2 open.
	ChannelCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_circuit_state",
			Help:      "Circuit breaker state per alert channel (0 closed, 1 half-open, 2 open)",
		},
		[]string{"channel"},
	)
)

// Pass metrics describe the most recent scheduler pass.
var (
	// LastPassTimestamp is the unix time at which the last pass completed.
	LastPassTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix timestamp of the last completed scheduler pass",
		},
	)

	// LastPassDuration is the wall time of the last pass.
	LastPassDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_duration_seconds",
			Help:      "Duration of the last completed scheduler pass",
		},
	)

	// JobsTotal is the number of registered jobs seen by the last pass.
	JobsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Number of registered jobs",
		},
	)
)

// Fetch metrics track outbound HTTP requests made by the fetcher.
var (
	// FetchTotal counts fetches by result (ok, http_error, cache_hit,
	// not_modified, blocked, network_error, timeout, ...).
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Total number of fetches",
		},
		[]string{"result"},
	)

	// FetchDuration measures time spent per fetch, redirects included.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time taken to fetch a URL",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6},
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
