package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pagefeed/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for worker mode:
//   - worker_config_*: configuration loads and fallbacks
//   - worker_pass_runs_total{status}: passes by status (success, failure, skipped)
//   - worker_pass_duration_seconds: pass duration
//   - worker_jobs_refreshed_total: jobs refreshed across passes
//   - worker_last_success_timestamp: Unix time of the last successful pass
type WorkerMetrics struct {
	Config *config.ConfigMetrics

	PassRunsTotal        *prometheus.CounterVec
	PassDurationSeconds  prometheus.Histogram
	JobsRefreshedTotal   prometheus.Counter
	LastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates and registers the worker metrics with reg. A nil
// reg selects the default registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &WorkerMetrics{
		Config: config.NewConfigMetrics("worker", reg),

		PassRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_pass_runs_total",
			Help: "Total number of scheduler passes by status (success/failure/skipped)",
		}, []string{"status"}),

		PassDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_pass_duration_seconds",
			Help:    "Duration of scheduler passes in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		JobsRefreshedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_refreshed_total",
			Help: "Total number of jobs refreshed across all passes",
		}),

		LastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduler pass",
		}),
	}
}

// RecordPassRun increments the pass counter for status.
func (m *WorkerMetrics) RecordPassRun(status string) {
	m.PassRunsTotal.WithLabelValues(status).Inc()
}

// RecordPassDuration observes the duration of a pass in seconds.
func (m *WorkerMetrics) RecordPassDuration(seconds float64) {
	m.PassDurationSeconds.Observe(seconds)
}

// RecordJobsRefreshed adds the jobs refreshed by one pass.
func (m *WorkerMetrics) RecordJobsRefreshed(count int) {
	m.JobsRefreshedTotal.Add(float64(count))
}

// RecordLastSuccess records the current time as the last successful pass.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.LastSuccessTimestamp.SetToCurrentTime()
}
