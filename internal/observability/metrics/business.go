package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecordRefresh records the outcome of a single job refresh.
// Result should be "success", "failure" or "demoted"; path is the refresh
// path that produced the outcome.
func RecordRefresh(result, path string, duration time.Duration) {
	RefreshTotal.WithLabelValues(result, path).Inc()
	RefreshDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordDemotion records a native job switched to custom mode.
func RecordDemotion() {
	RefreshTotal.WithLabelValues("demoted", "native").Inc()
}

// RecordItemsPublished records the item count of a published feed.
func RecordItemsPublished(count int) {
	ItemsPublished.Observe(float64(count))
}

// RecordPurge records purged jobs.
func RecordPurge(count int) {
	if count > 0 {
		JobsPurgedTotal.Add(float64(count))
	}
}

// RecordAlert records an emitted monitor alert.
func RecordAlert(kind string) {
	AlertsTotal.WithLabelValues(kind).Inc()
}

// RecordNotification records one alert delivery attempt on a channel.
func RecordNotification(channel string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsTotal.WithLabelValues(channel, result).Inc()
}

// RecordCircuitState records the circuit state of an alert channel.
func RecordCircuitState(channel string, state int) {
	ChannelCircuitState.WithLabelValues(channel).Set(float64(state))
}

// RecordFetch records one fetch and its wall time.
//
// Example:
//
//	start := time.Now()
//	resp, err := client.Get(ctx, url, opts)
//	metrics.RecordFetch(resultOf(resp, err), time.Since(start))
func RecordFetch(result string, duration time.Duration) {
	FetchTotal.WithLabelValues(result).Inc()
	FetchDuration.Observe(duration.Seconds())
}

// RecordPass records the completion of a scheduler pass.
func RecordPass(finished time.Time, duration time.Duration, jobs int) {
	LastPassTimestamp.Set(float64(finished.Unix()))
	LastPassDuration.Set(duration.Seconds())
	JobsTotal.Set(float64(jobs))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for the node-exporter textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(prometheus.DefaultGatherer, path)
}

// WriteTextfileFrom is WriteTextfile for an explicit gatherer.
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
