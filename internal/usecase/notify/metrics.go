package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pagefeed/internal/observability/metrics"
)

// Prometheus metrics for alert delivery
var (
	// deliveryDuration tracks delivery duration per channel, retries included
	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pagefeed",
			Name:      "notification_duration_seconds",
			Help:      "Alert delivery duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	// alertsDelivered counts alerts carried by successful deliveries
	alertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagefeed",
			Name:      "notification_alerts_delivered_total",
			Help:      "Total number of alerts carried by successful deliveries",
		},
		[]string{"channel"},
	)
)

// recordDelivery records one delivery attempt on a channel.
func recordDelivery(channel string, alerts int, duration time.Duration, err error) {
	metrics.RecordNotification(channel, err)
	deliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if err == nil {
		alertsDelivered.WithLabelValues(channel).Add(float64(alerts))
	}
}
