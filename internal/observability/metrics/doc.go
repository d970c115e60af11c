// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - Refresh outcomes and durations per refresh path
//   - Fetch results and latency
//   - Purges, alerts and alert deliveries
//   - Scheduler pass timestamps
//
// All metrics are registered with the Prometheus default registry. The
// one-shot refresh command exports them with WriteTextfile; worker mode
// serves them on /metrics.
//
// Example usage:
//
//	import "pagefeed/internal/observability/metrics"
//
//	func refresh(job *entity.Job) {
//	    start := time.Now()
//	    // ... refresh the job ...
//	    metrics.RecordRefresh("success", "custom", time.Since(start))
//	}
package metrics
