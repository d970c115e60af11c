// Package observability groups the logging and metrics infrastructure of
// pagefeed.
//
// Subpackages:
//   - logging: slog construction with optional rotating file sink
//   - metrics: Prometheus metrics registry, recorders and textfile export
//
// Example usage:
//
//	import (
//	    "pagefeed/internal/observability/logging"
//	    "pagefeed/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger, closer, _ := logging.New(logging.OptionsFromEnv())
//	    defer closer.Close()
//	    logger.Info("pass started")
//
//	    metrics.RecordPurge(2)
//	}
package observability
