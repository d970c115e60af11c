// Package logging provides structured logging utilities with context propagation.
//
// Records go to stdout, to a rotating log file, or both. The refresh CLI's
// --quiet flag keeps only the file.
//
// Example usage:
//
//	logger, closer, err := logging.New(logging.Options{Level: "info", File: "logs/refresh.log", Quiet: true})
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//	logger.Info("pass finished", slog.Int("refreshed", n))
package logging
