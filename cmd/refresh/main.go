// Command refresh runs one scheduler pass over every registered job. It is
// meant to be invoked by cron.
//
// Exit status is 0 when the pass completed, even if some jobs failed. It is
// 2 when another pass holds the run lock and 1 when the configuration or a
// resource (job store, monitor state) is unusable.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"pagefeed/internal/app"
	"pagefeed/internal/config"
	"pagefeed/internal/domain/entity"
	"pagefeed/internal/observability/logging"
	"pagefeed/internal/observability/metrics"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitLocked  = 2
)

type options struct {
	MaxJobs     int    `long:"max-jobs" description:"Refresh at most this many due jobs; the rest wait for the next pass (0 keeps PAGEFEED_MAX_JOBS)"`
	Quiet       bool   `short:"q" long:"quiet" description:"Suppress console logging; LOG_FILE still receives every record"`
	NoEmail     bool   `long:"no-email" description:"Do not deliver alerts by email during this pass"`
	DryRun      bool   `long:"dry-run" description:"Log the jobs that are due without refreshing, purging or alerting"`
	MetricsFile string `long:"metrics-file" env:"PAGEFEED_METRICS_FILE" description:"Write pass metrics in Prometheus text format to this file"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		return exitFailure
	}
	if opts.MaxJobs < 0 {
		fmt.Fprintf(os.Stderr, "--max-jobs must not be negative, got %d\n", opts.MaxJobs)
		return exitFailure
	}

	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}
	if opts.MaxJobs > 0 {
		cfg.Scheduler.MaxJobs = opts.MaxJobs
	}
	cfg.Scheduler.DryRun = opts.DryRun

	logOpts := cfg.Logging
	logOpts.Quiet = opts.Quiet
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", slog.Any("error", err))
		return exitFailure
	}
	if opts.NoEmail {
		a.WithoutChannel("email")
	}

	report, err := a.Scheduler.RunPass(ctx)
	if opts.MetricsFile != "" {
		if werr := metrics.WriteTextfile(opts.MetricsFile); werr != nil {
			logger.Warn("failed to write metrics file", slog.Any("error", werr))
		}
	}

	switch {
	case errors.Is(err, entity.ErrLockHeld):
		logger.Warn("another pass is running, exiting")
		return exitLocked
	case err != nil:
		logger.Error("pass failed", slog.Any("error", err))
		return exitFailure
	}

	logger.Info("pass finished",
		slog.Int("jobs", report.Jobs),
		slog.Int("due", report.Due),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("deferred", report.Deferred),
		slog.Int("purged", len(report.Purged)),
		slog.Int("alerts", len(report.Alerts)),
		slog.Duration("duration", report.Duration))
	return exitOK
}
