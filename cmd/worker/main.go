// Command worker runs scheduler passes on a cron schedule and serves
// health and Prometheus endpoints until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"pagefeed/internal/app"
	"pagefeed/internal/config"
	workerPkg "pagefeed/internal/infra/worker"
	"pagefeed/internal/observability/logging"
)

func main() {
	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics(nil)
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("pass_timeout", workerConfig.PassTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", slog.Any("error", err))
		os.Exit(1)
	}

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, workerPkg.WithChannels(a.Notify))
	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runner := workerPkg.NewRunner(func(ctx context.Context) (int, error) {
		report, err := a.Scheduler.RunPass(ctx)
		if err != nil {
			return 0, err
		}
		return report.Refreshed, nil
	}, workerConfig.PassTimeout, workerMetrics, logger)

	c := cron.New(cron.WithLocation(workerConfig.Location()))
	if _, err := runner.Schedule(ctx, c, workerConfig.CronSchedule); err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	if workerConfig.RunOnStart {
		go runner.Tick(ctx)
	}

	// Mark as ready after cron is set up
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone))

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for the running pass")
	healthServer.SetReady(false)
	<-c.Stop().Done()
	// The startup pass is not tracked by cron.
	runner.Wait()
	<-healthDone
	logger.Info("worker stopped")
}
