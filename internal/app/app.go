// Package app wires the pagefeed components together from a Config. The
// binaries under cmd/ share it so that a pass started by cron, by the
// worker or by hand runs the same stack.
package app

import (
	"fmt"
	"log/slog"

	"pagefeed/internal/config"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/infra/fetcher"
	"pagefeed/internal/infra/jobstore"
	"pagefeed/internal/infra/override"
	"pagefeed/internal/infra/scraper"
	"pagefeed/internal/usecase/job"
	"pagefeed/internal/usecase/notify"
	"pagefeed/internal/usecase/refresh"
	"pagefeed/internal/usecase/scheduler"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Fetcher   *fetcher.Client
	Jobs      *jobstore.Store
	Feeds     *jobstore.Publisher
	Overrides *override.Table
	Refresher *refresh.Service
	Notify    *notify.Service
	Scheduler *scheduler.Scheduler
	Register  *job.Service
}

// New builds every component described by cfg. Directories are created
// as needed. A missing override file means no overrides; an invalid one is
// an error.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	client, err := fetcher.New(cfg.Fetcher, fetcher.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	a.Fetcher = client

	if a.Jobs, err = jobstore.NewStore(cfg.JobDir, logger); err != nil {
		return nil, err
	}
	if a.Feeds, err = jobstore.NewPublisher(cfg.FeedDir, cfg.FeedBaseURL); err != nil {
		return nil, err
	}

	a.Refresher = &refresh.Service{
		Fetcher:        client,
		Extractor:      extractor.New(client, extractor.WithLogger(logger)),
		Builder:        feed.NewBuilder(),
		Validator:      feed.NewValidator(),
		Publisher:      a.Feeds,
		Scrapers:       scraper.NewScraperFactory(client).CreateScrapers(),
		AlertThreshold: cfg.DiagnosticsThreshold,
		EnrichBudget:   cfg.EnrichBudget,
		Logger:         logger,
	}
	if cfg.OverridesFile != "" {
		table, err := override.Load(cfg.OverridesFile)
		if err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
		a.Overrides = table
		a.Refresher.Overrides = table
		logger.Info("override table loaded",
			slog.String("path", cfg.OverridesFile),
			slog.Int("entries", table.Len()))
	}

	a.Notify = notify.NewService(notify.NewDeliverers(cfg.Channels), cfg.Notify, logger)
	logger.Info("notification channels initialized", slog.Any("channels", a.Notify.Channels()))

	a.Scheduler = &scheduler.Scheduler{
		Jobs:          a.Jobs,
		Feeds:         a.Feeds,
		Refresher:     a.Refresher,
		MonitorState:  jobstore.NewJSONFile(cfg.MonitorStatePath),
		MonitorConfig: cfg.Monitor,
		Config:        cfg.Scheduler,
		Logger:        logger,
	}
	a.wireNotifier()

	a.Register = &job.Service{
		Jobs:            a.Jobs,
		Feeds:           a.Feeds,
		Fetcher:         client,
		DefaultInterval: cfg.DefaultInterval,
		Logger:          logger,
	}
	return a, nil
}

// WithoutChannel stops alert delivery over the named channel for the rest
// of the process.
func (a *App) WithoutChannel(name string) {
	a.Notify = a.Notify.Without(name)
	a.wireNotifier()
}

// wireNotifier leaves the scheduler without a notifier when no channel is
// configured, so alerts are logged instead of failing delivery.
func (a *App) wireNotifier() {
	if len(a.Notify.Channels()) == 0 {
		a.Scheduler.Notifier = nil
		return
	}
	a.Scheduler.Notifier = a.Notify
}
