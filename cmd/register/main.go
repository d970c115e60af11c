// Command register registers a page as a feed job and prints the job as
// JSON.
//
//	register --format atom --prefer-native https://example.com/news
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"pagefeed/internal/app"
	"pagefeed/internal/config"
	"pagefeed/internal/domain/entity"
	"pagefeed/internal/observability/logging"
	"pagefeed/internal/usecase/job"
)

type options struct {
	Format       string        `short:"f" long:"format" default:"rss" choice:"rss" choice:"atom" choice:"json" description:"Output feed format"`
	Limit        int           `short:"n" long:"limit" description:"Maximum number of items (0 selects the default)"`
	PreferNative bool          `long:"prefer-native" description:"Republish the site's own feed when it advertises one in the requested format"`
	Include      []string      `long:"include" description:"Keep only items mentioning this keyword (repeatable)"`
	Exclude      []string      `long:"exclude" description:"Drop items mentioning this keyword (repeatable)"`
	AllowEmpty   string        `long:"allow-empty" choice:"keep" choice:"publish" choice:"fail" description:"What to do when no item survives"`
	Interval     time.Duration `long:"interval" description:"Refresh interval (default PAGEFEED_DEFAULT_INTERVAL)"`

	ItemSelector    string `long:"item-selector" description:"CSS selector of one item"`
	TitleSelector   string `long:"title-selector" description:"CSS selector of the title within an item"`
	LinkSelector    string `long:"link-selector" description:"CSS selector of the link within an item"`
	SummarySelector string `long:"summary-selector" description:"CSS selector of the summary within an item"`
	DateSelector    string `long:"date-selector" description:"CSS selector of the date within an item"`

	Args struct {
		URL string `positional-arg-name:"url" description:"Page to turn into a feed"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	logOpts := cfg.Logging
	logOpts.Console = os.Stderr
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", slog.Any("error", err))
		return 1
	}

	req := job.RegisterRequest{
		SourceURL:       opts.Args.URL,
		Format:          opts.Format,
		Limit:           opts.Limit,
		PreferNative:    opts.PreferNative,
		IP:              "127.0.0.1",
		IncludeKeywords: opts.Include,
		ExcludeKeywords: opts.Exclude,
		AllowEmpty:      opts.AllowEmpty,
		RefreshInterval: opts.Interval,
	}
	if opts.ItemSelector != "" {
		req.Selectors = &entity.Selectors{
			Item:    opts.ItemSelector,
			Title:   opts.TitleSelector,
			Link:    opts.LinkSelector,
			Summary: opts.SummarySelector,
			Date:    opts.DateSelector,
		}
	}

	registered, err := a.Register.Register(ctx, req)
	var dup *job.DuplicateError
	switch {
	case errors.As(err, &dup):
		logger.Warn("job already registered", slog.String("job_id", dup.Job.ID))
		registered = dup.Job
	case err != nil:
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(registered); err != nil {
		fmt.Fprintf(os.Stderr, "encode job: %v\n", err)
		return 1
	}
	return 0
}
