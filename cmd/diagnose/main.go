// Command diagnose fetches the source of every registered job (or the
// jobs named with --job) and reports whether it would refresh, without
// publishing anything or touching job state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"

	"pagefeed/internal/app"
	"pagefeed/internal/config"
	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/observability/logging"
	"pagefeed/internal/usecase/diagnose"
)

type options struct {
	Jobs    []string      `long:"job" description:"Diagnose only this job ID (repeatable)"`
	JSON    bool          `long:"json" description:"Print the diagnostics as JSON"`
	Timeout time.Duration `long:"timeout" default:"30s" description:"Per-source timeout"`
	Strict  bool          `long:"strict" description:"Exit with status 3 when any source is unhealthy"`
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

	jobs, err := selectJobs(ctx, a, opts.Jobs)
	if err != nil {
		logger.Error("failed to load jobs", slog.Any("error", err))
		return 1
	}
	logger.Info("diagnosing jobs", slog.Int("count", len(jobs)))

	d := &diagnose.Diagnoser{
		Fetcher:   a.Fetcher,
		Extractor: extractor.New(a.Fetcher, extractor.WithLogger(logger)),
		Timeout:   opts.Timeout,
	}
	diags := d.DiagnoseAll(ctx, jobs)

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diags); err != nil {
			fmt.Fprintf(os.Stderr, "encode diagnostics: %v\n", err)
			return 1
		}
	} else if err := writeReport(os.Stdout, diags); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		return 1
	}

	if opts.Strict {
		for _, diag := range diags {
			if !diag.Healthy() {
				return 3
			}
		}
	}
	return 0
}

func selectJobs(ctx context.Context, a *app.App, ids []string) ([]*entity.Job, error) {
	if len(ids) == 0 {
		return a.Jobs.List(ctx)
	}
	jobs := make([]*entity.Job, 0, len(ids))
	for _, id := range ids {
		job, err := a.Jobs.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func writeReport(w io.Writer, diags []diagnose.Diagnostic) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "JOB\tSTATUS\tHTTP\tTYPE\tITEMS\tLATEST\tMS\tSTREAK\tURL"); err != nil {
		return err
	}
	for _, d := range diags {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%d\t%d\t%s\n",
			d.JobID, d.Status, d.HTTPCode, d.SourceType, d.ItemCount, d.LatestDate,
			d.ResponseTime, d.FailureStreak, d.URL); err != nil {
			return err
		}
		if d.ErrorMessage != "" {
			if _, err := fmt.Fprintf(tw, "\t  %s\n", d.ErrorMessage); err != nil {
				return err
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := diagnose.Summary(diags)
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	if _, err := fmt.Fprintf(w, "\n%d sources:", len(diags)); err != nil {
		return err
	}
	for _, s := range statuses {
		if _, err := fmt.Fprintf(w, " %s=%d", s, counts[s]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
