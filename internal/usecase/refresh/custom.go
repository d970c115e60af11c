package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/infra/override"
	"pagefeed/internal/usecase/fetch"
)

const pageAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// refreshCustom synthesises the feed from the source page, unless an
// override or a feed-shaped source takes over.
func (s *Service) refreshCustom(ctx context.Context, job *entity.Job, res *Result) error {
	if s.Overrides != nil {
		if m, ok := s.Overrides.Lookup(job.SourceURL); ok {
			res.Path = PathOverride
			res.OverrideKey = m.Entry.Key
			return s.refreshOverride(ctx, job, m, res)
		}
	}
	res.Path = PathCustom

	resp, err := s.Fetcher.Get(ctx, job.SourceURL, fetch.Options{UseCache: true, Accept: pageAccept})
	if err != nil {
		return fmt.Errorf("custom refresh: %w", err)
	}
	res.HTTPStatus = resp.Status
	if !resp.OK {
		return statusError(job.SourceURL, resp.Status)
	}
	pageURL := resp.FinalURL
	if pageURL == "" {
		pageURL = job.SourceURL
	}

	if format, body := SniffFeed(resp.Body, resp.ContentType()); format != "" {
		return s.passThrough(job, format, body, res)
	}

	body, _ := encoding.NormalizeHTML(resp.Body, resp.ContentType())
	items, err := s.Extractor.Extract(ctx, body, pageURL, job.Limit, s.extractOptions(job))
	if err != nil {
		return fmt.Errorf("extract %s: %w", pageURL, err)
	}

	page := extractor.PageMetadata(body, "text/html; charset=utf-8", pageURL)
	meta := feed.Meta{
		Title:       page.Title,
		Link:        pageURL,
		Description: page.Description,
		FeedURL:     job.FeedURL,
	}
	return s.publishItems(job, meta, items, res)
}

func (s *Service) extractOptions(job *entity.Job) extractor.Options {
	opts := extractor.Options{Selectors: job.Selectors}
	if s.EnrichBudget >= 0 {
		opts.Enrich = true
		opts.EnrichBudget = s.EnrichBudget
	}
	return opts
}

// passThrough publishes a source that is already a feed. A feed in the
// job's format is published verbatim; any other format, including Atom for
// an RSS job, is converted into the job's format.
func (s *Service) passThrough(job *entity.Job, format entity.Format, body []byte, res *Result) error {
	if format == job.Format {
		res.Note = fmt.Sprintf("source is a %s feed; published as is", format)
		return s.publishVerbatim(job, format, body, res)
	}

	items, meta, err := feed.ParseItems(body)
	if err != nil {
		return fmt.Errorf("parse %s source feed: %w", format, err)
	}
	meta.FeedURL = job.FeedURL
	if meta.Link == "" {
		meta.Link = job.SourceURL
	}
	res.Note = fmt.Sprintf("source is a %s feed; converted to %s", format, job.Format)
	return s.publishItems(job, meta, items, res)
}

// refreshOverride runs a matched site override.
func (s *Service) refreshOverride(ctx context.Context, job *entity.Job, m override.Match, res *Result) error {
	if m.Entry.Kind == override.KindNative {
		resp, err := s.Fetcher.Get(ctx, m.NativeURL, fetch.Options{UseCache: true, Accept: feedAccept})
		if err != nil {
			return fmt.Errorf("override %s: %w", m.Entry.Key, err)
		}
		res.HTTPStatus = resp.Status
		if !resp.OK {
			return statusError(m.NativeURL, resp.Status)
		}
		format, body := SniffFeed(resp.Body, resp.ContentType())
		if format == "" {
			return fmt.Errorf("override %s: %s is not a feed: %w", m.Entry.Key, m.NativeURL, entity.ErrUnrecognizedPage)
		}
		return s.passThrough(job, format, body, res)
	}

	sc, ok := s.Scrapers[string(m.Entry.Kind)]
	if !ok {
		return fmt.Errorf("override %s: no scraper for kind %q", m.Entry.Key, m.Entry.Kind)
	}
	items, err := sc.Scrape(ctx, job.SourceURL, m.Entry.ScraperConfig)
	if err != nil {
		return fmt.Errorf("override %s: %w", m.Entry.Key, err)
	}
	meta := feed.Meta{
		Title:   hostOf(job.SourceURL),
		Link:    job.SourceURL,
		FeedURL: job.FeedURL,
	}
	return s.publishItems(job, meta, items, res)
}

// publishItems filters items, applies the empty-result policy, then
// renders, validates and publishes the feed.
func (s *Service) publishItems(job *entity.Job, meta feed.Meta, items []entity.Item, res *Result) error {
	extracted := len(items)
	items = FilterItems(items, job.IncludeKeywords, job.ExcludeKeywords)
	if len(items) > job.Limit {
		items = items[:job.Limit]
	}

	if len(items) == 0 {
		emptyErr := &entity.ExtractionEmptyError{SourceURL: job.SourceURL, Extracted: extracted}
		switch job.AllowEmpty.Effective() {
		case entity.EmptyFail:
			return emptyErr
		case entity.EmptyKeep:
			if !s.Publisher.Exists(job.FeedFilename) {
				return emptyErr
			}
			res.Note = joinNotes(res.Note, "no items; kept previous feed")
			s.logger().Info("no items, keeping previous feed",
				slog.String("job_id", job.ID),
				slog.Int("extracted", extracted))
			return nil
		case entity.EmptyPublish:
			res.Note = joinNotes(res.Note, "no items; published empty feed")
		}
	}

	fillMeta(&meta, job)
	body, err := s.Builder.Build(job.Format, meta, items)
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}
	vr := s.Validator.Validate(job.Format, body)
	if !vr.OK {
		return vr.Err(job.Format)
	}
	if err := s.Publisher.Publish(job.FeedFilename, body); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}

	res.Published = true
	res.Items = len(items)
	res.Bytes = len(body)
	res.Warnings = vr.Warnings
	return nil
}

func fillMeta(meta *feed.Meta, job *entity.Job) {
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = hostOf(job.SourceURL)
	}
	if meta.Link == "" {
		meta.Link = job.SourceURL
	}
	if strings.TrimSpace(meta.Description) == "" {
		meta.Description = "Feed generated from " + job.SourceURL
	}
	if meta.FeedURL == "" {
		meta.FeedURL = job.FeedURL
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}

