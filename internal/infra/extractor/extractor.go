// Package extractor turns an HTML page into an ordered list of feed items.
//
// Extraction runs a fixed pipeline of named strategies and stops as soon as
// the requested number of items has been collected:
//
//  1. jsonld    - schema.org ItemList and Article nodes in ld+json blocks
//  2. platform  - embedded client state of recognised hosting platforms
//  3. selector  - job-supplied CSS selectors (restricted subset)
//  4. heuristic - structural DOM queries with chrome and URL filters
//
// Items are deduplicated by lower-cased absolute link; the first occurrence
// wins, so earlier strategies take precedence. An optional enrichment pass
// then fetches a bounded number of item pages to fill missing metadata.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/usecase/fetch"
)

// DefaultEnrichBudget is the number of item pages fetched by enrichment.
const DefaultEnrichBudget = 6

// Page is the parsed input shared by all strategies.
type Page struct {
	Doc       *goquery.Document
	Base      *url.URL
	Selectors *entity.Selectors
}

// Strategy is one named extraction technique.
type Strategy interface {
	Name() string
	// Extract returns candidate items in document order. Links may be
	// relative; the pipeline resolves and filters them.
	Extract(p *Page, limit int) []entity.Item
}

// Options tunes a single extraction.
type Options struct {
	// Selectors enables the selector strategy.
	Selectors *entity.Selectors

	// Enrich fetches item pages to fill missing metadata.
	Enrich bool

	// EnrichBudget bounds the number of fetched item pages.
	// Zero uses DefaultEnrichBudget.
	EnrichBudget int
}

// Extractor runs the strategy pipeline. It is safe for concurrent use.
type Extractor struct {
	fetcher    fetch.Fetcher
	strategies []Strategy
	logger     *slog.Logger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) { e.strategies = strategies }
}

// DefaultStrategies returns the standard pipeline in precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		JSONLDStrategy{},
		PlatformStrategy{},
		SelectorStrategy{},
		HeuristicStrategy{},
	}
}

// New creates an Extractor. fetcher is used by enrichment only and may be
// nil when enrichment is never requested.
func New(fetcher fetch.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:    fetcher,
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns at most limit items found in body, each with an absolute
// http(s) link. body must already be UTF-8.
func (e *Extractor) Extract(ctx context.Context, body []byte, baseURL string, limit int, opts Options) ([]entity.Item, error) {
	items, _, err := e.run(ctx, body, baseURL, limit, opts)
	return items, err
}

// run is Extract plus the names of the strategies that were executed.
func (e *Extractor) run(ctx context.Context, body []byte, baseURL string, limit int, opts Options) ([]entity.Item, []string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, nil, &entity.InputError{Field: "base_url", Message: fmt.Sprintf("invalid base URL %q", baseURL)}
	}
	if opts.Selectors != nil && opts.Selectors.Item != "" {
		if err := ValidateSelectors(*opts.Selectors); err != nil {
			return nil, nil, err
		}
	}
	limit = entity.ClampLimit(limit)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse HTML: %w", err)
	}
	// <base href> changes how relative links resolve.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil && isHTTP(b) {
			base = b
		}
	}

	page := &Page{Doc: doc, Base: base, Selectors: opts.Selectors}
	seen := map[string]struct{}{canonicalKey(base.String()): {}}
	var (
		items []entity.Item
		ran   []string
	)

	for _, s := range e.strategies {
		if len(items) >= limit {
			break
		}
		ran = append(ran, s.Name())

		found := 0
		for _, it := range s.Extract(page, limit) {
			it, ok := normalizeItem(it, base)
			if !ok {
				continue
			}
			key := it.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, it)
			found++
			if len(items) >= limit {
				break
			}
		}

		e.logger.Debug("extraction strategy finished",
			slog.String("strategy", s.Name()),
			slog.String("url", baseURL),
			slog.Int("items", found))
	}

	if opts.Enrich && len(items) > 0 && e.fetcher != nil {
		budget := opts.EnrichBudget
		if budget <= 0 {
			budget = DefaultEnrichBudget
		}
		items = e.enrich(ctx, items, budget)
	}

	return items, ran, nil
}

// normalizeItem resolves the link against base and trims text fields.
// Items without a usable title or http(s) link are rejected.
func normalizeItem(it entity.Item, base *url.URL) (entity.Item, bool) {
	link := absoluteURL(base, it.Link)
	if link == "" {
		return it, false
	}
	it.Link = link
	it.Title = collapseSpace(it.Title)
	it.Description = collapseSpace(it.Description)
	it.Author = collapseSpace(it.Author)
	it.Date = strings.TrimSpace(it.Date)
	if it.Image != "" {
		it.Image = absoluteURL(base, it.Image)
	}
	if it.ContentHTML != "" {
		it.ContentHTML = Sanitize(it.ContentHTML, base)
	}
	if it.Title == "" {
		return it, false
	}
	return it, true
}

// absoluteURL resolves ref against base and returns "" unless the result
// is an http(s) URL. Fragments are dropped.
func absoluteURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || !isHTTP(u) || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

func canonicalKey(link string) string {
	return entity.Item{Link: link}.DedupKey()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateWords shortens s to at most max runes on a word boundary.
func truncateWords(s string, max int) string {
	s = collapseSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:.-") + "…"
}
