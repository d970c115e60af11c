// Package scraper provides the bespoke scrape routines used by site overrides
// for pages that publish no usable feed and defeat generic extraction.
package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/usecase/fetch"
)

const htmlAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"

// Scraper turns one page into feed items for a site override.
// Pages are fetched through the SSRF-safe fetcher.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string, config entity.ScraperConfig) ([]entity.Item, error)
}

// fetchPage fetches pageURL and returns its UTF-8 body and final URL.
func fetchPage(ctx context.Context, f fetch.Fetcher, pageURL string) ([]byte, string, error) {
	resp, err := f.Get(ctx, pageURL, fetch.Options{UseCache: true, Accept: htmlAccept})
	if err != nil {
		return nil, "", err
	}
	if !resp.OK {
		return nil, "", &entity.TransientFetchError{Code: entity.CodeHTTPStatus, URL: pageURL, Status: resp.Status}
	}
	body, _ := encoding.NormalizeHTML(resp.Body, resp.ContentType())
	final := resp.FinalURL
	if final == "" {
		final = pageURL
	}
	return body, final, nil
}

// makeAbsoluteURL converts a relative URL to absolute using the given prefix,
// or against the page URL when no prefix is configured.
func makeAbsoluteURL(urlStr, prefix, pageURL string) string {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return ""
	}
	// Already absolute
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}

	if prefix != "" {
		// Ensure prefix ends without slash and URL starts without slash for proper joining
		return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(urlStr, "/")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

var fallbackDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// parseDate normalizes dateStr to RFC 3339 using format, then a list of
// common layouts. Unparseable input is returned trimmed so that renderers can
// make their own attempt; an empty string means no date.
func parseDate(dateStr, format string) string {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return ""
	}
	if format != "" {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	for _, layout := range fallbackDateFormats {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	slog.Debug("keeping unparsed date",
		slog.String("date_str", dateStr),
		slog.String("format", format))
	return dateStr
}

// dedupe drops items without a title or link and repeated links.
func dedupe(items []entity.Item) []entity.Item {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if it.Title == "" || it.Link == "" {
			continue
		}
		key := it.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// stringField returns the first non-empty string value among keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
