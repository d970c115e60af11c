package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/usecase/fetch"
)

// DefaultRemixDataKey is the loaderData key read when the override sets none.
const DefaultRemixDataKey = "issues"

var remixContextRe = regexp.MustCompile(`window\.__remixContext\s*=\s*`)

// RemixScraper scrapes Remix pages that embed loader data in
// window.__remixContext.
type RemixScraper struct {
	fetcher fetch.Fetcher
}

// NewRemixScraper creates a RemixScraper fetching through f.
func NewRemixScraper(f fetch.Fetcher) *RemixScraper {
	return &RemixScraper{fetcher: f}
}

// Scrape fetches pageURL and maps routes[ContextKey].loaderData[DataKey]
// into items. Without a ContextKey the first route (in key order) carrying
// the data key is used.
func (r *RemixScraper) Scrape(ctx context.Context, pageURL string, config entity.ScraperConfig) ([]entity.Item, error) {
	body, finalURL, err := fetchPage(ctx, r.fetcher, pageURL)
	if err != nil {
		return nil, err
	}

	jsonData, err := r.extractRemixContext(string(body))
	if err != nil {
		return nil, fmt.Errorf("remix %s: %w", pageURL, err)
	}

	items, err := r.parseIssues(jsonData, config, finalURL)
	if err != nil {
		return nil, fmt.Errorf("remix %s: %w", pageURL, err)
	}
	return dedupe(items), nil
}

// extractRemixContext decodes the object literal assigned to
// window.__remixContext. Decoding stops at the end of the first JSON value,
// so trailing script text is ignored.
func (r *RemixScraper) extractRemixContext(html string) (map[string]any, error) {
	loc := remixContextRe.FindStringIndex(html)
	if loc == nil {
		return nil, fmt.Errorf("window.__remixContext not found in HTML: %w", entity.ErrUnrecognizedPage)
	}

	var data map[string]any
	dec := json.NewDecoder(strings.NewReader(html[loc[1]:]))
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("parse window.__remixContext: %v: %w", err, entity.ErrUnrecognizedPage)
	}
	return data, nil
}

// parseIssues parses feed items from the Remix context JSON.
func (r *RemixScraper) parseIssues(jsonData map[string]any, config entity.ScraperConfig, pageURL string) ([]entity.Item, error) {
	routes, ok := jsonData["routes"].(map[string]any)
	if !ok {
		// Newer Remix builds nest routes under state.loaderData.
		if state, ok := jsonData["state"].(map[string]any); ok {
			if loader, ok := state["loaderData"].(map[string]any); ok {
				routes = make(map[string]any, len(loader))
				for k, v := range loader {
					routes[k] = map[string]any{"loaderData": v}
				}
			}
		}
		if routes == nil {
			return nil, fmt.Errorf("routes not found in Remix context: %w", entity.ErrUnrecognizedPage)
		}
	}

	dataKey := config.DataKey
	if dataKey == "" {
		dataKey = DefaultRemixDataKey
	}

	contextKey := config.ContextKey
	if contextKey == "" {
		keys := make([]string, 0, len(routes))
		for k := range routes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := loaderArray(routes[key], dataKey); ok {
				contextKey = key
				break
			}
		}
		if contextKey == "" {
			return nil, fmt.Errorf("no route with loaderData.%s found: %w", dataKey, entity.ErrUnrecognizedPage)
		}
	}

	if _, ok := routes[contextKey].(map[string]any); !ok {
		return nil, fmt.Errorf("route %s not found in Remix context: %w", contextKey, entity.ErrUnrecognizedPage)
	}
	issuesArray, ok := loaderArray(routes[contextKey], dataKey)
	if !ok {
		return nil, fmt.Errorf("loaderData.%s not found in route %s: %w", dataKey, contextKey, entity.ErrUnrecognizedPage)
	}

	items := make([]entity.Item, 0, len(issuesArray))
	for i, issueData := range issuesArray {
		issueMap, ok := issueData.(map[string]any)
		if !ok {
			slog.Warn("skipping non-object issue", slog.Int("index", i))
			continue
		}

		title := stringField(issueMap, "web_title", "title", "name")
		if title == "" {
			slog.Debug("skipping issue with empty title", slog.Int("index", i))
			continue
		}

		slug := stringField(issueMap, "slug", "url", "href")
		itemURL := makeAbsoluteURL(slug, config.URLPrefix, pageURL)
		if itemURL == "" {
			slog.Debug("skipping issue with empty slug", slog.Int("index", i), slog.String("title", title))
			continue
		}

		items = append(items, entity.Item{
			Title:       title,
			Link:        itemURL,
			Description: stringField(issueMap, "web_subtitle", "subtitle", "description", "summary"),
			Date:        parseDate(stringField(issueMap, "override_scheduled_at", "publish_date", "published_at", "date"), config.DateFormat),
		})
	}
	return items, nil
}

func loaderArray(route any, dataKey string) ([]any, bool) {
	routeMap, ok := route.(map[string]any)
	if !ok {
		return nil, false
	}
	loaderData, ok := routeMap["loaderData"].(map[string]any)
	if !ok {
		return nil, false
	}
	arr, ok := loaderData[dataKey].([]any)
	return arr, ok
}
