package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/usecase/fetch"
)

// DefaultNextJSDataKey is the pageProps key read when the override sets none.
const DefaultNextJSDataKey = "initialSeedData"

// NextJSScraper scrapes Next.js pages that embed their data in the
// __NEXT_DATA__ script tag.
type NextJSScraper struct {
	fetcher fetch.Fetcher
}

// NewNextJSScraper creates a NextJSScraper fetching through f.
func NewNextJSScraper(f fetch.Fetcher) *NextJSScraper {
	return &NextJSScraper{fetcher: f}
}

// Scrape fetches pageURL and maps props.pageProps[DataKey] into items.
// The data key may hold an object with an "items" array or the array itself.
func (n *NextJSScraper) Scrape(ctx context.Context, pageURL string, config entity.ScraperConfig) ([]entity.Item, error) {
	body, finalURL, err := fetchPage(ctx, n.fetcher, pageURL)
	if err != nil {
		return nil, err
	}

	jsonData, err := n.extractJSON(body)
	if err != nil {
		return nil, fmt.Errorf("nextjs %s: %w", pageURL, err)
	}

	items, err := n.parseItems(jsonData, config, finalURL)
	if err != nil {
		return nil, fmt.Errorf("nextjs %s: %w", pageURL, err)
	}
	return dedupe(items), nil
}

// extractJSON extracts and parses JSON from the __NEXT_DATA__ script tag.
func (n *NextJSScraper) extractJSON(body []byte) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	jsonText := doc.Find("script#__NEXT_DATA__").First().Text()
	if jsonText == "" {
		return nil, fmt.Errorf("__NEXT_DATA__ script tag not found: %w", entity.ErrUnrecognizedPage)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(jsonText), &data); err != nil {
		return nil, fmt.Errorf("parse __NEXT_DATA__: %v: %w", err, entity.ErrUnrecognizedPage)
	}
	return data, nil
}

// parseItems navigates props.pageProps[dataKey] and converts each entry.
func (n *NextJSScraper) parseItems(jsonData map[string]any, config entity.ScraperConfig, pageURL string) ([]entity.Item, error) {
	props, ok := jsonData["props"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("props not found in JSON: %w", entity.ErrUnrecognizedPage)
	}
	pageProps, ok := props["pageProps"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pageProps not found in JSON: %w", entity.ErrUnrecognizedPage)
	}

	dataKey := config.DataKey
	if dataKey == "" {
		dataKey = DefaultNextJSDataKey
	}

	var itemsArray []any
	switch seed := pageProps[dataKey].(type) {
	case []any:
		itemsArray = seed
	case map[string]any:
		itemsArray, ok = seed["items"].([]any)
		if !ok {
			return nil, fmt.Errorf("items array not found in %s: %w", dataKey, entity.ErrUnrecognizedPage)
		}
	default:
		return nil, fmt.Errorf("%s not found in pageProps: %w", dataKey, entity.ErrUnrecognizedPage)
	}

	items := make([]entity.Item, 0, len(itemsArray))
	for i, itemData := range itemsArray {
		itemMap, ok := itemData.(map[string]any)
		if !ok {
			slog.Warn("skipping non-object item", slog.Int("index", i))
			continue
		}

		title := stringField(itemMap, "title", "name", "headline")
		if title == "" {
			slog.Debug("skipping item with empty title", slog.Int("index", i))
			continue
		}

		slug := stringField(itemMap, "slug", "url", "href", "path")
		itemURL := makeAbsoluteURL(slug, config.URLPrefix, pageURL)
		if itemURL == "" {
			slog.Debug("skipping item with empty slug", slog.Int("index", i), slog.String("title", title))
			continue
		}

		items = append(items, entity.Item{
			Title:       title,
			Link:        itemURL,
			Description: stringField(itemMap, "summary", "description", "excerpt"),
			Date:        parseDate(stringField(itemMap, "publishedOn", "publishedAt", "date"), config.DateFormat),
		})
	}
	return items, nil
}
