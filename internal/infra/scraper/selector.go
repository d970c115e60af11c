package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/usecase/fetch"
)

// SelectorScraper scrapes server-rendered listing pages (Webflow and similar
// CMS exports) with operator-supplied CSS selectors. Unlike job selectors,
// override selectors are trusted and may use the full CSS syntax.
type SelectorScraper struct {
	fetcher fetch.Fetcher
}

// NewSelectorScraper creates a SelectorScraper fetching through f.
func NewSelectorScraper(f fetch.Fetcher) *SelectorScraper {
	return &SelectorScraper{fetcher: f}
}

// Scrape fetches pageURL and extracts one item per ItemSelector match.
func (s *SelectorScraper) Scrape(ctx context.Context, pageURL string, config entity.ScraperConfig) ([]entity.Item, error) {
	if config.ItemSelector == "" {
		return nil, fmt.Errorf("selector %s: item_selector is required: %w", pageURL, entity.ErrInvalidInput)
	}

	body, finalURL, err := fetchPage(ctx, s.fetcher, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("selector %s: parse HTML: %w", pageURL, err)
	}

	if doc.Find(config.ItemSelector).Length() == 0 {
		return nil, fmt.Errorf("selector %s: no elements match %q: %w", pageURL, config.ItemSelector, entity.ErrUnrecognizedPage)
	}
	return dedupe(s.extractItems(doc, config, finalURL)), nil
}

// extractItems extracts feed items from the HTML document using CSS selectors.
func (s *SelectorScraper) extractItems(doc *goquery.Document, config entity.ScraperConfig, pageURL string) []entity.Item {
	var items []entity.Item

	doc.Find(config.ItemSelector).Each(func(i int, itemEl *goquery.Selection) {
		title := itemEl.Text()
		if config.TitleSelector != "" {
			title = itemEl.Find(config.TitleSelector).First().Text()
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			slog.Debug("skipping item with empty title", slog.Int("index", i))
			return
		}

		itemURL := makeAbsoluteURL(itemHref(itemEl, config.URLSelector), config.URLPrefix, pageURL)
		if itemURL == "" {
			slog.Debug("skipping item with empty URL", slog.Int("index", i), slog.String("title", title))
			return
		}

		var dateStr string
		if config.DateSelector != "" {
			dateEl := itemEl.Find(config.DateSelector).First()
			if dt, ok := dateEl.Attr("datetime"); ok {
				dateStr = dt
			} else {
				dateStr = dateEl.Text()
			}
		}

		items = append(items, entity.Item{
			Title: title,
			Link:  itemURL,
			Date:  parseDate(dateStr, config.DateFormat),
		})
	})

	return items
}

// itemHref returns the link of an item element: the href of the URL selector
// match, the item itself when it is an anchor, or its first anchor.
func itemHref(itemEl *goquery.Selection, urlSelector string) string {
	if urlSelector != "" {
		href, _ := itemEl.Find(urlSelector).First().Attr("href")
		return href
	}
	if goquery.NodeName(itemEl) == "a" {
		href, _ := itemEl.Attr("href")
		return href
	}
	href, _ := itemEl.Find("a[href]").First().Attr("href")
	return href
}
