package scraper

import (
	"pagefeed/internal/usecase/fetch"
)

// ScraperFactory creates scraper instances for the override kinds.
type ScraperFactory struct {
	fetcher fetch.Fetcher
}

// NewScraperFactory creates a new ScraperFactory fetching through f.
func NewScraperFactory(f fetch.Fetcher) *ScraperFactory {
	return &ScraperFactory{fetcher: f}
}

// CreateScrapers returns the scrapers keyed by override kind
// ("nextjs", "remix", "selector").
func (f *ScraperFactory) CreateScrapers() map[string]Scraper {
	return map[string]Scraper{
		"nextjs":   NewNextJSScraper(f.fetcher),
		"remix":    NewRemixScraper(f.fetcher),
		"selector": NewSelectorScraper(f.fetcher),
	}
}
