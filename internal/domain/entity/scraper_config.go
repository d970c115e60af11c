package entity

// ScraperConfig configures a bespoke scrape routine of a site override.
type ScraperConfig struct {
	// HTML selectors (selector routine)
	ItemSelector  string `json:"item_selector,omitempty" yaml:"item_selector"`
	TitleSelector string `json:"title_selector,omitempty" yaml:"title_selector"`
	DateSelector  string `json:"date_selector,omitempty" yaml:"date_selector"`
	URLSelector   string `json:"url_selector,omitempty" yaml:"url_selector"`
	DateFormat    string `json:"date_format,omitempty" yaml:"date_format"`

	// Next.js __NEXT_DATA__ extraction
	DataKey string `json:"data_key,omitempty" yaml:"data_key"`

	// Remix window.__remixContext extraction
	ContextKey string `json:"context_key,omitempty" yaml:"context_key"`

	// Common
	URLPrefix string `json:"url_prefix,omitempty" yaml:"url_prefix"` // Prepend to relative URLs
}
