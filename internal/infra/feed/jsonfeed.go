package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pagefeed/internal/domain/entity"
)

// JSONFeedVersion is the version URL written into every JSON Feed.
const JSONFeedVersion = "https://jsonfeed.org/version/1"

type jsonFeed struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL string         `json:"home_page_url,omitempty"`
	FeedURL     string         `json:"feed_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Items       []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            string          `json:"id"`
	URL           string          `json:"url,omitempty"`
	Title         string          `json:"title,omitempty"`
	ContentHTML   *string         `json:"content_html,omitempty"`
	ContentText   *string         `json:"content_text,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Image         string          `json:"image,omitempty"`
	DatePublished string          `json:"date_published,omitempty"`
	Author        *jsonFeedAuthor `json:"author,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
}

type jsonFeedAuthor struct {
	Name string `json:"name"`
}

// buildJSONFeed renders JSON Feed 1.0. The items array is always present,
// also when empty.
func (b *Builder) buildJSONFeed(meta Meta, items []entity.Item) ([]byte, error) {
	doc := jsonFeed{
		Version:     JSONFeedVersion,
		Title:       meta.Title,
		HomePageURL: meta.Link,
		FeedURL:     meta.FeedURL,
		Description: meta.Description,
		Items:       make([]jsonFeedItem, 0, len(items)),
	}

	for _, it := range items {
		ji := jsonFeedItem{
			ID:    it.Link,
			URL:   it.Link,
			Title: it.Title,
			Image: it.Image,
			Tags:  it.Tags,
		}
		body := it.ContentHTML
		if body == "" {
			body = it.Description
		}
		if markupRe.MatchString(body) {
			ji.ContentHTML = &body
			if it.ContentHTML != "" {
				ji.Summary = summaryOf(it)
			}
		} else {
			ji.ContentText = &body
		}
		if t, ok := ParseDate(it.Date); ok {
			ji.DatePublished = t.Format(time.RFC3339)
		}
		if it.Author != "" {
			ji.Author = &jsonFeedAuthor{Name: it.Author}
		}
		doc.Items = append(doc.Items, ji)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("render json feed: %w", err)
	}
	return buf.Bytes(), nil
}
