package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"pagefeed/internal/domain/entity"
)

// Detect sniffs the feed format of body. It returns "" when body is not a
// feed. The content type only breaks ties: an HTML page served as XML is
// still not a feed.
func Detect(body []byte, contentType string) entity.Format {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return entity.FormatRSS
	case gofeed.FeedTypeAtom:
		return entity.FormatAtom
	case gofeed.FeedTypeJSON:
		if isJSONFeed(body) {
			return entity.FormatJSONFeed
		}
		return ""
	}

	// Some servers prepend junk before the prolog; trust an explicit feed
	// media type only when the body still parses as a feed.
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml", "application/feed+json":
		if f, err := gofeed.NewParser().Parse(bytes.NewReader(body)); err == nil {
			return formatOf(f)
		}
	}
	return ""
}

// LooksLikeJSON reports whether body is a JSON document of any kind.
func LooksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed)
}

func isJSONFeed(body []byte) bool {
	var probe struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return strings.Contains(probe.Version, "jsonfeed.org")
}

func formatOf(f *gofeed.Feed) entity.Format {
	switch strings.ToLower(f.FeedType) {
	case "atom":
		return entity.FormatAtom
	case "json":
		return entity.FormatJSONFeed
	default:
		return entity.FormatRSS
	}
}

// ParseItems parses a feed of any supported format into items and
// channel metadata, for re-rendering in another format.
func ParseItems(body []byte) ([]entity.Item, Meta, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("parse feed: %w", err)
	}

	meta := Meta{
		Title:       strings.TrimSpace(f.Title),
		Link:        f.Link,
		Description: strings.TrimSpace(f.Description),
		FeedURL:     f.FeedLink,
	}

	items := make([]entity.Item, 0, len(f.Items))
	for _, fi := range f.Items {
		it := entity.Item{
			Title:       strings.TrimSpace(fi.Title),
			Link:        strings.TrimSpace(fi.Link),
			Description: strings.TrimSpace(fi.Description),
			ContentHTML: fi.Content,
			Tags:        fi.Categories,
		}
		if it.Link == "" && strings.HasPrefix(fi.GUID, "http") {
			it.Link = fi.GUID
		}
		switch {
		case fi.PublishedParsed != nil:
			it.Date = fi.PublishedParsed.UTC().Format(time.RFC3339)
		case fi.UpdatedParsed != nil:
			it.Date = fi.UpdatedParsed.UTC().Format(time.RFC3339)
		default:
			it.Date = fi.Published
		}
		if fi.Author != nil {
			it.Author = fi.Author.Name
		} else if len(fi.Authors) > 0 && fi.Authors[0] != nil {
			it.Author = fi.Authors[0].Name
		}
		if fi.Image != nil {
			it.Image = fi.Image.URL
		}
		if it.Title == "" && it.Link == "" {
			continue
		}
		items = append(items, it)
	}
	return items, meta, nil
}
