// Package feed renders, validates and inspects RSS 2.0, Atom 1.0 and
// JSON Feed 1.0 documents.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"

	"pagefeed/internal/domain/entity"
)

// Meta is the channel-level metadata of a feed.
type Meta struct {
	Title       string
	Link        string
	Description string
	FeedURL     string
}

// Builder renders items into a feed document.
type Builder struct {
	now func() time.Time
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithBuildClock sets the clock used for feed-level timestamps.
func WithBuildClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// markupRe matches anything that looks like an HTML tag.
var markupRe = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

// Build renders items in format. Element order is fixed, so equal input
// produces equal output apart from the feed-level build timestamp.
func (b *Builder) Build(format entity.Format, meta Meta, items []entity.Item) ([]byte, error) {
	switch format {
	case entity.FormatRSS:
		return b.buildRSS(meta, items)
	case entity.FormatAtom:
		return b.buildAtom(meta, items)
	case entity.FormatJSONFeed:
		return b.buildJSONFeed(meta, items)
	default:
		return nil, fmt.Errorf("build feed: unsupported format %q", format)
	}
}

// StableID returns the namespace UUIDv5 of link and title as a URN. It is
// stable across rebuilds of the same item.
func StableID(link, title string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(link+"\n"+title)).String()
}

// ParseDate parses a date found in a source document. Dates without a zone
// are taken as UTC. The zero time and false are returned when the string is
// not a recognisable date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (b *Builder) gorillaFeed(meta Meta, items []entity.Item) *feeds.Feed {
	built := b.now().UTC()
	f := &feeds.Feed{
		Title:       meta.Title,
		Link:        &feeds.Link{Href: meta.Link},
		Description: meta.Description,
		Id:          StableID(meta.Link, meta.Title),
		Updated:     built,
		Items:       make([]*feeds.Item, 0, len(items)),
	}

	for _, it := range items {
		fi := &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Description: summaryOf(it),
			Id:          StableID(it.Link, it.Title),
			Content:     it.ContentHTML,
		}
		if t, ok := ParseDate(it.Date); ok {
			fi.Created = t
		}
		if it.Author != "" {
			fi.Author = &feeds.Author{Name: it.Author}
		}
		f.Items = append(f.Items, fi)
	}
	return f
}

func (b *Builder) buildRSS(meta Meta, items []entity.Item) ([]byte, error) {
	f := b.gorillaFeed(meta, items)
	// RSS guids are item permalinks; the URN form is reserved for Atom.
	for i, fi := range f.Items {
		fi.Id = items[i].Link
	}
	channel := (&feeds.Rss{Feed: f}).RssFeed()
	channel.Generator = "pagefeed"
	for i, ri := range channel.Items {
		if len(items[i].Tags) > 0 {
			ri.Category = items[i].Tags[0]
		}
	}
	out, err := feeds.ToXML(channel)
	if err != nil {
		return nil, fmt.Errorf("render rss: %w", err)
	}
	if meta.FeedURL == "" {
		return []byte(out), nil
	}
	self := `<atom:link href="` + escapeAttr(meta.FeedURL) + `" rel="self" type="application/rss+xml"></atom:link>`
	// The self link closes the channel so that <link> stays the first
	// link-named child for readers matching on the local name.
	i := strings.LastIndex(out, "</channel>")
	if i < 0 {
		return nil, fmt.Errorf("render rss: no place for the self link")
	}
	doc := out[:i] + "  " + self + "\n  " + out[i:]
	doc = strings.Replace(doc, "<rss ", `<rss xmlns:atom="http://www.w3.org/2005/Atom" `, 1)
	return []byte(doc), nil
}

func (b *Builder) buildAtom(meta Meta, items []entity.Item) ([]byte, error) {
	f := b.gorillaFeed(meta, items)
	atom := (&feeds.Atom{Feed: f}).AtomFeed()
	atom.Id = f.Id
	for i, entry := range atom.Entries {
		entry.Id = f.Items[i].Id
		if entry.Updated == "" {
			entry.Updated = atom.Updated
		}
	}
	out, err := feeds.ToXML(atom)
	if err != nil {
		return nil, fmt.Errorf("render atom: %w", err)
	}
	if meta.FeedURL == "" {
		return []byte(out), nil
	}
	// The self link follows the feed's own link, ahead of the entries.
	self := `<link href="` + escapeAttr(meta.FeedURL) + `" rel="self" type="application/atom+xml"></link>`
	i := strings.Index(out, "<entry>")
	if i < 0 {
		i = strings.LastIndex(out, "</feed>")
	}
	if i < 0 {
		return nil, fmt.Errorf("render atom: no place for the self link")
	}
	return []byte(out[:i] + self + "\n  " + out[i:]), nil
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// summaryOf returns the plain-text summary of it, derived from its body when
// no description was found.
func summaryOf(it entity.Item) string {
	if it.Description != "" {
		return it.Description
	}
	if it.ContentHTML == "" {
		return ""
	}
	text := strings.Join(strings.Fields(entity.StripTags(it.ContentHTML)), " ")
	if r := []rune(text); len(r) > 300 {
		text = string(r[:300]) + "…"
	}
	return text
}
