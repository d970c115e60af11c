package feed

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefeed/internal/domain/entity"
)

var (
	testMeta = Meta{
		Title:       "Example News",
		Link:        "https://news.example.com/",
		Description: "Latest stories",
		FeedURL:     "https://feeds.example.org/f/abc.xml",
	}
	fixedNow = func() time.Time { return time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC) }
)

func sampleItems() []entity.Item {
	return []entity.Item{
		{
			Title:       "Markets rally",
			Link:        "https://news.example.com/a",
			Description: "Stocks rose.",
			Date:        "2024-05-01T08:00:00Z",
			ContentHTML: "<p>Stocks <b>rose</b> sharply.</p>",
			Author:      "Ana Writer",
			Tags:        []string{"economy"},
		},
		{
			Title: "Heatwave expected",
			Link:  "https://news.example.com/b",
			Date:  "sometime next week",
		},
		{
			Title:       "Plain text body",
			Link:        "https://news.example.com/c",
			Description: "Just words & symbols < here",
			Date:        "Wed, 01 May 2024 09:30:00 +0200",
		},
	}
}

func TestBuild_ValidatesForAllFormats(t *testing.T) {
	b := NewBuilder(WithBuildClock(fixedNow))
	v := NewValidator()

	for _, format := range []entity.Format{entity.FormatRSS, entity.FormatAtom, entity.FormatJSONFeed} {
		t.Run(string(format), func(t *testing.T) {
			out, err := b.Build(format, testMeta, sampleItems())
			require.NoError(t, err)

			res := v.Validate(format, out)
			assert.True(t, res.OK, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
			assert.Equal(t, format, Detect(out, ""))
		})
	}
}

func TestBuild_EmptyFeedIsValid(t *testing.T) {
	b := NewBuilder(WithBuildClock(fixedNow))
	v := NewValidator()

	for _, format := range []entity.Format{entity.FormatRSS, entity.FormatAtom, entity.FormatJSONFeed} {
		t.Run(string(format), func(t *testing.T) {
			out, err := b.Build(format, testMeta, nil)
			require.NoError(t, err)

			res := v.Validate(format, out)
			assert.True(t, res.OK, "errors: %v", res.Errors)
			assert.NotEmpty(t, res.Warnings, "an empty feed is reported as a warning")
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(WithBuildClock(fixedNow))
	for _, format := range []entity.Format{entity.FormatRSS, entity.FormatAtom, entity.FormatJSONFeed} {
		first, err := b.Build(format, testMeta, sampleItems())
		require.NoError(t, err)
		second, err := b.Build(format, testMeta, sampleItems())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second), format)
	}
}

func TestBuild_AtomUsesStableIDs(t *testing.T) {
	out, err := NewBuilder(WithBuildClock(fixedNow)).Build(entity.FormatAtom, testMeta, sampleItems())
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, "<id>"+StableID(testMeta.Link, testMeta.Title)+"</id>")
	assert.Contains(t, doc, "<id>"+StableID("https://news.example.com/a", "Markets rally")+"</id>")
}

func TestStableID(t *testing.T) {
	a := StableID("https://x.example/1", "Title")
	assert.Equal(t, a, StableID("https://x.example/1", "Title"))
	assert.NotEqual(t, a, StableID("https://x.example/1", "Other title"))
	assert.NotEqual(t, a, StableID("https://x.example/2", "Title"))
	assert.True(t, strings.HasPrefix(a, "urn:uuid:"))
	// Version 5 UUIDs carry the version nibble at position 14.
	assert.Equal(t, byte('5'), strings.TrimPrefix(a, "urn:uuid:")[14])
}

func TestBuild_RSSUsesLinksAsGUIDs(t *testing.T) {
	out, err := NewBuilder(WithBuildClock(fixedNow)).Build(entity.FormatRSS, testMeta, sampleItems())
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, "https://news.example.com/a</guid>")
	assert.Contains(t, doc, "<category>economy</category>")
	assert.NotContains(t, doc, "urn:uuid:")
}

func TestBuild_SelfLink(t *testing.T) {
	b := NewBuilder(WithBuildClock(fixedNow))
	v := NewValidator()

	for _, format := range []entity.Format{entity.FormatRSS, entity.FormatAtom} {
		t.Run(string(format), func(t *testing.T) {
			out, err := b.Build(format, testMeta, sampleItems())
			require.NoError(t, err)

			res := v.Validate(format, out)
			assert.True(t, res.OK, "errors: %v", res.Errors)
			for _, w := range res.Warnings {
				assert.NotContains(t, w, "link")
			}

			parsed, err := gofeed.NewParser().ParseString(string(out))
			require.NoError(t, err)
			assert.Equal(t, testMeta.FeedURL, parsed.FeedLink)
			assert.Len(t, parsed.Items, 3)
		})
	}
}

func TestBuild_SelfLinkOmittedWithoutFeedURL(t *testing.T) {
	meta := testMeta
	meta.FeedURL = ""
	for _, format := range []entity.Format{entity.FormatRSS, entity.FormatAtom} {
		out, err := NewBuilder().Build(format, meta, nil)
		require.NoError(t, err)
		assert.NotContains(t, string(out), `rel="self"`, format)
	}
}

func TestBuild_JSONFeedContentAndDates(t *testing.T) {
	out, err := NewBuilder().Build(entity.FormatJSONFeed, testMeta, sampleItems())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, JSONFeedVersion, doc["version"])
	assert.Equal(t, testMeta.FeedURL, doc["feed_url"])

	items := doc["items"].([]any)
	require.Len(t, items, 3)

	first := items[0].(map[string]any)
	assert.Equal(t, "<p>Stocks <b>rose</b> sharply.</p>", first["content_html"])
	assert.NotContains(t, first, "content_text")
	assert.Equal(t, "2024-05-01T08:00:00Z", first["date_published"])
	assert.Equal(t, map[string]any{"name": "Ana Writer"}, first["author"])

	second := items[1].(map[string]any)
	assert.NotContains(t, second, "date_published", "unparseable dates are omitted")
	assert.Equal(t, "", second["content_text"])

	third := items[2].(map[string]any)
	assert.Equal(t, "Just words & symbols < here", third["content_text"])
	assert.NotContains(t, third, "content_html")
	assert.Equal(t, "2024-05-01T07:30:00Z", third["date_published"])
}

func TestBuild_JSONFeedEmptyItemsArray(t *testing.T) {
	out, err := NewBuilder().Build(entity.FormatJSONFeed, testMeta, nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"items": []`)
}

func TestBuild_UnsupportedFormat(t *testing.T) {
	_, err := NewBuilder().Build(entity.Format("yaml"), testMeta, nil)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "2024-05-01T08:00:00Z", want: "2024-05-01T08:00:00Z", ok: true},
		{in: "Wed, 01 May 2024 09:30:00 +0200", want: "2024-05-01T07:30:00Z", ok: true},
		{in: "2024-05-01", want: "2024-05-01T00:00:00Z", ok: true},
		{in: "", ok: false},
		{in: "yesterday-ish", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format(time.RFC3339))
			}
		})
	}
}
