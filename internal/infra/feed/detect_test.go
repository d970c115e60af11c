package feed

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefeed/internal/domain/entity"
)

const atomSample = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Upstream</title>
  <link href="https://up.example/"/>
  <id>urn:up</id>
  <updated>2024-05-01T00:00:00Z</updated>
  <entry>
    <title>Entry one</title>
    <link href="https://up.example/1"/>
    <id>urn:up:1</id>
    <published>2024-04-30T10:00:00+02:00</published>
    <updated>2024-04-30T10:00:00+02:00</updated>
    <author><name>Upstream Author</name></author>
    <category term="go"/>
    <summary>First summary</summary>
    <content type="html">&lt;p&gt;Body one&lt;/p&gt;</content>
  </entry>
  <entry>
    <title>Entry two</title>
    <link href="https://up.example/2"/>
    <id>urn:up:2</id>
    <updated>2024-04-29T10:00:00Z</updated>
  </entry>
</feed>`

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        entity.Format
	}{
		{name: "rss", body: `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`, want: entity.FormatRSS},
		{name: "rdf", body: `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/"><channel/></rdf:RDF>`, want: entity.FormatRSS},
		{name: "atom", body: atomSample, want: entity.FormatAtom},
		{name: "json feed", body: `{"version":"https://jsonfeed.org/version/1.1","title":"x","items":[]}`, want: entity.FormatJSONFeed},
		{name: "plain json", body: `{"posts":[1,2,3]}`, contentType: "application/json"},
		{name: "html", body: `<!doctype html><html><body><p>hi</p></body></html>`, contentType: "text/html"},
		{name: "html served as rss", body: `<!doctype html><html><body><p>hi</p></body></html>`, contentType: "application/rss+xml"},
		{name: "empty", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect([]byte(tt.body), tt.contentType))
		})
	}
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, LooksLikeJSON([]byte(` {"a":1}`)))
	assert.True(t, LooksLikeJSON([]byte(`[1,2]`)))
	assert.False(t, LooksLikeJSON([]byte(`<rss/>`)))
	assert.False(t, LooksLikeJSON([]byte(`{"a":`)))
}

func TestParseItems(t *testing.T) {
	items, meta, err := ParseItems([]byte(atomSample))
	require.NoError(t, err)

	assert.Equal(t, "Upstream", meta.Title)
	assert.Equal(t, "https://up.example/", meta.Link)

	want := []entity.Item{
		{
			Title:       "Entry one",
			Link:        "https://up.example/1",
			Description: "First summary",
			ContentHTML: "<p>Body one</p>",
			Date:        "2024-04-30T08:00:00Z",
			Author:      "Upstream Author",
			Tags:        []string{"go"},
		},
		{
			Title: "Entry two",
			Link:  "https://up.example/2",
			Date:  "2024-04-29T10:00:00Z",
		},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("ParseItems() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseItems_ReRenderAsRSS(t *testing.T) {
	items, meta, err := ParseItems([]byte(atomSample))
	require.NoError(t, err)

	out, err := NewBuilder().Build(entity.FormatRSS, meta, items)
	require.NoError(t, err)
	assert.True(t, NewValidator().Validate(entity.FormatRSS, out).OK)
	assert.Equal(t, entity.FormatRSS, Detect(out, ""))
}

func TestParseItems_Invalid(t *testing.T) {
	_, _, err := ParseItems([]byte("<html></html>"))
	assert.Error(t, err)
}
