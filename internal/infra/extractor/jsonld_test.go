package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractLinks(t *testing.T, page string, limit int) []string {
	t.Helper()
	items, err := New(nil).Extract(context.Background(), []byte(page), baseURL, limit, Options{})
	require.NoError(t, err)
	links := make([]string, len(items))
	for i, it := range items {
		links[i] = it.Link
	}
	return links
}

func TestJSONLD_TrailingCommas(t *testing.T) {
	page := `<script type="application/ld+json">
{
  "@type": "BlogPosting",
  "headline": "Hand written markup",
  "url": "/posts/hand-written",
  "keywords": ["go", "feeds",],
}
</script>`

	items, err := New(nil).Extract(context.Background(), []byte(page), baseURL, 5, Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hand written markup", items[0].Title)
	assert.Equal(t, "https://news.example.com/posts/hand-written", items[0].Link)
	assert.Equal(t, []string{"go", "feeds"}, items[0].Tags)
}

func TestJSONLD_GraphAndNestedContainers(t *testing.T) {
	page := `<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","url":"https://news.example.com/"},
  {"@type":"BreadcrumbList","itemListElement":[{"@type":"ListItem","position":1,"item":{"@id":"https://news.example.com/","name":"Home"}}]},
  {"@type":"Blog","blogPost":[
    {"@type":"BlogPosting","headline":"Nested one","mainEntityOfPage":{"@id":"https://news.example.com/n/1"},
     "author":[{"@type":"Person","name":"A"},{"@type":"Person","name":"B"}],"image":{"@type":"ImageObject","url":"/i/1.png"}},
    {"@type":["Article","schema:NewsArticle"],"name":"Nested two","@id":"https://news.example.com/n/2"}
  ]}
]}
</script>`

	items, err := New(nil).Extract(context.Background(), []byte(page), baseURL, 10, Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Nested one", items[0].Title)
	assert.Equal(t, "https://news.example.com/n/1", items[0].Link)
	assert.Equal(t, "A, B", items[0].Author)
	assert.Equal(t, "https://news.example.com/i/1.png", items[0].Image)
	assert.Equal(t, "https://news.example.com/n/2", items[1].Link)
}

func TestJSONLD_ItemListOrderedByPosition(t *testing.T) {
	page := `<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":"3","item":{"@type":"Article","headline":"Third","url":"/3"}},
  {"@type":"ListItem","position":1,"item":"https://news.example.com/1","name":"First"},
  {"@type":"ListItem","position":2,"url":"/2","name":"Second"}
]}
</script>`

	assert.Equal(t, []string{
		"https://news.example.com/1",
		"https://news.example.com/2",
		"https://news.example.com/3",
	}, extractLinks(t, page, 10))
}

func TestJSONLD_IgnoresBrokenBlocks(t *testing.T) {
	page := `<script type="application/ld+json">{not json</script>
<script type="application/ld+json"><!-- {"@type":"Article","headline":"Wrapped","url":"/wrapped"} --></script>`

	assert.Equal(t, []string{"https://news.example.com/wrapped"}, extractLinks(t, page, 10))
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "array", in: `[1, 2, ]`, want: `[1, 2 ]`},
		{name: "object across lines", in: "{\"a\": 1,\n}", want: "{\"a\": 1\n}"},
		{name: "comma inside string kept", in: `{"headline": "Lists like [a, ] and {b, }",}`, want: `{"headline": "Lists like [a, ] and {b, }"}`},
		{name: "escaped quote does not end the string", in: `["say \", ]", ]`, want: `["say \", ]" ]`},
		{name: "no trailing comma", in: `{"a":[1,2]}`, want: `{"a":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(stripTrailingCommas([]byte(tt.in))))
		})
	}
}

func TestDecodeLenientJSON_KeepsStringContent(t *testing.T) {
	v, err := decodeLenientJSON(`{"@type": "Article", "headline": "Tuples (a, ) and sets {b, }",}`)
	require.NoError(t, err)
	assert.Equal(t, "Tuples (a, ) and sets {b, }", v.(map[string]any)["headline"])
}

func TestDecodeLenientJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "plain object", raw: `{"a":1}`},
		{name: "trailing comma in array", raw: `[1,2,]`},
		{name: "cdata wrapper", raw: `//<![CDATA[
{"a":1}
//]]>`},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "garbage", raw: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeLenientJSON(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
