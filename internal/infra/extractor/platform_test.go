package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tumblrTimeline = `{
  "PeeprRoute": {"initialTimeline": {"objects": [
    {"objectType": "post", "postUrl": "https://demo.tumblr.com/post/1/first", "summary": "First post",
     "timestamp": 1714557600, "tags": ["art", "ink"], "blogName": "demo",
     "content": [
       {"type": "text", "text": "Hello <world>"},
       {"type": "image", "media": [{"url": "https://64.media.tumblr.com/s400.jpg", "width": 400},
                                  {"url": "https://64.media.tumblr.com/s1280.jpg", "width": 1280}]}
     ]},
    {"objectType": "blog", "name": "demo"},
    {"objectType": "post", "postUrl": "https://demo.tumblr.com/post/2", "summary": "",
     "content": [{"type": "text", "subtype": "heading1", "text": "Untitled with heading"}]}
  ]}}
}`

func TestPlatform_TumblrScriptElement(t *testing.T) {
	page := `<html><body><script id="___INITIAL_STATE___" type="application/json">` + tumblrTimeline + `</script></body></html>`

	items, ran, err := New(nil).run(context.Background(), []byte(page), "https://demo.tumblr.com/", 10, Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, ran, "platform")

	first := items[0]
	assert.Equal(t, "First post", first.Title)
	assert.Equal(t, "https://demo.tumblr.com/post/1/first", first.Link)
	assert.Equal(t, "2024-05-01T10:00:00Z", first.Date)
	assert.Equal(t, "demo", first.Author)
	assert.Equal(t, []string{"art", "ink"}, first.Tags)
	assert.Equal(t, "https://64.media.tumblr.com/s1280.jpg", first.Image)
	assert.Contains(t, first.ContentHTML, "<p>Hello &lt;world&gt;</p>")
	assert.Contains(t, first.ContentHTML, `<img src="https://64.media.tumblr.com/s1280.jpg"`)

	assert.Equal(t, "Untitled with heading", items[1].Title)
	assert.Equal(t, "<h2>Untitled with heading</h2>", items[1].ContentHTML)
}

func TestPlatform_TumblrWindowAssignment(t *testing.T) {
	page := `<html><body><script>window['___INITIAL_STATE___'] = ` + tumblrTimeline + `;</script></body></html>`

	items, err := New(nil).Extract(context.Background(), []byte(page), "https://demo.tumblr.com/", 1, Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://demo.tumblr.com/post/1/first", items[0].Link)
}

func TestPlatform_IgnoredOnOtherHosts(t *testing.T) {
	page := `<html><body><script id="___INITIAL_STATE___" type="application/json">` + tumblrTimeline + `</script></body></html>`

	items, err := New(nil).Extract(context.Background(), []byte(page), "https://example.com/", 10, Options{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
