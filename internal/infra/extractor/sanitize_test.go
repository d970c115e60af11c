package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	base, _ := url.Parse("https://example.com/posts/one")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips event handlers and unwraps unknown tags",
			in:   `<p onclick="x()" class="lead">Hi <span style="color:red">there</span></p>`,
			want: `<p>Hi there</p>`,
		},
		{
			name: "drops script with its content",
			in:   `<p>before</p><script>alert(1)</script><style>p{}</style><p>after</p>`,
			want: `<p>before</p><p>after</p>`,
		},
		{
			name: "keeps the text of unwrapped form and math elements",
			in:   `<p><button type="button">Read more</button> <select><option>First</option></select> <textarea>note</textarea> <math><mi>x</mi></math></p>`,
			want: `<p>Read more First note x</p>`,
		},
		{
			name: "resolves relative links",
			in:   `<a href="../two" target="_blank">next</a>`,
			want: `<a href="https://example.com/two">next</a>`,
		},
		{
			name: "unsafe scheme keeps text only",
			in:   `<a href="javascript:alert(1)">click</a>`,
			want: `click`,
		},
		{
			name: "fragment links are kept as is",
			in:   `<a href="#note-1">1</a>`,
			want: `<a href="#note-1">1</a>`,
		},
		{
			name: "promotes lazy image source",
			in:   `<img src="data:image/gif;base64,R0lGOD" data-src="/img/a.png" alt="A">`,
			want: `<img src="https://example.com/img/a.png" alt="A"/>`,
		},
		{
			name: "rewrites srcset candidates",
			in:   `<img src="/a.png" srcset="/a-2x.png 2x, javascript:x 3x">`,
			want: `<img src="https://example.com/a.png" srcset="https://example.com/a-2x.png 2x"/>`,
		},
		{
			name: "image without source is dropped",
			in:   `<p><img alt="nothing"></p>`,
			want: `<p></p>`,
		},
		{
			name: "iframes are dropped",
			in:   `<div><iframe src="https://evil.example"></iframe>text</div>`,
			want: `text`,
		},
		{
			name: "escapes text",
			in:   `<p>a &lt; b</p>`,
			want: `<p>a &lt; b</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, base))
		})
	}
}

func TestSanitizeSelection_DoesNotModifyDocument(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	src := `<html><head></head><body><div id="c"><p class="x">keep <b>bold</b></p><script>s()</script><img data-src="/l.png"></div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	require.NoError(t, err)

	before, err := doc.Html()
	require.NoError(t, err)

	out := SanitizeSelection(doc.Find("#c"), base)
	assert.Equal(t, `<p>keep <b>bold</b></p><img src="https://example.com/l.png"/>`, out)

	after, err := doc.Html()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSanitizeSelection_Empty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<p>x</p>"))
	require.NoError(t, err)
	assert.Empty(t, SanitizeSelection(doc.Find("#missing"), nil))
}
