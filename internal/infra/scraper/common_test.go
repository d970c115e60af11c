package scraper

import (
	"testing"

	"pagefeed/internal/domain/entity"
)

func TestMakeAbsoluteURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		prefix string
		page   string
		want   string
	}{
		{name: "absolute kept", url: "https://a.example/x", prefix: "https://b.example", want: "https://a.example/x"},
		{name: "prefix join", url: "/post/1", prefix: "https://b.example/", want: "https://b.example/post/1"},
		{name: "prefix join without slashes", url: "post/1", prefix: "https://b.example/blog", want: "https://b.example/blog/post/1"},
		{name: "page relative", url: "../x", page: "https://c.example/a/b/", want: "https://c.example/a/x"},
		{name: "scheme relative", url: "//d.example/y", page: "https://c.example/", want: "https://d.example/y"},
		{name: "javascript rejected", url: "javascript:alert(1)", page: "https://c.example/", want: ""},
		{name: "empty", url: "  ", prefix: "https://b.example", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := makeAbsoluteURL(tt.url, tt.prefix, tt.page); got != tt.want {
				t.Errorf("makeAbsoluteURL(%q, %q, %q) = %q, want %q", tt.url, tt.prefix, tt.page, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input  string
		format string
		want   string
	}{
		{input: "", want: ""},
		{input: "2024-11-20T10:00:00+09:00", want: "2024-11-20T01:00:00Z"},
		{input: "2024-11-20", want: "2024-11-20T00:00:00Z"},
		{input: "Nov 20, 2024", want: "2024-11-20T00:00:00Z"},
		{input: "20/11/2024", format: "02/01/2006", want: "2024-11-20T00:00:00Z"},
		{input: "  last tuesday ", want: "last tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDate(tt.input, tt.format); got != tt.want {
				t.Errorf("parseDate(%q, %q) = %q, want %q", tt.input, tt.format, got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	items := dedupe([]entity.Item{
		{Title: "A", Link: "https://x.example/a"},
		{Title: "A again", Link: "https://X.example/a#top"},
		{Title: "", Link: "https://x.example/b"},
		{Title: "C", Link: ""},
		{Title: "A", Link: "https://x.example/c"},
	})
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if items[1].Link != "https://x.example/c" {
		t.Errorf("same title with different link must be kept, got %+v", items)
	}
}
