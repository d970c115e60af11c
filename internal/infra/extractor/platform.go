package extractor

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
)

// initialStateRe matches the assignment form of the Tumblr client state.
var initialStateRe = regexp.MustCompile(`(?s)window\[['"]___INITIAL_STATE___['"]\]\s*=\s*(\{.*?\});\s*(?:</script>|$|window)`)

// PlatformStrategy maps embedded client state of hosting platforms onto
// items. Only Tumblr blogs are recognised; on every other host it is a no-op.
type PlatformStrategy struct{}

// Name implements Strategy.
func (PlatformStrategy) Name() string { return "platform" }

// Extract implements Strategy.
func (PlatformStrategy) Extract(p *Page, limit int) []entity.Item {
	if !isTumblrHost(p.Base.Hostname()) {
		return nil
	}
	state := tumblrState(p.Doc)
	if state == nil {
		return nil
	}

	var items []entity.Item
	for _, post := range tumblrPosts(state) {
		if it, ok := tumblrItem(post); ok {
			items = append(items, it)
			if len(items) >= limit {
				break
			}
		}
	}
	return items
}

func isTumblrHost(host string) bool {
	host = strings.ToLower(host)
	return host == "tumblr.com" || strings.HasSuffix(host, ".tumblr.com")
}

// tumblrState returns the decoded ___INITIAL_STATE___ object, found either
// as a JSON script element or as a window assignment.
func tumblrState(doc *goquery.Document) map[string]any {
	var state map[string]any

	if raw := strings.TrimSpace(doc.Find("script#___INITIAL_STATE___").First().Text()); raw != "" {
		if json.Unmarshal([]byte(raw), &state) == nil {
			return state
		}
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "___INITIAL_STATE___") {
			return true
		}
		m := initialStateRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		if json.Unmarshal([]byte(m[1]), &state) == nil {
			return false
		}
		state = nil
		return true
	})
	return state
}

// tumblrPosts locates the timeline: PeeprRoute.initialTimeline.objects when
// present, otherwise the first array of objects carrying a postUrl.
func tumblrPosts(state map[string]any) []map[string]any {
	if route, ok := state["PeeprRoute"].(map[string]any); ok {
		if tl, ok := route["initialTimeline"].(map[string]any); ok {
			if posts := postObjects(tl["objects"]); len(posts) > 0 {
				return posts
			}
		}
	}
	return findPostArray(state, 0)
}

func postObjects(v any) []map[string]any {
	var posts []map[string]any
	for _, obj := range flattenLD(v) {
		if t, _ := obj["objectType"].(string); t != "" && t != "post" {
			continue
		}
		if stringOf(obj["postUrl"]) != "" {
			posts = append(posts, obj)
		}
	}
	return posts
}

func findPostArray(v any, depth int) []map[string]any {
	if depth > 8 {
		return nil
	}
	switch t := v.(type) {
	case []any:
		if posts := postObjects(t); len(posts) > 0 {
			return posts
		}
		for _, e := range t {
			if posts := findPostArray(e, depth+1); len(posts) > 0 {
				return posts
			}
		}
	case map[string]any:
		for _, e := range t {
			if posts := findPostArray(e, depth+1); len(posts) > 0 {
				return posts
			}
		}
	}
	return nil
}

func tumblrItem(post map[string]any) (entity.Item, bool) {
	blocks := flattenLD(post["content"])

	it := entity.Item{
		Link:        stringOf(post["postUrl"]),
		Title:       stringOf(post["summary"]),
		ContentHTML: renderBlocks(blocks),
		Tags:        keywords(post["tags"]),
		Author:      stringOf(post["blogName"]),
	}
	if it.Author == "" {
		if blog, ok := post["blog"].(map[string]any); ok {
			it.Author = stringOf(blog["name"])
		}
	}
	if ts, ok := numberOf(post["timestamp"]); ok && ts > 0 {
		it.Date = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
	} else {
		it.Date = stringOf(post["date"])
	}

	for _, b := range blocks {
		typ, _ := b["type"].(string)
		switch typ {
		case "text":
			if it.Title == "" {
				it.Title = truncateWords(stringOf(b["text"]), 120)
			}
			if it.Description == "" {
				it.Description = truncateWords(stringOf(b["text"]), 300)
			}
		case "image":
			if it.Image == "" {
				it.Image = mediaURL(b["media"])
			}
		}
	}
	if it.Title == "" {
		it.Title = it.Link
	}
	return it, it.Link != ""
}

// renderBlocks converts Tumblr NPF content blocks into HTML. All text is
// escaped; the result is still passed through the sanitizer downstream.
func renderBlocks(blocks []map[string]any) string {
	var b strings.Builder
	for _, block := range blocks {
		typ, _ := block["type"].(string)
		switch typ {
		case "text":
			text := html.EscapeString(stringOf(block["text"]))
			if text == "" {
				continue
			}
			switch stringOf(block["subtype"]) {
			case "heading1":
				b.WriteString("<h2>" + text + "</h2>")
			case "heading2":
				b.WriteString("<h3>" + text + "</h3>")
			case "quote", "indented":
				b.WriteString("<blockquote>" + text + "</blockquote>")
			case "ordered-list-item", "unordered-list-item":
				b.WriteString("<ul><li>" + text + "</li></ul>")
			default:
				b.WriteString("<p>" + text + "</p>")
			}
		case "image":
			if src := mediaURL(block["media"]); src != "" {
				alt := html.EscapeString(stringOf(block["altText"]))
				b.WriteString(`<figure><img src="` + html.EscapeString(src) + `" alt="` + alt + `"></figure>`)
			}
		case "link":
			if u := stringOf(block["url"]); u != "" {
				title := stringOf(block["title"])
				if title == "" {
					title = u
				}
				b.WriteString(`<p><a href="` + html.EscapeString(u) + `">` + html.EscapeString(title) + `</a></p>`)
			}
		case "video", "audio":
			u := stringOf(block["url"])
			if u == "" {
				u = mediaURL(block["media"])
			}
			if u != "" {
				b.WriteString(`<p><a href="` + html.EscapeString(u) + `">` + typ + `</a></p>`)
			}
		}
	}
	return b.String()
}

// mediaURL picks the widest rendition of an NPF media list.
func mediaURL(v any) string {
	best, bestWidth := "", -1.0
	for _, m := range flattenLD(v) {
		u := stringOf(m["url"])
		if u == "" {
			continue
		}
		w, _ := numberOf(m["width"])
		if w > bestWidth {
			best, bestWidth = u, w
		}
	}
	return best
}
