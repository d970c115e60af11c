package extractor

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"pagefeed/internal/domain/entity"
)

const (
	// minLinkText is the shortest anchor text accepted as an item title.
	minLinkText = 12
	// minListLinkText is stricter for bare list links, which are mostly chrome.
	minListLinkText = 20
)

// containerQuery finds article-like blocks.
const containerQuery = `article, [class*="post"], [class*="card"], [class*="entry"], [class*="story"], [class*="article"], [class*="teaser"]`

// headingLinkQuery finds links wrapped in, or wrapping, headings.
const headingLinkQuery = `h1 a[href], h2 a[href], h3 a[href], h4 a[href], a[href] h2, a[href] h3`

// listLinkQuery finds plain list links.
const listLinkQuery = `li a[href]`

// chromeTags never contain feed items. Tags in softChrome are only chrome
// outside article and main content; inside it they are entry headers.
var chromeTags = map[string]bool{
	"nav": true, "header": true, "footer": true, "aside": true, "form": true, "menu": true, "dialog": true,
}

// chromeKeywords are matched against class and id attributes of ancestors.
var chromeKeywords = []string{
	"nav", "menu", "footer", "header", "sidebar", "breadcrumb", "pagination", "pager",
	"social", "share", "cookie", "banner", "widget", "comment", "login", "signup",
	"subscribe", "newsletter", "tagcloud", "tag-cloud", "skip-link", "masthead",
}

var softChrome = map[string]bool{"header": true, "footer": true, "masthead": true, "banner": true}

var (
	datePathRe    = regexp.MustCompile(`/(19|20)\d{2}/(0?[1-9]|1[0-2])(/|$)|/(19|20)\d{2}-\d{2}-\d{2}`)
	numericIDRe   = regexp.MustCompile(`(^|[-_/])\d{4,}($|[-_.])`)
	sectionPrefix = []string{
		"/news/", "/blog/", "/blogs/", "/article/", "/articles/", "/post/", "/posts/", "/story/",
		"/stories/", "/p/", "/entry/", "/entries/", "/press/", "/updates/", "/insights/",
	}
	nonArticleExt = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
		".css": true, ".js": true, ".zip": true, ".mp3": true, ".mp4": true, ".xml": true, ".rss": true,
	}
)

// HeuristicStrategy is the structural fallback used when no structured
// source yielded enough items.
type HeuristicStrategy struct{}

// Name implements Strategy.
func (HeuristicStrategy) Name() string { return "heuristic" }

// Extract implements Strategy.
func (HeuristicStrategy) Extract(p *Page, limit int) []entity.Item {
	var items []entity.Item
	seen := make(map[*html.Node]bool)
	full := func() bool { return len(items) >= limit*2 }

	add := func(a *goquery.Selection, scope *goquery.Selection, minText int, requireArticleURL bool) {
		if len(a.Nodes) == 0 || seen[a.Nodes[0]] {
			return
		}
		seen[a.Nodes[0]] = true

		href, _ := a.Attr("href")
		title := linkTitle(a)
		if utf8.RuneCountInString(title) < minText || inChrome(a) {
			return
		}
		abs := absoluteURL(p.Base, href)
		if abs == "" || nonArticleLink(abs) {
			return
		}
		if requireArticleURL && !LooksLikeArticleURL(abs) {
			return
		}

		it := entity.Item{Title: title, Link: abs}
		if scope != nil {
			it.Description = truncateWords(scope.Find("p").First().Text(), 400)
			if v, ok := scope.Find("time[datetime]").First().Attr("datetime"); ok {
				it.Date = strings.TrimSpace(v)
			}
			if src, ok := scope.Find("img[src]").First().Attr("src"); ok {
				it.Image = src
			}
		}
		items = append(items, it)
	}

	p.Doc.Find(containerQuery).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		a := c.Find(headingLinkQuery).First()
		if a.Length() > 0 && !a.Is("a") {
			a = a.Closest("a[href]")
		}
		if a.Length() == 0 {
			a = c.Find("a[href]").First()
		}
		add(a, c, minLinkText, false)
		return !full()
	})

	if !full() {
		p.Doc.Find(headingLinkQuery).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			a := s
			if !s.Is("a") {
				a = s.Closest("a[href]")
			}
			add(a, a.Closest("article, section, div"), minLinkText, false)
			return !full()
		})
	}

	if !full() {
		p.Doc.Find(listLinkQuery).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			add(a, a.Closest("li"), minListLinkText, true)
			return !full()
		})
	}

	return items
}

// linkTitle prefers the anchor's title attribute over its text only when
// the text is too short to be meaningful.
func linkTitle(a *goquery.Selection) string {
	text := collapseSpace(a.Text())
	if utf8.RuneCountInString(text) >= minLinkText {
		return text
	}
	if t, ok := a.Attr("title"); ok && utf8.RuneCountInString(collapseSpace(t)) > utf8.RuneCountInString(text) {
		return collapseSpace(t)
	}
	if t, ok := a.Attr("aria-label"); ok && utf8.RuneCountInString(collapseSpace(t)) > utf8.RuneCountInString(text) {
		return collapseSpace(t)
	}
	return text
}

// inChrome reports whether s sits inside navigation or page chrome.
func inChrome(s *goquery.Selection) bool {
	inContent := s.Closest("article, main").Length() > 0
	for n := s.Nodes[0]; n != nil; n = n.Parent {
		if n.Type != html.ElementNode || n.Data == "article" || n.Data == "main" {
			continue
		}
		if chromeTags[n.Data] && !(inContent && softChrome[n.Data]) {
			return true
		}
		for _, attr := range n.Attr {
			if attr.Key != "class" && attr.Key != "id" && attr.Key != "role" {
				continue
			}
			v := strings.ToLower(attr.Val)
			if attr.Key == "role" && (v == "navigation" || v == "banner" || v == "contentinfo") {
				return true
			}
			for _, kw := range chromeKeywords {
				if inContent && softChrome[kw] {
					continue
				}
				if containsToken(v, kw) {
					return true
				}
			}
		}
	}
	return false
}

// containsToken matches kw at the start of any class token, so "nav"
// matches "nav", "navbar" and "site-nav" but not "canvas".
func containsToken(attr, kw string) bool {
	for _, tok := range strings.Fields(attr) {
		if strings.HasPrefix(tok, kw) {
			return true
		}
		for _, part := range strings.FieldsFunc(tok, func(r rune) bool { return r == '-' || r == '_' }) {
			if part == kw || strings.HasPrefix(part, kw) && len(part) <= len(kw)+3 {
				return true
			}
		}
	}
	return false
}

func nonArticleLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	if u.Path == "" || u.Path == "/" {
		return true
	}
	return nonArticleExt[strings.ToLower(path.Ext(u.Path))]
}

// LooksLikeArticleURL reports whether link has the shape of an article
// permalink: a date-segmented path, a long hyphen-rich slug, a numeric id,
// or a known section prefix followed by another segment.
func LooksLikeArticleURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if datePathRe.MatchString(p) {
		return true
	}

	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return false
	}
	segments := strings.Split(trimmed, "/")
	last := strings.TrimSuffix(segments[len(segments)-1], path.Ext(segments[len(segments)-1]))
	if len(last) >= 16 && strings.Count(last, "-") >= 2 {
		return true
	}
	if numericIDRe.MatchString(last) && len(segments) >= 2 {
		return true
	}
	for _, prefix := range sectionPrefix {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return true
		}
	}
	return false
}
