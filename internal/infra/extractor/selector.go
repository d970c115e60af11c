package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"pagefeed/internal/domain/entity"
)

// CompileSelector compiles a selector restricted to type selectors, #id,
// .class, the descendant combinator and the child combinator (>). Anything
// else (attribute selectors, pseudo-classes, sibling combinators, groups,
// the universal selector) is rejected before cascadia sees it.
func CompileSelector(sel string) (cascadia.Selector, error) {
	if err := checkSubset(sel); err != nil {
		return nil, err
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", sel, err)
	}
	return compiled, nil
}

// ValidateSelectors checks every non-empty selector of s. The item
// selector is required once any selector is set.
func ValidateSelectors(s entity.Selectors) error {
	fields := []struct {
		name, value string
	}{
		{"selectors.item", s.Item},
		{"selectors.title", s.Title},
		{"selectors.link", s.Link},
		{"selectors.summary", s.Summary},
		{"selectors.date", s.Date},
	}
	if s.Item == "" && (s.Title != "" || s.Link != "" || s.Summary != "" || s.Date != "") {
		return &entity.InputError{Field: "selectors.item", Message: "item selector is required"}
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if _, err := CompileSelector(f.value); err != nil {
			return &entity.InputError{Field: f.name, Message: err.Error()}
		}
	}
	return nil
}

// checkSubset walks sel and rejects anything outside the supported grammar:
//
//	selector  = compound { combinator compound }
//	compound  = [ ident ] { "#" ident | "." ident }   (at least one part)
//	combinator = whitespace | ">"
func checkSubset(sel string) error {
	s := strings.TrimSpace(sel)
	if s == "" {
		return fmt.Errorf("empty selector")
	}
	if len(s) > 256 {
		return fmt.Errorf("selector too long")
	}

	expectCompound := true
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '>':
			if expectCompound {
				return fmt.Errorf("selector %q: misplaced '>'", sel)
			}
			expectCompound = true
			i++
		default:
			if !expectCompound && !isSpace(s[i-1]) {
				return fmt.Errorf("selector %q: unsupported syntax at %q", sel, s[i:])
			}
			n, err := compoundLen(s[i:])
			if err != nil {
				return fmt.Errorf("selector %q: %w", sel, err)
			}
			i += n
			expectCompound = false
		}
	}
	if expectCompound {
		return fmt.Errorf("selector %q: dangling combinator", sel)
	}
	return nil
}

// compoundLen returns the length of the compound selector at the start of s.
func compoundLen(s string) (int, error) {
	i := identLen(s)
	parts := 0
	if i > 0 {
		parts++
	}
	for i < len(s) {
		c := s[i]
		if c != '#' && c != '.' {
			break
		}
		n := identLen(s[i+1:])
		if n == 0 {
			return 0, fmt.Errorf("expected name after %q", c)
		}
		i += 1 + n
		parts++
	}
	if parts == 0 {
		return 0, fmt.Errorf("unsupported syntax at %q", s)
	}
	if i < len(s) && !isSpace(s[i]) && s[i] != '>' {
		return 0, fmt.Errorf("unsupported syntax at %q", s[i:])
	}
	return i, nil
}

func identLen(s string) int {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(i > 0 && c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

// SelectorStrategy applies job-supplied selectors. It is a no-op when the
// page carries no item selector.
type SelectorStrategy struct{}

// Name implements Strategy.
func (SelectorStrategy) Name() string { return "selector" }

// Extract implements Strategy.
func (SelectorStrategy) Extract(p *Page, limit int) []entity.Item {
	if p.Selectors == nil || p.Selectors.Item == "" {
		return nil
	}
	itemSel, err := CompileSelector(p.Selectors.Item)
	if err != nil {
		return nil
	}
	sub := func(s string) cascadia.Selector {
		if s == "" {
			return nil
		}
		c, err := CompileSelector(s)
		if err != nil {
			return nil
		}
		return c
	}
	titleSel, linkSel := sub(p.Selectors.Title), sub(p.Selectors.Link)
	summarySel, dateSel := sub(p.Selectors.Summary), sub(p.Selectors.Date)

	var items []entity.Item
	p.Doc.FindMatcher(itemSel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		it := entity.Item{
			Title:       selectorTitle(el, titleSel),
			Link:        selectorLink(el, linkSel),
			Description: selectorText(el, summarySel, "p"),
			Date:        selectorDate(el, dateSel),
		}
		if it.Link != "" && it.Title != "" {
			items = append(items, it)
		}
		return len(items) < limit
	})
	return items
}

func findIn(el *goquery.Selection, m cascadia.Selector) *goquery.Selection {
	if m == nil {
		return el.Slice(0, 0)
	}
	return el.FindMatcher(m).First()
}

// selectorTitle falls back to the first heading, the first link, and
// finally the container text.
func selectorTitle(el *goquery.Selection, m cascadia.Selector) string {
	if t := collapseSpace(findIn(el, m).Text()); t != "" {
		return t
	}
	if t := collapseSpace(el.Find("h1, h2, h3, h4, h5, h6").First().Text()); t != "" {
		return t
	}
	if t := collapseSpace(el.Find("a[href]").First().Text()); t != "" {
		return t
	}
	return truncateWords(el.Text(), 140)
}

// selectorLink reads href from the matched element (or its first link
// descendant), then the container itself, then its first descendant link.
func selectorLink(el *goquery.Selection, m cascadia.Selector) string {
	if found := findIn(el, m); found.Length() > 0 {
		if href, ok := found.Attr("href"); ok {
			return href
		}
		if href, ok := found.Find("a[href]").First().Attr("href"); ok {
			return href
		}
	}
	if href, ok := el.Attr("href"); ok {
		return href
	}
	href, _ := el.Find("a[href]").First().Attr("href")
	return href
}

func selectorText(el *goquery.Selection, m cascadia.Selector, fallback string) string {
	if t := collapseSpace(findIn(el, m).Text()); t != "" {
		return t
	}
	return collapseSpace(el.Find(fallback).First().Text())
}

// selectorDate prefers a datetime or content attribute over element text.
func selectorDate(el *goquery.Selection, m cascadia.Selector) string {
	if found := findIn(el, m); found.Length() > 0 {
		for _, attr := range []string{"datetime", "content", "title"} {
			if v, ok := found.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		if t := collapseSpace(found.Text()); t != "" {
			return t
		}
	}
	if v, ok := el.Find("time[datetime]").First().Attr("datetime"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
