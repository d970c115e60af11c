package extractor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
)

// articleTypes are the schema.org types mapped to a single item.
var articleTypes = map[string]bool{
	"article":               true,
	"blogposting":           true,
	"newsarticle":           true,
	"techarticle":           true,
	"scholarlyarticle":      true,
	"report":                true,
	"socialmediaposting":    true,
	"liveblogposting":       true,
	"analysisnewsarticle":   true,
	"opinionnewsarticle":    true,
	"reportagenewsarticle":  true,
	"reviewnewsarticle":     true,
	"backgroundnewsarticle": true,
	"podcastepisode":        true,
}

// containerKeys are walked to find nested ItemList and Article nodes.
var containerKeys = []string{"@graph", "mainEntity", "blogPost", "hasPart"}

// JSONLDStrategy reads schema.org structured data.
type JSONLDStrategy struct{}

// Name implements Strategy.
func (JSONLDStrategy) Name() string { return "jsonld" }

// Extract implements Strategy.
func (JSONLDStrategy) Extract(p *Page, limit int) []entity.Item {
	var items []entity.Item
	for _, node := range ldNodes(p.Doc) {
		items = appendLDItems(items, node, 0)
		if len(items) >= limit*2 {
			break
		}
	}
	return items
}

// ldNodes returns the top-level values of every ld+json block, with bare
// arrays flattened, in document order.
func ldNodes(doc *goquery.Document) []map[string]any {
	var nodes []map[string]any
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !strings.Contains(strings.ToLower(typ), "ld+json") {
			return
		}
		v, err := decodeLenientJSON(s.Text())
		if err != nil {
			return
		}
		nodes = append(nodes, flattenLD(v)...)
	})
	return nodes
}

// decodeLenientJSON parses JSON that may carry trailing commas or comment
// and CDATA wrappers, as found in hand-written ld+json blocks.
func decodeLenientJSON(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	for _, affix := range [][2]string{{"<!--", "-->"}, {"//<![CDATA[", "//]]>"}, {"<![CDATA[", "]]>"}} {
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, affix[0]), affix[1]))
	}
	if raw == "" {
		return nil, fmt.Errorf("empty ld+json block")
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	if err := json.Unmarshal(stripTrailingCommas([]byte(raw)), &v); err != nil {
		return nil, fmt.Errorf("decode ld+json: %w", err)
	}
	return v, nil
}

// stripTrailingCommas drops commas that directly precede a closing bracket
// or brace. Commas inside string literals are left alone.
func stripTrailingCommas(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(raw) && (raw[j] == ' ' || raw[j] == '\t' || raw[j] == '\n' || raw[j] == '\r') {
				j++
			}
			if j < len(raw) && (raw[j] == ']' || raw[j] == '}') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func flattenLD(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, flattenLD(e)...)
		}
		return out
	}
	return nil
}

// appendLDItems maps node to items, recursing into container properties.
func appendLDItems(items []entity.Item, node map[string]any, depth int) []entity.Item {
	if depth > 6 {
		return items
	}

	switch {
	case hasType(node, "itemlist"):
		for _, el := range listElements(node) {
			if it, ok := listElementItem(el); ok {
				items = append(items, it)
			}
		}
		return items
	case hasType(node, "breadcrumblist"):
		return items
	case isArticle(node):
		if it, ok := articleItem(node); ok {
			items = append(items, it)
		}
	}

	for _, key := range containerKeys {
		for _, child := range flattenLD(node[key]) {
			items = appendLDItems(items, child, depth+1)
		}
	}
	return items
}

// listElements returns itemListElement entries ordered by position when
// every entry carries one, otherwise in document order.
func listElements(node map[string]any) []map[string]any {
	els := flattenLD(node["itemListElement"])
	positioned := true
	for _, el := range els {
		if _, ok := numberOf(el["position"]); !ok {
			positioned = false
			break
		}
	}
	if positioned {
		sort.SliceStable(els, func(i, j int) bool {
			a, _ := numberOf(els[i]["position"])
			b, _ := numberOf(els[j]["position"])
			return a < b
		})
	}
	return els
}

// listElementItem maps a ListItem (or a bare Article placed in the list).
func listElementItem(el map[string]any) (entity.Item, bool) {
	merged := make(map[string]any, len(el))
	for k, v := range el {
		merged[k] = v
	}
	switch inner := el["item"].(type) {
	case map[string]any:
		for k, v := range inner {
			if _, exists := merged[k]; !exists || k == "url" || k == "@id" {
				merged[k] = v
			}
		}
	case string:
		if stringOf(merged["url"]) == "" {
			merged["url"] = inner
		}
	}
	return articleItem(merged)
}

func articleItem(node map[string]any) (entity.Item, bool) {
	it := entity.Item{
		Title:       firstString(node, "headline", "name", "alternativeHeadline"),
		Link:        firstString(node, "url"),
		Description: firstString(node, "description", "abstract"),
		Date:        firstString(node, "datePublished", "dateCreated", "uploadDate", "dateModified"),
		Author:      personName(node["author"]),
		Image:       imageURL(node["image"]),
		Tags:        keywords(node["keywords"]),
	}
	if it.Image == "" {
		it.Image = imageURL(node["thumbnailUrl"])
	}
	if it.Link == "" {
		it.Link = idOf(node["mainEntityOfPage"])
	}
	if it.Link == "" {
		if id := stringOf(node["@id"]); strings.HasPrefix(id, "http") {
			it.Link = id
		}
	}
	if it.Link == "" || it.Title == "" {
		return it, false
	}
	return it, true
}

func hasType(node map[string]any, want string) bool {
	for _, t := range typesOf(node) {
		if t == want {
			return true
		}
	}
	return false
}

func isArticle(node map[string]any) bool {
	for _, t := range typesOf(node) {
		if articleTypes[t] {
			return true
		}
	}
	return false
}

// typesOf returns the lower-cased @type values without any schema prefix.
func typesOf(node map[string]any) []string {
	var raw []string
	switch t := node["@type"].(type) {
	case string:
		raw = []string{t}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if i := strings.LastIndexAny(s, "/:"); i >= 0 {
			s = s[i+1:]
		}
		out = append(out, strings.ToLower(s))
	}
	return out
}

func firstString(node map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(node[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, e := range t {
			if s := stringOf(e); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := stringOf(t["@value"]); s != "" {
			return s
		}
	}
	return ""
}

func idOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s := stringOf(t["@id"]); s != "" {
			return s
		}
		return stringOf(t["url"])
	}
	return ""
}

func numberOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func personName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return stringOf(t["name"])
	case []any:
		var names []string
		for _, e := range t {
			if n := personName(e); n != "" {
				names = append(names, n)
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s := stringOf(t["url"]); s != "" {
			return s
		}
		return stringOf(t["contentUrl"])
	case []any:
		for _, e := range t {
			if s := imageURL(e); s != "" {
				return s
			}
		}
	}
	return ""
}

func keywords(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
