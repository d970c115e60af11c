package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedAttrs is the element allow-list with the attributes each element
// may keep. Elements not listed are unwrapped: their children are kept.
var allowedAttrs = map[string][]string{
	"a": {"href", "title"}, "abbr": {"title"}, "b": nil, "blockquote": {"cite"}, "br": nil,
	"caption": nil, "cite": nil, "code": nil, "dd": nil, "del": nil, "dl": nil, "dt": nil,
	"em": nil, "figcaption": nil, "figure": nil, "h1": nil, "h2": nil, "h3": nil, "h4": nil,
	"h5": nil, "h6": nil, "hr": nil, "i": nil, "img": {"src", "srcset", "alt", "title", "width", "height"},
	"ins": nil, "li": nil, "mark": nil, "ol": nil, "p": nil, "picture": nil, "pre": nil, "q": {"cite"},
	"s": nil, "small": nil, "source": {"src", "srcset", "type", "media"}, "strong": nil, "sub": nil,
	"sup": nil, "table": nil, "tbody": nil, "td": {"colspan", "rowspan"}, "tfoot": nil,
	"th": {"colspan", "rowspan", "scope"}, "thead": nil, "time": {"datetime"}, "tr": nil, "u": nil,
	"ul": nil, "video": {"src", "poster", "controls"}, "audio": {"src", "controls"},
}

// droppedElements are removed together with their content. Every other
// disallowed element is unwrapped so its text survives.
var droppedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "iframe": true, "object": true,
	"embed": true, "head": true, "meta": true, "link": true, "base": true,
}

// urlAttrs hold a single URL and are resolved against the base.
var urlAttrs = map[string]bool{"href": true, "src": true, "poster": true, "cite": true}

// lazySrc and lazySrcset list lazy-loading attributes in priority order.
var (
	lazySrc    = []string{"data-src", "data-lazy-src", "data-original", "data-url", "data-actualsrc", "data-hi-res-src"}
	lazySrcset = []string{"data-srcset", "data-lazy-srcset", "data-original-set"}
)

// Sanitize parses an HTML fragment and returns its allow-listed rendering.
func Sanitize(fragment string, base *url.URL) string {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return ""
	}
	return render(sanitizeNodes(nodes, base))
}

// SanitizeSelection returns the allow-listed rendering of the children of
// the first node of sel. The document is not modified.
func SanitizeSelection(sel *goquery.Selection, base *url.URL) string {
	if sel.Length() == 0 {
		return ""
	}
	var children []*html.Node
	for c := sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	return render(sanitizeNodes(children, base))
}

func sanitizeNodes(nodes []*html.Node, base *url.URL) []*html.Node {
	var out []*html.Node
	for _, n := range nodes {
		out = append(out, sanitizeNode(n, base)...)
	}
	return out
}

// sanitizeNode returns fresh copies for n. It never mutates n: copies are
// assembled from new nodes and new attribute slices.
func sanitizeNode(n *html.Node, base *url.URL) []*html.Node {
	switch n.Type {
	case html.TextNode:
		return []*html.Node{{Type: html.TextNode, Data: n.Data}}
	case html.DocumentNode:
		return sanitizeChildren(n, base)
	case html.ElementNode:
	default:
		return nil
	}

	tag := strings.ToLower(n.Data)
	if droppedElements[tag] {
		return nil
	}
	allowed, ok := allowedAttrs[tag]
	if !ok {
		return sanitizeChildren(n, base)
	}

	attrs := sanitizeAttrs(tag, n.Attr, allowed, base)
	switch tag {
	case "img":
		if !hasAttr(attrs, "src") {
			return nil
		}
	case "a":
		if !hasAttr(attrs, "href") {
			return sanitizeChildren(n, base)
		}
	}

	el := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Attr: attrs}
	for _, c := range sanitizeChildren(n, base) {
		el.AppendChild(c)
	}
	return []*html.Node{el}
}

func sanitizeChildren(n *html.Node, base *url.URL) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, sanitizeNode(c, base)...)
	}
	return out
}

// sanitizeAttrs filters attributes through the allow-list, promotes lazy
// loading attributes and rewrites URLs to absolute form.
func sanitizeAttrs(tag string, in []html.Attribute, allowed []string, base *url.URL) []html.Attribute {
	get := func(key string) (string, bool) {
		for _, a := range in {
			if a.Namespace == "" && strings.EqualFold(a.Key, key) {
				return a.Val, true
			}
		}
		return "", false
	}

	values := make(map[string]string)
	for _, key := range allowed {
		if v, ok := get(key); ok {
			values[key] = v
		}
	}

	if tag == "img" || tag == "source" {
		if src := values["src"]; src == "" || isPlaceholder(src) {
			for _, key := range lazySrc {
				if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
					values["src"] = v
					break
				}
			}
			if tag == "source" && values["src"] == "" {
				delete(values, "src")
			}
		}
		if values["srcset"] == "" {
			for _, key := range lazySrcset {
				if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
					values["srcset"] = v
					break
				}
			}
		}
	}

	var out []html.Attribute
	for _, key := range allowed {
		v, ok := values[key]
		if !ok {
			continue
		}
		switch {
		case urlAttrs[key]:
			v = safeURL(base, v)
			if v == "" {
				continue
			}
		case key == "srcset":
			v = rewriteSrcset(base, v)
			if v == "" {
				continue
			}
		}
		out = append(out, html.Attribute{Key: key, Val: v})
	}
	return out
}

// safeURL resolves ref and returns "" for anything but http(s) and mailto.
func safeURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "#") {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https", "mailto":
		return u.String()
	}
	return ""
}

// rewriteSrcset resolves every candidate URL of a srcset list.
func rewriteSrcset(base *url.URL, srcset string) string {
	var parts []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		abs := safeURL(base, fields[0])
		if abs == "" || strings.HasPrefix(abs, "#") {
			continue
		}
		fields[0] = abs
		parts = append(parts, strings.Join(fields, " "))
	}
	return strings.Join(parts, ", ")
}

func isPlaceholder(src string) bool {
	s := strings.ToLower(src)
	return strings.HasPrefix(s, "data:") || strings.Contains(s, "placeholder") ||
		strings.Contains(s, "blank.gif") || strings.Contains(s, "spacer.gif") || strings.Contains(s, "lazy")
}

func hasAttr(attrs []html.Attribute, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

func render(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}
	return strings.TrimSpace(buf.String())
}
