package feed

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"pagefeed/internal/domain/entity"
)

const atomNamespace = "http://www.w3.org/2005/Atom"

// Result is the outcome of validating a feed document. Errors block
// publication; warnings are recorded on the job.
type Result struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Err returns a *entity.ValidationError when r is not OK.
func (r Result) Err(format entity.Format) error {
	if r.OK {
		return nil
	}
	return &entity.ValidationError{Format: format, Errors: r.Errors}
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator checks feed documents for structural correctness. It is safe
// for concurrent use.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks body as a document of format. The structural checks run
// first; a document that passes them is re-parsed with a feed parser.
func (v *Validator) Validate(format entity.Format, body []byte) Result {
	var r Result
	if len(bytes.TrimSpace(body)) == 0 {
		r.errorf("document is empty")
		return r
	}

	switch format {
	case entity.FormatJSONFeed:
		validateJSONFeed(&r, body)
	case entity.FormatRSS:
		if root := parseXML(&r, body); root != nil {
			validateRSS(&r, root)
		}
	case entity.FormatAtom:
		if root := parseXML(&r, body); root != nil {
			validateAtom(&r, root)
		}
	default:
		r.errorf("unsupported format %q", format)
	}

	if len(r.Errors) == 0 {
		if _, err := gofeed.NewParser().Parse(bytes.NewReader(body)); err != nil {
			r.errorf("feed parser rejected document: %v", err)
		}
	}
	r.OK = len(r.Errors) == 0
	return r
}

func validateJSONFeed(r *Result, body []byte) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		r.errorf("invalid JSON: %v", err)
		return
	}

	version, _ := doc["version"].(string)
	switch {
	case version == "":
		r.errorf("missing version")
	case !strings.HasPrefix(version, "https://jsonfeed.org/version/"):
		r.warnf("unexpected version %q", version)
	}
	if title, _ := doc["title"].(string); strings.TrimSpace(title) == "" {
		r.errorf("missing title")
	}
	if _, ok := doc["home_page_url"].(string); !ok {
		r.warnf("missing home_page_url")
	}

	items, ok := doc["items"].([]any)
	if !ok {
		r.errorf("items must be an array")
		return
	}
	if len(items) == 0 {
		r.warnf("feed has no items")
	}
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			r.errorf("item %d is not an object", i)
			continue
		}
		switch id := item["id"].(type) {
		case string:
			if strings.TrimSpace(id) == "" {
				r.errorf("item %d has an empty id", i)
			}
		case float64:
			r.warnf("item %d id is a number", i)
		default:
			r.errorf("item %d has no id", i)
		}
		_, hasHTML := item["content_html"].(string)
		_, hasText := item["content_text"].(string)
		if !hasHTML && !hasText {
			r.warnf("item %d has neither content_html nor content_text", i)
		}
		if _, ok := item["url"].(string); !ok {
			r.warnf("item %d has no url", i)
		}
	}
}

// xmlNode is the minimal element tree the XML checks need.
type xmlNode struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

func (n *xmlNode) child(local string) *xmlNode {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *xmlNode) all(local string) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.children {
		if c.name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

func (n *xmlNode) attr(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) textOf(local string) (string, bool) {
	c := n.child(local)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.text.String()), true
}

// parseXML decodes body into an element tree. Malformed documents are
// recorded as errors and yield nil.
func parseXML(r *Result, body []byte) *xmlNode {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.errorf("malformed XML: %v", err)
			return nil
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					r.errorf("malformed XML: multiple root elements")
					return nil
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		r.errorf("malformed XML: no root element")
	}
	return root
}

func validateRSS(r *Result, root *xmlNode) {
	var items []*xmlNode
	switch root.name.Local {
	case "rss":
		if v := root.attr("version"); v != "2.0" {
			r.warnf("rss version is %q, expected 2.0", v)
		}
	case "RDF":
		r.warnf("document is RSS 1.0 (RDF)")
		items = root.all("item")
	default:
		r.errorf("root element is <%s>, expected <rss>", root.name.Local)
		return
	}

	channel := root.child("channel")
	if channel == nil {
		r.errorf("missing <channel>")
		return
	}
	for _, field := range []string{"title", "link", "description"} {
		v, ok := channel.textOf(field)
		switch {
		case !ok:
			r.warnf("channel is missing <%s>", field)
		case v == "":
			r.warnf("channel <%s> is empty", field)
		}
	}

	items = append(channel.all("item"), items...)
	if len(items) == 0 {
		r.warnf("channel has no items")
	}
	for i, item := range items {
		title, _ := item.textOf("title")
		desc, _ := item.textOf("description")
		if title == "" && desc == "" {
			r.warnf("item %d has neither title nor description", i)
		}
		link, _ := item.textOf("link")
		guid, _ := item.textOf("guid")
		if link == "" && guid == "" {
			r.warnf("item %d has neither link nor guid", i)
		}
	}
}

func validateAtom(r *Result, root *xmlNode) {
	if root.name.Local != "feed" {
		r.errorf("root element is <%s>, expected <feed>", root.name.Local)
		return
	}
	if root.name.Space != atomNamespace {
		r.warnf("feed namespace is %q, expected %s", root.name.Space, atomNamespace)
	}
	for _, field := range []string{"id", "title", "updated"} {
		if v, _ := root.textOf(field); v == "" {
			r.warnf("feed is missing <%s>", field)
		}
	}

	entries := root.all("entry")
	if len(entries) == 0 {
		r.warnf("feed has no entries")
	}
	for i, e := range entries {
		for _, field := range []string{"id", "title", "updated"} {
			if v, _ := e.textOf(field); v == "" {
				r.warnf("entry %d is missing <%s>", i, field)
			}
		}
		if e.child("link") == nil {
			r.warnf("entry %d has no link", i)
		}
	}
}
