// Package override loads the host-pattern override table consulted by the
// refresher before the generic custom-mode path.
//
// The table is a YAML document:
//
//	overrides:
//	  - key: example-news
//	    host: '(www\.)?example\.com'
//	    path: '^/news/([a-z]+)'
//	    kind: native
//	    native_url: 'https://example.com/feeds/$1.xml'
//
// Host patterns are matched against the whole lower-cased host name; path
// patterns are matched unanchored against the URL path. Entries are tried in
// file order and the first match wins.
package override

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"pagefeed/internal/domain/entity"
)

// Kind selects what an override does.
type Kind string

const (
	// KindNative replaces the source with a known feed URL.
	KindNative Kind = "native"
	// KindNextJS scrapes the __NEXT_DATA__ blob of a Next.js page.
	KindNextJS Kind = "nextjs"
	// KindRemix scrapes the window.__remixContext blob of a Remix page.
	KindRemix Kind = "remix"
	// KindSelector scrapes items with full CSS selectors.
	KindSelector Kind = "selector"
)

// Entry is one row of the override table.
type Entry struct {
	Key       string `yaml:"key"`
	Host      string `yaml:"host"`
	Path      string `yaml:"path"`
	Kind      Kind   `yaml:"kind"`
	NativeURL string `yaml:"native_url"`

	entity.ScraperConfig `yaml:",inline"`

	hostRe *regexp.Regexp
	pathRe *regexp.Regexp
}

// Match is the result of a successful lookup.
type Match struct {
	Entry *Entry
	// NativeURL is the expanded native_url of a KindNative entry.
	NativeURL string
}

// Table is an ordered, immutable list of overrides. The zero value and a nil
// *Table match nothing.
type Table struct {
	entries []*Entry
}

type document struct {
	Overrides []*Entry `yaml:"overrides"`
}

// Load reads the table at path. An empty path or a missing file yields an
// empty table.
func Load(path string) (*Table, error) {
	if path == "" {
		return &Table{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read override table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("override table %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML override table.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(doc.Overrides))
	for i, e := range doc.Overrides {
		if e == nil {
			return nil, fmt.Errorf("override #%d is empty", i+1)
		}
		if err := e.compile(); err != nil {
			return nil, fmt.Errorf("override #%d (%s): %w", i+1, e.Key, err)
		}
		if seen[e.Key] {
			return nil, fmt.Errorf("override #%d: duplicate key %q", i+1, e.Key)
		}
		seen[e.Key] = true
	}
	return &Table{entries: doc.Overrides}, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the first entry matching rawURL.
func (t *Table) Lookup(rawURL string) (Match, bool) {
	if t == nil || len(t.entries) == 0 {
		return Match{}, false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Match{}, false
	}
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	for _, e := range t.entries {
		if !e.hostRe.MatchString(host) {
			continue
		}
		var sub []int
		if e.pathRe != nil {
			sub = e.pathRe.FindStringSubmatchIndex(path)
			if sub == nil {
				continue
			}
		}
		m := Match{Entry: e}
		if e.Kind == KindNative {
			m.NativeURL = e.expand(path, sub)
		}
		return m, true
	}
	return Match{}, false
}

// expand substitutes $1-style references to path captures into native_url.
func (e *Entry) expand(path string, sub []int) string {
	if e.pathRe == nil || !strings.Contains(e.NativeURL, "$") {
		return e.NativeURL
	}
	return string(e.pathRe.ExpandString(nil, e.NativeURL, path, sub))
}

func (e *Entry) compile() error {
	e.Key = strings.TrimSpace(e.Key)
	if e.Key == "" {
		return errors.New("key is required")
	}
	if strings.TrimSpace(e.Host) == "" {
		return errors.New("host pattern is required")
	}

	var err error
	if e.hostRe, err = regexp.Compile(`^(?:` + e.Host + `)$`); err != nil {
		return fmt.Errorf("host pattern: %w", err)
	}
	if e.Path != "" {
		if e.pathRe, err = regexp.Compile(e.Path); err != nil {
			return fmt.Errorf("path pattern: %w", err)
		}
	}

	switch e.Kind {
	case KindNative:
		if e.NativeURL == "" {
			return errors.New("native override requires native_url")
		}
		if !strings.HasPrefix(e.NativeURL, "http://") && !strings.HasPrefix(e.NativeURL, "https://") {
			return fmt.Errorf("native_url %q must be an http(s) URL", e.NativeURL)
		}
	case KindNextJS, KindRemix:
	case KindSelector:
		if e.ItemSelector == "" || e.TitleSelector == "" {
			return errors.New("selector override requires item_selector and title_selector")
		}
		for _, sel := range []string{e.ItemSelector, e.TitleSelector, e.URLSelector, e.DateSelector} {
			if sel == "" {
				continue
			}
			if _, err := cascadia.Compile(sel); err != nil {
				return fmt.Errorf("selector %q: %w", sel, err)
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
