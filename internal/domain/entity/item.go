package entity

import "strings"

// Item is one candidate feed entry. Items are produced by extraction and
// consumed by feed rendering; they are never persisted on their own.
type Item struct {
	Title       string
	Link        string
	Description string
	// Date is kept as found in the source; renderers parse it when they can.
	Date        string
	ContentHTML string
	Author      string
	Image       string
	Tags        []string
}

// DedupKey is the key used to collapse duplicate items: the lower-cased
// absolute link without fragment.
func (it Item) DedupKey() string {
	link := it.Link
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	return strings.ToLower(strings.TrimSpace(link))
}

// NeedsEnrichment reports whether any optional metadata is still missing.
func (it Item) NeedsEnrichment() bool {
	return it.Description == "" || it.Date == "" || it.ContentHTML == "" ||
		it.Author == "" || it.Image == "" || len(it.Tags) == 0
}

// Merge fills the empty fields of it from other. Populated fields win.
func (it Item) Merge(other Item) Item {
	if it.Title == "" {
		it.Title = other.Title
	}
	if it.Description == "" {
		it.Description = other.Description
	}
	if it.Date == "" {
		it.Date = other.Date
	}
	if it.ContentHTML == "" {
		it.ContentHTML = other.ContentHTML
	}
	if it.Author == "" {
		it.Author = other.Author
	}
	if it.Image == "" {
		it.Image = other.Image
	}
	if len(it.Tags) == 0 && len(other.Tags) > 0 {
		it.Tags = append([]string(nil), other.Tags...)
	}
	return it
}

// SearchText is the text keyword filters are matched against.
func (it Item) SearchText() string {
	return strings.Join([]string{it.Title, it.Description, StripTags(it.ContentHTML)}, "\n")
}

// StripTags removes markup from s with a tolerant scan; entities are left as is.
func StripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
			b.WriteByte(' ')
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
