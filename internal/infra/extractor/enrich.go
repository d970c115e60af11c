package extractor

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/usecase/fetch"
)

// metaQuery is a selector plus the attribute holding the value. An empty
// attribute means element text.
type metaQuery struct {
	selector string
	attr     string
}

// Query lists are tried in order; the first non-empty value wins.
var (
	descriptionQueries = []metaQuery{
		{`meta[name="description"]`, "content"},
		{`meta[property="og:description"]`, "content"},
		{`meta[name="twitter:description"]`, "content"},
	}
	titleQueries = []metaQuery{
		{`meta[property="og:title"]`, "content"},
		{`meta[name="twitter:title"]`, "content"},
		{`h1`, ""},
		{`title`, ""},
	}
	dateQueries = []metaQuery{
		{`meta[property="article:published_time"]`, "content"},
		{`meta[itemprop="datePublished"]`, "content"},
		{`[itemprop="datePublished"]`, "datetime"},
		{`meta[name="date"]`, "content"},
		{`meta[name="pubdate"]`, "content"},
		{`time[datetime]`, "datetime"},
	}
	authorQueries = []metaQuery{
		{`meta[name="author"]`, "content"},
		{`meta[property="article:author"]`, "content"},
		{`[itemprop="author"] [itemprop="name"]`, ""},
		{`[rel="author"]`, ""},
	}
	imageQueries = []metaQuery{
		{`meta[property="og:image"]`, "content"},
		{`meta[property="og:image:url"]`, "content"},
		{`meta[property="og:image:secure_url"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`meta[name="twitter:image:src"]`, "content"},
		{`link[rel="image_src"]`, "href"},
	}
	bodyQueries = []string{
		`[itemprop="articleBody"]`,
		`article .entry-content`,
		`article .post-content`,
		`article .article-body`,
		`.entry-content`,
		`.post-content`,
		`article`,
	}
)

// enrich fills missing metadata of the first budget items that need it by
// fetching their pages. Fetch failures leave the item unchanged.
func (e *Extractor) enrich(ctx context.Context, items []entity.Item, budget int) []entity.Item {
	var (
		idx  []int
		urls []string
	)
	for i, it := range items {
		if len(idx) >= budget {
			break
		}
		if it.NeedsEnrichment() {
			idx = append(idx, i)
			urls = append(urls, it.Link)
		}
	}
	if len(urls) == 0 {
		return items
	}

	results := e.fetcher.GetMany(ctx, urls, fetch.Options{UseCache: true})
	for n, res := range results {
		i := idx[n]
		if res.Err != nil || res.Response == nil || !res.Response.OK || !isHTMLType(res.Response.ContentType()) {
			e.logger.Debug("enrichment fetch skipped",
				slog.String("url", res.URL),
				slog.Any("error", res.Err))
			continue
		}
		meta := PageMetadata(res.Response.Body, res.Response.ContentType(), res.Response.FinalURL)
		items[i] = items[i].Merge(meta)
	}
	return items
}

// PageMetadata extracts item metadata from an article page.
func PageMetadata(body []byte, contentType, pageURL string) entity.Item {
	body, _ = encoding.NormalizeHTML(body, contentType)
	base, err := url.Parse(pageURL)
	if err != nil {
		return entity.Item{}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return entity.Item{}
	}

	it := entity.Item{
		Title:       firstMeta(doc, titleQueries),
		Description: firstMeta(doc, descriptionQueries),
		Date:        firstMeta(doc, dateQueries),
		Author:      firstMeta(doc, authorQueries),
		Image:       absoluteURL(base, firstMeta(doc, imageQueries)),
		Tags:        pageTags(doc),
	}

	// Structured data on the article page fills what meta tags lack.
	for _, node := range ldNodes(doc) {
		if !isArticle(node) {
			continue
		}
		if ld, ok := articleItem(node); ok || ld.Date != "" {
			ld.Link = ""
			it = it.Merge(ld)
			break
		}
	}

	it.ContentHTML = articleBody(doc, body, base)
	return it
}

func firstMeta(doc *goquery.Document, queries []metaQuery) string {
	for _, q := range queries {
		sel := doc.Find(q.selector).First()
		if sel.Length() == 0 {
			continue
		}
		var v string
		if q.attr == "" {
			v = sel.Text()
		} else {
			v, _ = sel.Attr(q.attr)
		}
		if v = collapseSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func pageTags(doc *goquery.Document) []string {
	var tags []string
	seen := make(map[string]bool)
	add := func(t string) {
		t = collapseSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			return
		}
		seen[strings.ToLower(t)] = true
		tags = append(tags, t)
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("content")
		add(v)
	})
	if len(tags) == 0 {
		if v, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
			for _, k := range strings.Split(v, ",") {
				add(k)
			}
		}
	}
	return tags
}

// articleBody returns the sanitized body of the first matching container,
// falling back to readability when no container matches.
func articleBody(doc *goquery.Document, body []byte, base *url.URL) string {
	for _, q := range bodyQueries {
		sel := doc.Find(q).First()
		if sel.Length() == 0 {
			continue
		}
		if len(collapseSpace(sel.Text())) < 80 {
			continue
		}
		if out := SanitizeSelection(sel, base); out != "" {
			return out
		}
	}

	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return ""
	}
	return Sanitize(article.Content, base)
}

func isHTMLType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "html")
}
