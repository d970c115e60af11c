package job

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/usecase/fetch"
)

const probeAccept = "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml,application/feed+json;q=0.9,*/*;q=0.8"

// Discovery is what a single probe of the source page revealed.
type Discovery struct {
	// FeedURL is the advertised or actual feed, empty when none was found.
	FeedURL string
	Format  entity.Format
	// SourceIsFeed is set when the source URL itself serves a feed.
	SourceIsFeed bool
	// ProbeErr records a transient probe failure; registration proceeds
	// in custom mode.
	ProbeErr error
}

// discover probes sourceURL once. Blocked targets are returned as errors;
// any other failure is recorded in Discovery.ProbeErr.
func (s *Service) discover(ctx context.Context, sourceURL string, want entity.Format) (Discovery, error) {
	resp, err := s.Fetcher.Get(ctx, sourceURL, fetch.Options{Accept: probeAccept})
	if err != nil {
		var blocked *entity.BlockedTargetError
		if errors.As(err, &blocked) {
			return Discovery{}, err
		}
		return Discovery{ProbeErr: err}, nil
	}
	if !resp.OK {
		return Discovery{ProbeErr: &entity.TransientFetchError{Code: entity.CodeHTTPStatus, URL: sourceURL, Status: resp.Status}}, nil
	}

	if format := feed.Detect(resp.Body, resp.ContentType()); format != "" {
		return Discovery{FeedURL: sourceURL, Format: format, SourceIsFeed: true}, nil
	}

	base := resp.FinalURL
	if base == "" {
		base = sourceURL
	}
	body, _ := encoding.NormalizeHTML(resp.Body, resp.ContentType())
	return discoverLinks(body, base, want), nil
}

// discoverLinks picks the <link rel="alternate"> feed matching want, or the
// first advertised feed when none matches.
func discoverLinks(body []byte, baseURL string, want entity.Format) Discovery {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Discovery{}
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return Discovery{}
	}

	var first, match Discovery
	doc.Find(`link[href]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !hasToken(sel.AttrOr("rel", ""), "alternate") {
			return true
		}
		format := linkFormat(sel.AttrOr("type", ""))
		if format == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(sel.AttrOr("href", "")))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()
		if entity.ValidateURL(abs) != nil {
			return true
		}

		d := Discovery{FeedURL: abs, Format: format}
		if first.FeedURL == "" {
			first = d
		}
		if format == want {
			match = d
			return false
		}
		return true
	})
	if match.FeedURL != "" {
		return match
	}
	return first
}

func linkFormat(mediaType string) entity.Format {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "application/rss+xml":
		return entity.FormatRSS
	case "application/atom+xml":
		return entity.FormatAtom
	case "application/feed+json", "application/json":
		return entity.FormatJSONFeed
	}
	return ""
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
