package refresh

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/usecase/fetch"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// refreshNative fetches the native source and republishes it verbatim.
// done is false when the job was demoted and custom refresh must run next.
func (s *Service) refreshNative(ctx context.Context, job *entity.Job, res *Result) (done bool, err error) {
	resp, err := s.Fetcher.Get(ctx, job.NativeSource, fetch.Options{UseCache: true, Accept: feedAccept})
	if err != nil {
		return true, fmt.Errorf("native refresh: %w", err)
	}
	res.HTTPStatus = resp.Status
	if !resp.OK {
		return true, statusError(job.NativeSource, resp.Status)
	}

	detected, body := SniffFeed(resp.Body, resp.ContentType())
	var reason string
	switch {
	case detected == "":
		reason = "native source no longer returns a feed"
	case detected != job.Format:
		reason = fmt.Sprintf("native source returns %s, job format is %s", detected, job.Format)
	}
	if reason != "" {
		job.DemoteToCustom(reason)
		job.UpdatedAt = s.now()
		res.Demoted = true
		s.logger().Warn("native job demoted to custom mode",
			slog.String("job_id", job.ID),
			slog.String("native_source", job.NativeSource),
			slog.String("reason", reason))
		return false, nil
	}

	return true, s.publishVerbatim(job, detected, body, res)
}

// publishVerbatim validates a feed already in a compatible format and
// publishes it unchanged.
func (s *Service) publishVerbatim(job *entity.Job, format entity.Format, body []byte, res *Result) error {
	vr := s.Validator.Validate(format, body)
	if !vr.OK {
		return vr.Err(format)
	}
	if items, _, err := feed.ParseItems(body); err == nil {
		res.Items = len(items)
	}
	if err := s.Publisher.Publish(job.FeedFilename, body); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}
	res.Published = true
	res.Bytes = len(body)
	res.Warnings = vr.Warnings
	return nil
}

// SniffFeed reports the feed format of body, or "" for a non-feed, and
// returns the body ready for parsing: XML converted to UTF-8 and JSON
// without a byte order mark.
func SniffFeed(body []byte, contentType string) (entity.Format, []byte) {
	format := feed.Detect(body, contentType)
	if format == "" && looksLikeXML(body) {
		// Wide encodings hide the root element from the sniffer.
		normalized, _ := encoding.NormalizeXML(body, contentType)
		if format = feed.Detect(normalized, contentType); format != "" {
			return format, normalized
		}
	}
	switch format {
	case "":
		return "", nil
	case entity.FormatJSONFeed:
		return format, bytes.TrimPrefix(body, bomUTF8)
	default:
		normalized, _ := encoding.NormalizeXML(body, contentType)
		return format, normalized
	}
}

func looksLikeXML(body []byte) bool {
	return encoding.DeclaredXMLEncoding(body) != "" ||
		bytes.HasPrefix(body, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(body, []byte{0xFE, 0xFF})
}

func statusError(url string, status int) error {
	return &entity.TransientFetchError{Code: entity.CodeHTTPStatus, URL: url, Status: status}
}
