// Package fetch defines the HTTP fetching contract used by the refresh pipeline.
// Implementations live in internal/infra/fetcher.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Fetcher retrieves remote documents under the SSRF policy.
//
// Security considerations:
//   - Implementations MUST reject non-http(s) schemes and URLs carrying credentials
//   - Implementations MUST reject hosts resolving to private, loopback, link-local or reserved addresses,
//     both before the request and for the peer address actually dialled
//   - Implementations MUST follow redirects manually and re-validate every hop
//   - Implementations MUST enforce size limits and connect/total timeouts
//
// Failures are returned as *entity.BlockedTargetError or *entity.TransientFetchError.
// A non-2xx response is not an error: Response.OK is false and Status is set.
type Fetcher interface {
	// Get fetches url, consulting and updating the disk cache when opts.UseCache is set.
	Get(ctx context.Context, url string, opts Options) (*Response, error)

	// Head issues a HEAD request; the returned Response has no body.
	Head(ctx context.Context, url string, opts Options) (*Response, error)

	// GetMany fetches several URLs concurrently. Each URL is validated on its
	// own; results are returned in input order.
	GetMany(ctx context.Context, urls []string, opts Options) []BatchResult
}

// Options tunes a single fetch.
type Options struct {
	// UseCache enables the disk cache for this request.
	UseCache bool

	// TTL overrides the configured cache freshness window. Zero uses the default.
	TTL time.Duration

	// Accept overrides the Accept header.
	Accept string

	// Header holds extra request headers.
	Header http.Header
}

// Response is the outcome of a successful round trip (possibly served from cache).
type Response struct {
	OK        bool
	Status    int
	Header    http.Header
	Body      []byte
	FinalURL  string
	FromCache bool
	Was304    bool
}

// ContentType returns the response Content-Type header.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// BatchResult pairs a URL of a GetMany call with its outcome.
type BatchResult struct {
	URL      string
	Response *Response
	Err      error
}
