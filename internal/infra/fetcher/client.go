package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/observability/metrics"
	"pagefeed/internal/usecase/fetch"
)

const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml,application/atom+xml,application/feed+json;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.8"

	// redirectDrainLimit bounds how much of a redirect body is read before
	// the connection is reused.
	redirectDrainLimit = 64 << 10
)

// Client is the SSRF-safe HTTP client of the fetch layer. It implements
// fetch.Fetcher.
//
// Features:
//   - Scheme, credential and address checks before every hop
//   - Peer address check at dial time (DNS rebinding defence)
//   - Manual redirect walking with loop detection
//   - Connect and total timeouts on every request
//   - Body size limit enforced while reading
//   - Optional disk cache with conditional revalidation
//
// Thread safety: Client is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	policy *policy
	cache  *diskCache
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used for cache and redirect diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces time.Now, mainly for cache freshness tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// withBlockPolicy replaces the address policy. Tests use it to reach
// loopback test servers while keeping other ranges blocked.
func withBlockPolicy(blocked func(netip.Addr) bool) Option {
	return func(c *Client) { c.policy.blocked = blocked }
}

// New creates a Client from cfg. The configuration is validated and the
// cache directory created when caching is enabled.
//
// Example:
//
//	cfg, _ := fetcher.LoadConfigFromEnv()
//	client, err := fetcher.New(cfg, fetcher.WithLogger(logger))
//	resp, err := client.Get(ctx, "https://example.com/news", fetch.Options{UseCache: true})
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		policy: &policy{resolver: net.DefaultResolver},
		logger: slog.Default(),
		now:    time.Now,
	}
	if cfg.DenyPrivateIPs {
		c.policy.blocked = isBlockedIP
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.CacheDir != "" {
		cache, err := newDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			return c.policy.controlPeer(network, address)
		},
	}

	c.http = &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.Timeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// Redirects are walked by follow so that every hop is re-validated.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// Get fetches rawURL. When opts.UseCache is set a fresh cache entry is served
// without a network call, and a stale one is revalidated with conditional
// headers.
func (c *Client) Get(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error) {
	start := c.now()
	resp, err := c.get(ctx, rawURL, opts)
	c.record(start, resp, err)
	return resp, err
}

func (c *Client) get(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	key := target.String()

	var cached *cacheEntry
	useCache := opts.UseCache && c.cache != nil
	if useCache {
		cached = c.cache.load(key)
		if cached != nil && cached.fresh(c.now(), c.ttl(opts)) {
			c.logger.Debug("cache hit", slog.String("url", key))
			return cached.response(), nil
		}
	}

	header := c.requestHeader(opts)
	if cached != nil {
		if cached.ETag != "" {
			header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, body, final, err := c.follow(ctx, http.MethodGet, target, header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		cached.FetchedAt = c.now()
		if err := c.cache.store(key, cached); err != nil {
			c.logger.Warn("failed to refresh cache entry", slog.String("url", key), slog.Any("error", err))
		}
		out := cached.response()
		out.Was304 = true
		return out, nil
	}

	out := &fetch.Response{
		OK:       resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     body,
		FinalURL: final.String(),
	}

	if useCache && resp.StatusCode >= 200 && resp.StatusCode < 400 && len(body) > 0 {
		entry := newCacheEntry(out, c.now())
		if err := c.cache.store(key, entry); err != nil {
			c.logger.Warn("failed to write cache entry", slog.String("url", key), slog.Any("error", err))
		}
	}

	return out, nil
}

// Head issues a HEAD request for rawURL. The cache is never consulted.
func (c *Client) Head(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error) {
	start := c.now()
	target, err := parseTarget(rawURL)
	if err != nil {
		c.record(start, nil, err)
		return nil, err
	}

	resp, _, final, err := c.follow(ctx, http.MethodHead, target, c.requestHeader(opts))
	if err != nil {
		c.record(start, nil, err)
		return nil, err
	}

	out := &fetch.Response{
		OK:       resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:   resp.StatusCode,
		Header:   resp.Header,
		FinalURL: final.String(),
	}
	c.record(start, out, nil)
	return out, nil
}

// follow performs the request and walks redirects by hand. The returned
// response body is already consumed into the returned byte slice.
//
// A Location that revisits a URL of the chain is rejected as redirect_loop
// before the hop count is compared against MaxRedirects.
func (c *Client) follow(ctx context.Context, method string, start *url.URL, header http.Header) (*http.Response, []byte, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	visited := map[string]struct{}{start.String(): {}}
	current := start

	for hops := 0; ; hops++ {
		if err := c.policy.checkHost(ctx, current); err != nil {
			return nil, nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, current.String(), nil)
		if err != nil {
			return nil, nil, nil, &entity.BlockedTargetError{Code: entity.CodeInvalidURL, URL: current.String(), Err: err}
		}
		req.Header = header.Clone()

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, nil, nil, classifyTransportError(ctx, current.String(), err)
		}

		location := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || location == "" {
			body, err := c.readBody(resp, current.String())
			if err != nil {
				return nil, nil, nil, err
			}
			return resp, body, current, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, redirectDrainLimit))
		_ = resp.Body.Close()

		next, err := resolveLocation(current, location)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, seen := visited[next.String()]; seen {
			return nil, nil, nil, &entity.TransientFetchError{Code: entity.CodeRedirectLoop, URL: next.String(),
				Status: resp.StatusCode, Err: fmt.Errorf("redirect chain revisits %s", next)}
		}
		if hops >= c.cfg.MaxRedirects {
			return nil, nil, nil, &entity.TransientFetchError{Code: entity.CodeTooManyRedirects, URL: start.String(),
				Status: resp.StatusCode, Err: fmt.Errorf("more than %d redirects", c.cfg.MaxRedirects)}
		}

		c.logger.Debug("following redirect",
			slog.String("from", current.String()),
			slog.String("to", next.String()),
			slog.Int("status", resp.StatusCode))

		visited[next.String()] = struct{}{}
		current = next
	}
}

// readBody reads and closes resp.Body, enforcing MaxBodySize.
func (c *Client) readBody(resp *http.Response, rawURL string) ([]byte, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, classifyTransportError(resp.Request.Context(), rawURL, err)
	}
	if int64(len(body)) > c.cfg.MaxBodySize {
		return nil, &entity.TransientFetchError{Code: entity.CodeBodyTooLarge, URL: rawURL, Status: resp.StatusCode,
			Err: fmt.Errorf("response exceeds %d bytes", c.cfg.MaxBodySize)}
	}
	return body, nil
}

func (c *Client) requestHeader(opts fetch.Options) http.Header {
	h := make(http.Header)
	for k, vs := range opts.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("User-Agent", c.cfg.UserAgent)
	if opts.Accept != "" {
		h.Set("Accept", opts.Accept)
	} else if h.Get("Accept") == "" {
		h.Set("Accept", defaultAccept)
	}
	if h.Get("Accept-Language") == "" {
		h.Set("Accept-Language", defaultAcceptLanguage)
	}
	return h
}

func (c *Client) ttl(opts fetch.Options) time.Duration {
	if opts.TTL > 0 {
		return opts.TTL
	}
	return c.cfg.CacheTTL
}

func (c *Client) record(start time.Time, resp *fetch.Response, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = entity.ErrorCode(err)
	case resp.FromCache:
		result = "cache"
	case !resp.OK:
		result = "http_status"
	}
	metrics.RecordFetch(result, c.now().Sub(start))
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// classifyTransportError maps a transport failure onto the fetch error
// taxonomy. Peer policy rejections raised in Dialer.Control pass through.
func classifyTransportError(ctx context.Context, rawURL string, err error) error {
	var blocked *entity.BlockedTargetError
	if errors.As(err, &blocked) {
		blocked.URL = rawURL
		return blocked
	}

	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &entity.TransientFetchError{Code: entity.CodeTimeout, URL: rawURL, Err: err}
	}

	return &entity.TransientFetchError{Code: entity.CodeNetwork, URL: rawURL, Err: err}
}
