package scraper_test

import (
	"context"
	"net/http"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/usecase/fetch"
)

// pageFetcher serves canned pages; unknown URLs answer 404.
type pageFetcher struct {
	pages  map[string]string
	status int
	err    error
}

func (f *pageFetcher) Get(_ context.Context, url string, _ fetch.Options) (*fetch.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[url]
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	if f.status != 0 {
		status = f.status
	}
	return &fetch.Response{
		OK:       status >= 200 && status < 300,
		Status:   status,
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:     []byte(body),
		FinalURL: url,
	}, nil
}

func (f *pageFetcher) Head(ctx context.Context, url string, opts fetch.Options) (*fetch.Response, error) {
	resp, err := f.Get(ctx, url, opts)
	if resp != nil {
		resp.Body = nil
	}
	return resp, err
}

func (f *pageFetcher) GetMany(ctx context.Context, urls []string, opts fetch.Options) []fetch.BatchResult {
	out := make([]fetch.BatchResult, len(urls))
	for i, u := range urls {
		resp, err := f.Get(ctx, u, opts)
		out[i] = fetch.BatchResult{URL: u, Response: resp, Err: err}
	}
	return out
}

var blockedErr = &entity.BlockedTargetError{Code: entity.CodePrivateTarget, URL: "http://127.0.0.1/"}
