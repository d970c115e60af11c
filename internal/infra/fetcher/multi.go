package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pagefeed/internal/usecase/fetch"
)

// GetMany fetches urls concurrently, at most BatchConcurrency at a time.
// Every URL goes through the full Get path (policy checks, redirects and
// cache when opts.UseCache is set). Failures are reported per URL and never
// cancel the rest of the batch. Results keep the input order.
func (c *Client) GetMany(ctx context.Context, urls []string, opts fetch.Options) []fetch.BatchResult {
	results := make([]fetch.BatchResult, len(urls))

	var g errgroup.Group
	g.SetLimit(c.cfg.BatchConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			results[i].URL = u
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Response, results[i].Err = c.Get(ctx, u, opts)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
