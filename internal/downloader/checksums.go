package downloader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ligustah/offliner/internal/plan"
)

type checksumResult struct {
	value string
	err   error
}

// checksumCache fetches each companion file at most once per run. Results
// are kept unless the fetch was interrupted by cancellation.
type checksumCache struct {
	fetch func(ctx context.Context, req *plan.TransferRequest) (string, error)

	group   singleflight.Group
	mu      sync.Mutex
	results map[string]checksumResult
}

func newChecksumCache(fetch func(context.Context, *plan.TransferRequest) (string, error)) *checksumCache {
	return &checksumCache{
		fetch:   fetch,
		results: make(map[string]checksumResult),
	}
}

func (c *checksumCache) lookup(path string) (checksumResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[path]
	return r, ok
}

// get returns the parsed digest for req, fetching it if no other caller has.
func (c *checksumCache) get(ctx context.Context, req *plan.TransferRequest) (string, error) {
	if r, ok := c.lookup(req.Path); ok {
		return r.value, r.err
	}

	v, err, _ := c.group.Do(req.Path, func() (any, error) {
		if r, ok := c.lookup(req.Path); ok {
			return r.value, r.err
		}

		value, err := c.fetch(ctx, req)
		if ctx.Err() == nil {
			c.mu.Lock()
			c.results[req.Path] = checksumResult{value: value, err: err}
			c.mu.Unlock()
		}
		return value, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
