package redis

import (
	"context"
	"errors"
	"time"

	"github.com/satriyop/enteraksi/internal/application/query"
)

// PathProgressCache implements query.PathProgressCache on Cache.
type PathProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewPathProgressCache creates the cache. A non-positive ttl uses TTLPathProgress.
func NewPathProgressCache(cache *Cache, ttl time.Duration) *PathProgressCache {
	if ttl <= 0 {
		ttl = TTLPathProgress
	}
	return &PathProgressCache{cache: cache, ttl: ttl}
}

// Get returns the cached view. A miss is (nil, false, nil).
func (c *PathProgressCache) Get(ctx context.Context, pathEnrollmentID string) (*query.PathProgressView, bool, error) {
	var view query.PathProgressView
	err := c.cache.Get(ctx, PathProgressKey(pathEnrollmentID), &view)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return nil, false, nil
	case errors.Is(err, ErrCacheSerialization):
		// A view written by an older layout; drop it and rebuild.
		_ = c.cache.Delete(ctx, PathProgressKey(pathEnrollmentID))
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return &view, true, nil
}

// Set stores the view under its path enrollment id.
func (c *PathProgressCache) Set(ctx context.Context, view *query.PathProgressView) error {
	if view == nil {
		return ErrCacheNilValue
	}
	return c.cache.Set(ctx, PathProgressKey(view.PathEnrollmentID), view, c.ttl)
}

// Invalidate drops the cached view.
func (c *PathProgressCache) Invalidate(ctx context.Context, pathEnrollmentID string) error {
	return c.cache.Delete(ctx, PathProgressKey(pathEnrollmentID))
}

// InvalidateAll drops every cached path view.
func (c *PathProgressCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeleteByPattern(ctx, PrefixPathProgress+"*")
}
