package catalog

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
)

// queryCache memoizes GetExports answers per constraint. It is owned by one
// catalog and flushed whenever that catalog changes.
type queryCache struct {
	cache *gocache.Cache
}

func newQueryCache() *queryCache {
	// Entries never expire on their own; flush is the only eviction.
	return &queryCache{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (q *queryCache) getOrCompute(ctx context.Context, c definition.Constraint, compute func() []Pair) []Pair {
	key := c.Key()
	if v, found := q.cache.Get(key); found {
		if pairs, ok := v.([]Pair); ok {
			return append([]Pair(nil), pairs...)
		}
		ctxlog.FromContext(ctx).Error("Wrong type in catalog query cache.", "key", key)
	}
	pairs := compute()
	q.cache.Set(key, pairs, gocache.NoExpiration)
	return append([]Pair(nil), pairs...)
}

func (q *queryCache) flush() { q.cache.Flush() }

func (q *queryCache) size() int { return q.cache.ItemCount() }
