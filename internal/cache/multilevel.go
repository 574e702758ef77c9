package cache

import (
	"context"
	"errors"

	"github.com/objectfs/cachingfs/pkg/async"
)

// MultiLevelCache puts an in-memory L1 in front of a persistent L2. Writes go to both
// levels; reads that hit L2 are promoted into L1.
type MultiLevelCache struct {
	l1 *LRUCache[[]byte]
	l2 *PersistentCache
}

// NewMultiLevelCache combines l1 and l2.
func NewMultiLevelCache(l1 *LRUCache[[]byte], l2 *PersistentCache) *MultiLevelCache {
	return &MultiLevelCache{l1: l1, l2: l2}
}

// Get retrieves a value from the first level that has it
func (c *MultiLevelCache) Get(ctx context.Context, key string) *async.Result[Lookup[[]byte]] {
	hit, _ := c.l1.Get(ctx, key).Get()
	if hit.Found {
		return async.Resolved(hit)
	}
	return async.Then(c.l2.Get(ctx, key), func(l Lookup[[]byte]) (Lookup[[]byte], error) {
		if l.Found {
			_ = c.l1.Set(ctx, key, l.Value)
		}
		return l, nil
	}, nil)
}

// GetMulti serves what it can from L1 and asks L2 for the rest.
func (c *MultiLevelCache) GetMulti(ctx context.Context, keys []string) *async.Result[map[string][]byte] {
	found, _ := c.l1.GetMulti(ctx, keys).Get()

	var missing []string
	for _, key := range keys {
		if _, ok := found[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return async.Resolved(found)
	}

	return async.Then(c.l2.GetMulti(ctx, missing), func(fromL2 map[string][]byte) (map[string][]byte, error) {
		if len(fromL2) > 0 {
			_ = c.l1.SetMulti(ctx, fromL2)
		}
		for k, v := range fromL2 {
			found[k] = v
		}
		return found, nil
	}, nil)
}

// Set stores a value in both levels
func (c *MultiLevelCache) Set(ctx context.Context, key string, value []byte) error {
	_ = c.l1.Set(ctx, key, value)
	return c.l2.Set(ctx, key, value)
}

// SetMulti stores every value in both levels
func (c *MultiLevelCache) SetMulti(ctx context.Context, values map[string][]byte) error {
	_ = c.l1.SetMulti(ctx, values)
	return c.l2.SetMulti(ctx, values)
}

// Delete removes keys from both levels
func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}

// Stats returns combined statistics from both levels
func (c *MultiLevelCache) Stats() Stats {
	s1, s2 := c.l1.Stats(), c.l2.Stats()
	combined := Stats{
		Hits:      s1.Hits + s2.Hits,
		Misses:    s2.Misses,
		Evictions: s1.Evictions + s2.Evictions,
		Entries:   s2.Entries,
	}
	if total := combined.Hits + combined.Misses; total > 0 {
		combined.HitRate = float64(combined.Hits) / float64(total)
	}
	return combined
}

// Close closes both levels
func (c *MultiLevelCache) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}
