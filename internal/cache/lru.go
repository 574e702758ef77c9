package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/objectfs/cachingfs/pkg/async"
)

// CacheConfig represents in-memory store configuration
type CacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Stats represents store performance statistics
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// LRUCache is a thread-safe in-memory Store bounded by entry count, with optional TTL.
// Every call resolves synchronously.
type LRUCache[V any] struct {
	mu        sync.Mutex
	items     map[string]*cacheItem[V]
	evictList *list.List
	config    CacheConfig
	stats     Stats

	stopCh    chan struct{}
	closeOnce sync.Once
}

type cacheItem[V any] struct {
	key       string
	value     V
	timestamp time.Time
	element   *list.Element
}

// NewLRUCache creates a new in-memory store. A zero MaxEntries means unbounded.
func NewLRUCache[V any](config *CacheConfig) *LRUCache[V] {
	if config == nil {
		config = &CacheConfig{MaxEntries: 100000}
	}

	c := &LRUCache[V]{
		items:     make(map[string]*cacheItem[V]),
		evictList: list.New(),
		config:    *config,
		stopCh:    make(chan struct{}),
	}

	if c.config.TTL > 0 {
		go c.cleanupExpired()
	}

	return c
}

// Get retrieves a value from the cache
func (c *LRUCache[V]) Get(_ context.Context, key string) *async.Result[Lookup[V]] {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lookup(key)
	return async.Resolved(Lookup[V]{Value: v, Found: ok})
}

// GetMulti retrieves the present subset of keys
func (c *LRUCache[V]) GetMulti(_ context.Context, keys []string) *async.Result[map[string]V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]V, len(keys))
	for _, key := range keys {
		if v, ok := c.lookup(key); ok {
			out[key] = v
		}
	}
	return async.Resolved(out)
}

// Set stores a value in the cache
func (c *LRUCache[V]) Set(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(key, value)
	c.evictIfNeeded()
	return nil
}

// SetMulti stores every value in the cache
func (c *LRUCache[V]) SetMulti(_ context.Context, values map[string]V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range values {
		c.put(key, value)
	}
	c.evictIfNeeded()
	return nil
}

// Delete removes keys from the cache
func (c *LRUCache[V]) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.removeItem(key)
	}
	return nil
}

// Len returns the number of entries
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *LRUCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Clear clears all items from the cache
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Evictions += uint64(len(c.items))
	c.items = make(map[string]*cacheItem[V])
	c.evictList.Init()
}

// Close stops the expiry goroutine.
func (c *LRUCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

// Helper methods

func (c *LRUCache[V]) lookup(key string) (V, bool) {
	var zero V

	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return zero, false
	}

	if c.isExpired(item) {
		c.removeItem(key)
		c.stats.Misses++
		return zero, false
	}

	c.evictList.MoveToFront(item.element)
	c.stats.Hits++
	return item.value, true
}

func (c *LRUCache[V]) put(key string, value V) {
	if item, exists := c.items[key]; exists {
		item.value = value
		item.timestamp = time.Now()
		c.evictList.MoveToFront(item.element)
		return
	}

	item := &cacheItem[V]{
		key:       key,
		value:     value,
		timestamp: time.Now(),
	}
	item.element = c.evictList.PushFront(key)
	c.items[key] = item
}

func (c *LRUCache[V]) isExpired(item *cacheItem[V]) bool {
	if c.config.TTL == 0 {
		return false
	}
	return time.Since(item.timestamp) > c.config.TTL
}

func (c *LRUCache[V]) removeItem(key string) {
	item, exists := c.items[key]
	if !exists {
		return
	}

	c.evictList.Remove(item.element)
	delete(c.items, key)
	c.stats.Evictions++
}

func (c *LRUCache[V]) evictIfNeeded() {
	if c.config.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.config.MaxEntries {
		element := c.evictList.Back()
		if element == nil {
			return
		}
		c.removeItem(element.Value.(string))
	}
}

func (c *LRUCache[V]) cleanupExpired() {
	cleanupInterval := c.config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if c.isExpired(item) {
					c.removeItem(key)
				}
			}
			c.mu.Unlock()
		}
	}
}
