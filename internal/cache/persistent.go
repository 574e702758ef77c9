package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/zeebo/blake3"

	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
)

// PersistentCacheConfig represents persistent store configuration
type PersistentCacheConfig struct {
	Directory        string        `yaml:"directory"`
	MaxSize          int64         `yaml:"max_size"`
	TTL              time.Duration `yaml:"ttl"`
	Compression      bool          `yaml:"compression"`
	CompressionLevel int           `yaml:"compression_level"`
	IndexFile        string        `yaml:"index_file"`
	SyncInterval     time.Duration `yaml:"sync_interval"`
	ReadConcurrency  int           `yaml:"read_concurrency"`
}

// PersistentCache is a disk-backed Store[[]byte]. Each value lives in its own file named
// by the BLAKE3 hash of its key; an index maps keys to files and survives restarts.
type PersistentCache struct {
	mu          sync.RWMutex
	directory   string
	currentSize int64
	index       map[string]*persistentItem
	config      PersistentCacheConfig
	compressor  *Compressor
	logger      *slog.Logger
	stats       Stats

	stopCh chan struct{}
	closed bool
}

type persistentItem struct {
	Key        string    `cbor:"key"`
	FileName   string    `cbor:"file"`
	Size       int64     `cbor:"size"`
	Timestamp  time.Time `cbor:"ts"`
	AccessTime time.Time `cbor:"atime"`
	Compressed bool      `cbor:"z"`
	Checksum   string    `cbor:"sum"`
}

// NewPersistentCache opens the store in config.Directory. With startEmpty any state
// left by a previous process is discarded.
func NewPersistentCache(config *PersistentCacheConfig, startEmpty bool, logger *slog.Logger) (*PersistentCache, error) {
	if config == nil || config.Directory == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "persistent cache directory is required").
			WithComponent("persistent-cache")
	}
	cfg := *config
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.cbor"
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}

	if startEmpty {
		if err := os.RemoveAll(cfg.Directory); err != nil {
			return nil, fmt.Errorf("failed to reset cache directory: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel, cfg.Compression)
	if err != nil {
		return nil, err
	}

	c := &PersistentCache{
		directory:  cfg.Directory,
		index:      make(map[string]*persistentItem),
		config:     cfg,
		compressor: compressor,
		logger:     logger.With("component", "persistent-cache", "directory", cfg.Directory),
		stopCh:     make(chan struct{}),
	}

	if err := c.loadIndex(); err != nil {
		compressor.Close()
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}

	go c.syncIndex()

	return c, nil
}

// Get retrieves a value from disk
func (c *PersistentCache) Get(_ context.Context, key string) *async.Result[Lookup[[]byte]] {
	data, ok := c.read(key)
	return async.Resolved(Lookup[[]byte]{Value: data, Found: ok})
}

// GetMulti reads the present subset of keys, fanning file reads out over a bounded pool.
func (c *PersistentCache) GetMulti(ctx context.Context, keys []string) *async.Result[map[string][]byte] {
	return async.Go(func() (map[string][]byte, error) {
		var mu sync.Mutex
		out := make(map[string][]byte, len(keys))

		p := pool.New().WithMaxGoroutines(c.config.ReadConcurrency).WithContext(ctx)
		for _, key := range keys {
			p.Go(func(context.Context) error {
				if data, ok := c.read(key); ok {
					mu.Lock()
					out[key] = data
					mu.Unlock()
				}
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Set writes a value to disk
func (c *PersistentCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.NewError(errors.ErrCodeCacheClosed, "persistent cache is closed")
	}
	if err := c.write(key, value); err != nil {
		return err
	}
	c.evictIfNeeded()
	return nil
}

// SetMulti writes every value to disk
func (c *PersistentCache) SetMulti(_ context.Context, values map[string][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.NewError(errors.ErrCodeCacheClosed, "persistent cache is closed")
	}
	for key, value := range values {
		if err := c.write(key, value); err != nil {
			return err
		}
	}
	c.evictIfNeeded()
	return nil
}

// Delete removes keys and their files
func (c *PersistentCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.removeItem(key)
	}
	return nil
}

// Size returns the bytes currently stored on disk
func (c *PersistentCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns cache statistics
func (c *PersistentCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.index)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops background goroutines and syncs the index
func (c *PersistentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.stopCh)
	c.compressor.Close()

	return c.saveIndex()
}

// Helper methods

func (c *PersistentCache) read(key string) ([]byte, bool) {
	c.mu.RLock()
	item, exists := c.index[key]
	c.mu.RUnlock()

	if !exists || c.isExpired(item) {
		c.mu.Lock()
		if exists && c.index[key] == item {
			c.removeItem(key)
		}
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	data, err := c.readFromFile(item)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		if c.index[key] == item {
			c.removeItem(key)
		}
		c.stats.Misses++
		return nil, false
	}

	item.AccessTime = time.Now()
	c.stats.Hits++
	return data, true
}

// write must be called with c.mu held.
func (c *PersistentCache) write(key string, data []byte) error {
	if existing, exists := c.index[key]; exists {
		_ = os.Remove(c.filePath(existing))
		c.currentSize -= existing.Size
		delete(c.index, key)
	}

	payload, compressed := c.compressor.Compress(data)
	now := time.Now()
	item := &persistentItem{
		Key:        key,
		FileName:   hashHex([]byte(key)),
		Size:       int64(len(payload)),
		Timestamp:  now,
		AccessTime: now,
		Compressed: compressed,
		Checksum:   hashHex(data),
	}

	path := c.filePath(item)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0640); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cache file: %w", err)
	}

	c.index[key] = item
	c.currentSize += item.Size
	return nil
}

func (c *PersistentCache) readFromFile(item *persistentItem) ([]byte, error) {
	data, err := os.ReadFile(c.filePath(item))
	if err != nil {
		return nil, err
	}

	if item.Compressed {
		if data, err = c.compressor.Decompress(data); err != nil {
			return nil, err
		}
	}

	if hashHex(data) != item.Checksum {
		return nil, errors.NewError(errors.ErrCodeCacheCorrupt, "checksum mismatch for cached file").
			WithContext("key", item.Key)
	}
	return data, nil
}

func (c *PersistentCache) filePath(item *persistentItem) string {
	return filepath.Join(c.directory, item.FileName+".cache")
}

func (c *PersistentCache) isExpired(item *persistentItem) bool {
	if c.config.TTL == 0 {
		return false
	}
	return time.Since(item.Timestamp) > c.config.TTL
}

// removeItem must be called with c.mu held.
func (c *PersistentCache) removeItem(key string) {
	item, exists := c.index[key]
	if !exists {
		return
	}
	_ = os.Remove(c.filePath(item))
	delete(c.index, key)
	c.currentSize -= item.Size
	c.stats.Evictions++
}

func (c *PersistentCache) evictIfNeeded() {
	if c.config.MaxSize <= 0 {
		return
	}
	for c.currentSize > c.config.MaxSize && len(c.index) > 0 {
		var oldest *persistentItem
		for _, item := range c.index {
			if oldest == nil || item.AccessTime.Before(oldest.AccessTime) {
				oldest = item
			}
		}
		c.removeItem(oldest.Key)
	}
}

func (c *PersistentCache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.directory, c.config.IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var items map[string]*persistentItem
	if err := Unmarshal(data, &items); err != nil {
		c.logger.Warn("discarding unreadable cache index", "error", err)
		return nil
	}

	for key, item := range items {
		if _, err := os.Stat(c.filePath(item)); err != nil {
			continue
		}
		c.index[key] = item
		c.currentSize += item.Size
	}

	return nil
}

// saveIndex must be called with c.mu held (read or write).
func (c *PersistentCache) saveIndex() error {
	data, err := Marshal(c.index)
	if err != nil {
		return err
	}

	indexPath := filepath.Join(c.directory, c.config.IndexFile)
	tmpPath := indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0640); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, indexPath)
}

func (c *PersistentCache) syncIndex() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if err := c.saveIndex(); err != nil {
				c.logger.Warn("failed to sync cache index", "error", err)
			}
			c.mu.Unlock()
		}
	}
}

func hashHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
