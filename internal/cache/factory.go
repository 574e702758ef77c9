package cache

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
)

// MemoryFactory creates in-memory stores. Stores are shared per namespace within the
// process, so a consumer created with startEmpty=false sees entries written by an
// earlier consumer of the same namespace.
type MemoryFactory struct {
	Config CacheConfig

	mu     sync.Mutex
	stores map[string]*LRUCache[[]byte]
}

// NewMemoryFactory returns a factory whose stores use config.
func NewMemoryFactory(config CacheConfig) *MemoryFactory {
	return &MemoryFactory{Config: config, stores: make(map[string]*LRUCache[[]byte])}
}

// Create returns the store for namespace.
func (f *MemoryFactory) Create(namespace string, startEmpty bool) (Store[[]byte], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stores == nil {
		f.stores = make(map[string]*LRUCache[[]byte])
	}
	if existing, ok := f.stores[namespace]; ok {
		if !startEmpty {
			return existing, nil
		}
		_ = existing.Close()
	}

	config := f.Config
	store := NewLRUCache[[]byte](&config)
	f.stores[namespace] = store
	return store, nil
}

// Close stops every store the factory created.
func (f *MemoryFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.stores {
		_ = s.Close()
	}
	f.stores = nil
	return nil
}

// PersistentFactory creates disk-backed stores, one directory per namespace under
// Config.Directory. When Memory is set each store gets an in-memory L1 in front.
type PersistentFactory struct {
	Config PersistentCacheConfig
	Memory *CacheConfig
	Logger *slog.Logger

	mu      sync.Mutex
	closers []io.Closer
}

// Create opens the store for namespace, discarding persisted state when startEmpty.
func (f *PersistentFactory) Create(namespace string, startEmpty bool) (Store[[]byte], error) {
	config := f.Config
	config.Directory = filepath.Join(f.Config.Directory, hashHex([]byte(namespace))[:16])

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l2, err := NewPersistentCache(&config, startEmpty, logger.With("namespace", namespace))
	if err != nil {
		return nil, err
	}

	var store Store[[]byte] = l2
	var closer io.Closer = l2
	if f.Memory != nil {
		ml := NewMultiLevelCache(NewLRUCache[[]byte](f.Memory), l2)
		store, closer = ml, ml
	}

	f.mu.Lock()
	f.closers = append(f.closers, closer)
	f.mu.Unlock()

	return store, nil
}

// Close closes every store the factory created and flushes their indexes.
func (f *PersistentFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	f.closers = nil
	return errors.Join(errs...)
}
