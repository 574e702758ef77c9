/*
Package cache provides the key/value stores that hold cachingfs's stat, read and walk caches.

The caching file system never implements persistence itself. It asks a Factory for one
byte-level Store per (identity, category) namespace and layers a Typed view on top that
encodes values with deterministic CBOR.

# Store Implementations

	┌─────────────────────────────────────────────┐
	│          CachingFileSystem                  │
	│   stat / read / walk  (Typed[V] views)      │
	└─────────────────────────────────────────────┘
	                      │  Store[[]byte]
	┌─────────────────────────────────────────────┐
	│  LRUCache         in-memory, entry bound    │
	│  PersistentCache  one file per key, zstd,   │
	│                   BLAKE3 names + checksums  │
	│  MultiLevelCache  LRU in front of disk      │
	└─────────────────────────────────────────────┘

Every store is safe for concurrent use. LRUCache resolves all calls synchronously;
PersistentCache.GetMulti reads files concurrently on a bounded pool.

# Start-up State

Factories take a startEmpty flag. A persistent store opened with startEmpty=false reloads
its index from disk, so a process restarted in fail-on-miss mode serves what an earlier
process cached. With startEmpty=true the namespace directory is wiped first.

# Usage

	factory := &cache.PersistentFactory{
		Config: cache.PersistentCacheConfig{Directory: "/var/cache/cachingfs", Compression: true},
		Memory: &cache.CacheConfig{MaxEntries: 10000},
	}
	defer factory.Close()

	raw, err := factory.Create(cache.Namespace("local:/srv/docs", "read"), false)
	if err != nil {
		return err
	}
	reads := cache.NewTyped[entry](raw)
*/
package cache
