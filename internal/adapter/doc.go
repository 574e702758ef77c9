/*
Package adapter assembles a caching file system from configuration.

The Adapter owns every component built for one run: the backing file system, the
cache store factory, the metrics collector and the CachingFileSystem that ties
them together.

	┌─────────────────────────────────────────────┐
	│            CLI / library callers            │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             CachingFileSystem               │
	│      stat, read and walk caches, dedup      │
	└─────────────────────────────────────────────┘
	        │                 │              │
	┌───────┴──────┐ ┌────────┴─────┐ ┌──────┴─────┐
	│   Backend    │ │ Cache stores │ │  Metrics   │
	│ memory/local │ │  memory or   │ │ Prometheus │
	│     /s3      │ │ memory+disk  │ │            │
	└──────────────┘ └──────────────┘ └────────────┘

# Lifecycle

	a, err := adapter.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)

	content, err := filesystem.ReadSingle(ctx, a.FileSystem(), "index.html", false).Get()

New validates the configuration and builds every component. Start serves metrics
when they are enabled. Stop shuts the metrics server down and closes the cache
stores; persistent stores write their index on close, so a later process that
opens the same cache directory starts warm.

# Storage URIs

ApplyStorageURI rewrites the storage section from a single URI:

	s3://bucket/prefix   S3 backend rooted at prefix
	file:///srv/site     local directory
	mem://name           empty in-memory file system
*/
package adapter
