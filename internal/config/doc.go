/*
Package config loads cachingfs configuration.

Values are layered: compiled-in defaults from NewDefault, then a YAML file via
LoadFromFile, then CACHINGFS_* environment variables via LoadFromEnv. Validate
checks the result before any component is built from it.

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("cachingfs.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

# Sections

	global:   log_level, log_format, metrics_port
	cache:    fail_on_miss, max_entries, ttl, persistent {enabled, directory, compression, max_size}
	storage:  backend (memory, local, s3), local {root}, s3 {bucket, prefix, region, endpoint, ...}
	metrics:  enabled, namespace, path

# Environment Variables

	CACHINGFS_LOG_LEVEL, CACHINGFS_LOG_FORMAT, CACHINGFS_METRICS_PORT
	CACHINGFS_FAIL_ON_MISS, CACHINGFS_CACHE_MAX_ENTRIES, CACHINGFS_CACHE_TTL, CACHINGFS_CACHE_DIR
	CACHINGFS_BACKEND, CACHINGFS_LOCAL_ROOT
	CACHINGFS_S3_BUCKET, CACHINGFS_S3_PREFIX, CACHINGFS_S3_REGION, CACHINGFS_S3_ENDPOINT,
	CACHINGFS_S3_FORCE_PATH_STYLE
	CACHINGFS_METRICS_ENABLED

Setting CACHINGFS_CACHE_DIR also enables the persistent cache. S3 credentials are
not read from the environment here; the AWS SDK's default chain picks them up.
*/
package config
