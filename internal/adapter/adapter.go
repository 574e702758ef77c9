package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/objectfs/cachingfs/internal/cache"
	"github.com/objectfs/cachingfs/internal/config"
	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/internal/metrics"
	"github.com/objectfs/cachingfs/internal/storage/local"
	"github.com/objectfs/cachingfs/internal/storage/memfs"
	"github.com/objectfs/cachingfs/internal/storage/s3"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// Adapter owns a caching file system together with the backend, cache stores and
// metrics collector it was built from.
type Adapter struct {
	config  *config.Configuration
	logger  *slog.Logger
	backend filesystem.FileSystem
	factory cache.Factory
	metrics *metrics.Collector
	fs      *filesystem.CachingFileSystem

	s3API s3.API
}

// Option customizes how New assembles the adapter.
type Option func(*Adapter)

// WithLogger sets the logger every component derives its own from.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithBackend uses fs instead of building a backend from the storage config.
func WithBackend(fs filesystem.FileSystem) Option {
	return func(a *Adapter) {
		a.backend = fs
	}
}

// WithS3API uses api for the s3 backend instead of a client built from the config.
func WithS3API(api s3.API) Option {
	return func(a *Adapter) {
		a.s3API = api
	}
}

// New creates a new adapter instance from cfg
func New(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Adapter{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = NewLogger(os.Stderr, cfg.Global)
	}

	// Collection always runs; Start decides whether it is served.
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      cfg.Global.MetricsPort,
		Path:      cfg.Metrics.Path,
		Namespace: cfg.Metrics.Namespace,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	a.metrics = collector

	if a.backend == nil {
		if a.backend, err = a.newBackend(ctx); err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Storage.Backend, err)
		}
	}

	if a.factory, err = a.newFactory(); err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	a.fs, err = filesystem.NewCachingFileSystem(a.backend, a.factory,
		filesystem.WithFailOnMiss(cfg.Cache.FailOnMiss),
		filesystem.WithLogger(a.logger),
		filesystem.WithMetrics(a.metrics),
	)
	if err != nil {
		_ = a.closeFactory()
		return nil, fmt.Errorf("failed to create caching file system: %w", err)
	}

	return a, nil
}

func (a *Adapter) newBackend(ctx context.Context) (filesystem.FileSystem, error) {
	storage := a.config.Storage

	switch storage.Backend {
	case config.BackendMemory:
		return memfs.New(storage.Memory.Name, storage.Memory.Files), nil

	case config.BackendLocal:
		return local.New(storage.Local.Root, a.logger)

	case config.BackendS3:
		s3cfg := &s3.Config{
			Region:          storage.S3.Region,
			Endpoint:        storage.S3.Endpoint,
			AccessKeyID:     storage.S3.AccessKeyID,
			SecretAccessKey: storage.S3.SecretAccessKey,
			ForcePathStyle:  storage.S3.ForcePathStyle,
			Prefix:          storage.S3.Prefix,
			MaxRetries:      storage.S3.MaxRetries,
			RequestTimeout:  storage.S3.RequestTimeout,
			ReadConcurrency: storage.S3.ReadConcurrency,
		}
		api := a.s3API
		if api == nil {
			client, err := s3.NewClient(ctx, s3cfg)
			if err != nil {
				return nil, err
			}
			api = client
		}

		fs, err := s3.New(api, storage.S3.Bucket, s3cfg, s3.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		err = a.metrics.RegisterBackend(config.BackendS3, func() metrics.BackendStats {
			m := fs.GetMetrics()
			return metrics.BackendStats{
				Requests:        m.Requests,
				Errors:          m.Errors,
				NotFound:        m.NotFound,
				Throttles:       m.Throttles,
				Retries:         m.Retries,
				Rejected:        m.Rejected,
				BytesDownloaded: m.BytesDownloaded,
			}
		})
		if err != nil {
			return nil, err
		}
		return fs, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", storage.Backend)
	}
}

func (a *Adapter) newFactory() (cache.Factory, error) {
	c := a.config.Cache
	memory := cache.CacheConfig{
		MaxEntries: c.MaxEntries,
		TTL:        c.TTL,
	}
	if !c.Persistent.Enabled {
		return cache.NewMemoryFactory(memory), nil
	}

	maxSize, err := config.ParseSize(c.Persistent.MaxSize)
	if err != nil {
		return nil, err
	}
	return &cache.PersistentFactory{
		Config: cache.PersistentCacheConfig{
			Directory:   c.Persistent.Directory,
			MaxSize:     maxSize,
			TTL:         c.TTL,
			Compression: c.Persistent.Compression,
		},
		Memory: &memory,
		Logger: a.logger,
	}, nil
}

// Start serves the metrics endpoint when metrics are enabled.
func (a *Adapter) Start(ctx context.Context) error {
	a.logger.Debug("starting cachingfs",
		"backend", a.config.Storage.Backend,
		"identity", a.fs.GetIdentity(),
		"fail_on_miss", a.config.Cache.FailOnMiss,
		"persistent_cache", a.config.Cache.Persistent.Enabled)

	if !a.config.Metrics.Enabled {
		return nil
	}
	if err := a.metrics.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}
	a.logger.Info("serving metrics", "port", a.config.Global.MetricsPort, "path", a.config.Metrics.Path)
	return nil
}

// Stop shuts the metrics endpoint down and closes the cache stores, flushing any
// persistent index to disk.
func (a *Adapter) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.metrics.Stop(ctx); err != nil {
		firstErr = fmt.Errorf("failed to stop metrics: %w", err)
	}
	if err := a.closeFactory(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close cache: %w", err)
	}
	a.logger.Debug("cachingfs stopped")
	return firstErr
}

func (a *Adapter) closeFactory() error {
	if c, ok := a.factory.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileSystem returns the caching file system.
func (a *Adapter) FileSystem() *filesystem.CachingFileSystem {
	return a.fs
}

// Metrics returns the metrics collector.
func (a *Adapter) Metrics() *metrics.Collector {
	return a.metrics
}

// NewLogger builds the process logger from the global settings. Unknown levels or
// formats fall back to INFO text.
func NewLogger(w io.Writer, global config.GlobalConfig) *slog.Logger {
	logger, err := utils.NewLogger(global.LogLevel, global.LogFormat, w)
	if err != nil {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return logger
}

// ApplyStorageURI points storage at uri: s3://bucket/prefix, file:///path or
// mem://name.
func ApplyStorageURI(storage *config.StorageConfig, uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("failed to parse URI: %w", err)
	}

	switch parsed.Scheme {
	case "s3":
		if parsed.Host == "" {
			return fmt.Errorf("S3 URI must include bucket name")
		}
		storage.Backend = config.BackendS3
		storage.S3.Bucket = parsed.Host
		storage.S3.Prefix = strings.TrimPrefix(parsed.Path, "/")
	case "file":
		if parsed.Path == "" {
			return fmt.Errorf("file URI must include a path")
		}
		storage.Backend = config.BackendLocal
		storage.Local.Root = parsed.Path
	case "mem":
		storage.Backend = config.BackendMemory
		if parsed.Host != "" {
			storage.Memory.Name = parsed.Host
		}
	default:
		return fmt.Errorf("unsupported storage scheme: %s (supported: s3, file, mem)", parsed.Scheme)
	}

	return nil
}
