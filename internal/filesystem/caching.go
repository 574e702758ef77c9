package filesystem

import (
	"context"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/objectfs/cachingfs/internal/cache"
	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// Cache categories, used both as store namespaces and as metric labels.
const (
	CategoryStat = "stat"
	CategoryRead = "read"
	CategoryWalk = "walk"
)

// readEntry is a read cache record. Missing marks a path confirmed absent.
type readEntry struct {
	Content Content `cbor:"c"`
	Version Version `cbor:"v"`
	Missing bool    `cbor:"m"`
}

type walkEntry struct {
	Dirs    []string `cbor:"d"`
	Files   []string `cbor:"f"`
	Version Version  `cbor:"v"`
}

// CachingFileSystem decorates a FileSystem with stat, read and walk caches.
//
// Stats are cached per directory: a file stat is answered from its parent's child
// versions. Reads and directory listings are cached together with the version observed
// when they were fetched and are served only while that version is still current.
// Concurrent stats of one directory share a single inner call.
//
// In fail-on-miss mode the inner store is never consulted; cache misses fail with
// NotFound and are logged as warnings.
type CachingFileSystem struct {
	inner      FileSystem
	identity   string
	failOnMiss bool
	logger     *slog.Logger
	metrics    Recorder

	statCache *cache.Typed[StatInfo]
	readCache *cache.Typed[readEntry]
	walkCache *cache.Typed[walkEntry]

	mu       sync.Mutex
	inflight map[string]*async.Result[StatInfo]
}

// Option configures a CachingFileSystem.
type Option func(*CachingFileSystem)

// WithFailOnMiss switches the decorator into fail-on-miss mode.
func WithFailOnMiss(failOnMiss bool) Option {
	return func(c *CachingFileSystem) {
		c.failOnMiss = failOnMiss
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CachingFileSystem) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder receiving cache events.
func WithMetrics(r Recorder) Option {
	return func(c *CachingFileSystem) {
		if r != nil {
			c.metrics = r
		}
	}
}

// NewCachingFileSystem wraps inner, creating its caches through factory under
// namespaces derived from inner's identity. The stat cache starts from persisted state
// only in fail-on-miss mode.
func NewCachingFileSystem(inner FileSystem, factory cache.Factory, opts ...Option) (*CachingFileSystem, error) {
	c := &CachingFileSystem{
		inner:    inner,
		identity: inner.GetIdentity(),
		logger:   slog.Default(),
		metrics:  nopRecorder{},
		inflight: make(map[string]*async.Result[StatInfo]),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "caching-fs", "identity", c.identity)

	statRaw, err := factory.Create(cache.Namespace(c.identity, CategoryStat), !c.failOnMiss)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to create stat cache").WithCause(err)
	}
	readRaw, err := factory.Create(cache.Namespace(c.identity, CategoryRead), false)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to create read cache").WithCause(err)
	}
	walkRaw, err := factory.Create(cache.Namespace(c.identity, CategoryWalk), false)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to create walk cache").WithCause(err)
	}

	c.statCache = cache.NewTyped[StatInfo](statRaw)
	c.readCache = cache.NewTyped[readEntry](readRaw)
	c.walkCache = cache.NewTyped[walkEntry](walkRaw)
	return c, nil
}

var (
	_ FileSystem   = (*CachingFileSystem)(nil)
	_ CommitReader = (*CachingFileSystem)(nil)
)

// StatAsync resolves the stat of path, synchronously when the directory holding it is
// cached.
func (c *CachingFileSystem) StatAsync(ctx context.Context, path string) *async.Result[StatInfo] {
	dir, name := StatTarget(path)

	return async.Compose(c.lookupStat(ctx, dir), func(l cache.Lookup[StatInfo]) *async.Result[StatInfo] {
		if l.Found {
			c.metrics.RecordCacheHit(CategoryStat)
			st, err := ChildStat(l.Value, path, name)
			if err != nil {
				return async.Failed[StatInfo](err)
			}
			return async.Resolved(st)
		}

		c.metrics.RecordCacheMiss(CategoryStat)
		if c.failOnMiss {
			c.logger.Warn("stat cache miss", "path", dir)
			c.metrics.RecordFailOnMiss(CategoryStat)
			return async.Failed[StatInfo](errors.NotFound(path).WithComponent("caching-fs").WithOperation("stat"))
		}

		return async.Then(c.statDirectory(ctx, dir), func(st StatInfo) (StatInfo, error) {
			return ChildStat(st, path, name)
		}, nil)
	})
}

// lookupStat reads the stat cache, treating store failures as misses.
func (c *CachingFileSystem) lookupStat(ctx context.Context, dir string) *async.Result[cache.Lookup[StatInfo]] {
	return async.Then(c.statCache.Get(ctx, dir), func(l cache.Lookup[StatInfo]) (cache.Lookup[StatInfo], error) {
		return l, nil
	}, func(err error) (cache.Lookup[StatInfo], error) {
		c.logger.Debug("stat cache lookup failed", "path", dir, "error", err)
		return cache.Lookup[StatInfo]{}, nil
	})
}

// statDirectory fetches the stat of dir from the inner store. Concurrent callers for
// the same dir share one in-flight call, which is removed from the map once the
// result has been cached.
func (c *CachingFileSystem) statDirectory(ctx context.Context, dir string) *async.Result[StatInfo] {
	c.mu.Lock()
	if pending, ok := c.inflight[dir]; ok {
		c.mu.Unlock()
		c.metrics.RecordDedupJoin()
		return pending
	}
	result, resolve := async.New[StatInfo]()
	c.inflight[dir] = result
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		start := time.Now()
		st, err := c.inner.StatAsync(ctx, dir).Get()
		c.metrics.RecordInnerCall(CategoryStat, time.Since(start), err)

		if err == nil && !st.IsDirectory() {
			err = errors.NewError(errors.ErrCodeInternalError, "inner store returned a file stat for a directory").
				WithComponent("caching-fs").WithOperation("stat").WithPath(dir)
		}
		if err == nil {
			if serr := c.statCache.Set(ctx, dir, st); serr != nil {
				c.logger.Warn("failed to cache stat", "path", dir, "error", serr)
			}
		}

		c.mu.Lock()
		delete(c.inflight, dir)
		c.mu.Unlock()

		resolve(st, err)
	}()
	return result
}

// statOutcome is the authoritative state of one requested path during Read.
type statOutcome struct {
	version Version
	missing bool
	// negative is set when missing was taken from the read cache without a stat.
	negative bool
}

// Read resolves paths, serving every path whose cached content matches its current
// version from the read cache and fetching the rest from the inner store.
func (c *CachingFileSystem) Read(ctx context.Context, paths []string, skipNotFound bool) *async.Result[map[string]Content] {
	paths = uniquePaths(paths)
	if len(paths) == 0 {
		return async.Resolved(map[string]Content{})
	}

	cached := async.Then(c.readCache.GetMulti(ctx, paths), func(m map[string]readEntry) (map[string]readEntry, error) {
		return m, nil
	}, func(err error) (map[string]readEntry, error) {
		c.logger.Debug("read cache lookup failed", "error", err)
		return map[string]readEntry{}, nil
	})

	return async.Compose(cached, func(entries map[string]readEntry) *async.Result[map[string]Content] {
		stats := make([]*async.Result[statOutcome], len(paths))
		for i, p := range paths {
			if e, ok := entries[p]; ok && e.Missing && skipNotFound {
				stats[i] = async.Resolved(statOutcome{missing: true, negative: true})
				continue
			}
			stats[i] = async.Then(c.StatAsync(ctx, p), func(st StatInfo) (statOutcome, error) {
				return statOutcome{version: st.Version}, nil
			}, func(err error) (statOutcome, error) {
				if skipNotFound && errors.IsNotFound(err) {
					return statOutcome{missing: true}, nil
				}
				return statOutcome{}, err
			})
		}

		return async.Compose(async.All(stats), func(outcomes []statOutcome) *async.Result[map[string]Content] {
			return c.readRemaining(ctx, paths, entries, outcomes, skipNotFound)
		})
	})
}

func (c *CachingFileSystem) readRemaining(ctx context.Context, paths []string, entries map[string]readEntry, outcomes []statOutcome, skipNotFound bool) *async.Result[map[string]Content] {
	result := make(map[string]Content, len(paths))
	versions := make(map[string]Version)
	var remaining, missing []string

	for i, p := range paths {
		o := outcomes[i]
		switch {
		case o.negative:
			c.metrics.RecordNegativeHit()
		case o.missing && c.failOnMiss:
			// Without a negative marker the cache cannot tell absent from uncached.
			c.metrics.RecordCacheMiss(CategoryRead)
			remaining = append(remaining, p)
		case o.missing:
			missing = append(missing, p)
		default:
			if e, ok := entries[p]; ok && !e.Missing && e.Version == o.version {
				c.metrics.RecordCacheHit(CategoryRead)
				result[p] = e.Content
				continue
			}
			c.metrics.RecordCacheMiss(CategoryRead)
			versions[p] = o.version
			remaining = append(remaining, p)
		}
	}

	if !c.failOnMiss && len(missing) > 0 {
		c.setNegative(ctx, missing)
	}
	if len(remaining) == 0 {
		return async.Resolved(result)
	}
	if c.failOnMiss {
		c.logger.Warn("read cache miss", "paths", remaining)
		c.metrics.RecordFailOnMiss(CategoryRead)
		return async.Failed[map[string]Content](errors.NotFound(remaining[0]).
			WithComponent("caching-fs").WithOperation("read").
			WithContext("misses", strconv.Itoa(len(remaining))))
	}

	inner := context.WithoutCancel(ctx)
	start := time.Now()
	return async.Then(c.inner.Read(inner, remaining, skipNotFound), func(fetched map[string]Content) (map[string]Content, error) {
		c.metrics.RecordInnerCall(CategoryRead, time.Since(start), nil)

		updates := make(map[string]readEntry, len(remaining))
		var vanished []string
		for _, p := range remaining {
			content, ok := fetched[p]
			if !ok {
				vanished = append(vanished, p)
				continue
			}
			updates[p] = readEntry{Content: content, Version: versions[p]}
			result[p] = content
		}
		if err := c.readCache.SetMulti(inner, updates); err != nil {
			c.logger.Warn("failed to cache reads", "error", err)
		}
		if len(vanished) > 0 {
			c.setNegative(inner, vanished)
		}
		return result, nil
	}, func(err error) (map[string]Content, error) {
		c.metrics.RecordInnerCall(CategoryRead, time.Since(start), err)
		return nil, err
	})
}

// setNegative records paths as confirmed absent.
func (c *CachingFileSystem) setNegative(ctx context.Context, paths []string) {
	markers := make(map[string]readEntry, len(paths))
	for _, p := range paths {
		markers[p] = readEntry{Missing: true}
	}
	if err := c.readCache.SetMulti(context.WithoutCancel(ctx), markers); err != nil {
		c.logger.Warn("failed to cache missing paths", "error", err)
	}
}

// Walk delegates traversal to the inner store. Each level is listed through the walk
// cache unless lister is set.
func (c *CachingFileSystem) Walk(ctx context.Context, root string, depth int, lister FileLister) iter.Seq2[WalkStep, error] {
	if lister == nil {
		lister = c.listDirectory
	}
	return c.inner.Walk(ctx, root, depth, lister)
}

// listDirectory lists dir from the walk cache when its version is current, otherwise
// reads it through the read cache and records the listing.
func (c *CachingFileSystem) listDirectory(ctx context.Context, dir string) ([]string, []string, error) {
	st, err := c.StatAsync(ctx, dir).Wait(ctx)
	if err != nil {
		return nil, nil, err
	}

	l, err := c.walkCache.Get(ctx, dir).Wait(ctx)
	if err == nil && l.Found && l.Value.Version == st.Version {
		c.metrics.RecordCacheHit(CategoryWalk)
		return l.Value.Dirs, l.Value.Files, nil
	}
	c.metrics.RecordCacheMiss(CategoryWalk)

	content, err := ReadSingle(ctx, c, dir, false).Wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	dirs, files := SplitChildren(content.Children)

	entry := walkEntry{Dirs: dirs, Files: files, Version: st.Version}
	if err := c.walkCache.Set(context.WithoutCancel(ctx), dir, entry); err != nil {
		c.logger.Warn("failed to cache listing", "path", dir, "error", err)
	}
	return dirs, files, nil
}

// Invalidate drops every cached record for paths. Negative markers are only ever
// cleared this way or by store eviction.
func (c *CachingFileSystem) Invalidate(ctx context.Context, paths ...string) error {
	var dirs, statKeys []string
	for _, p := range paths {
		if utils.IsDirectory(p) {
			dirs = append(dirs, p)
			statKeys = append(statKeys, p)
			continue
		}
		parent, _ := utils.SplitParent(p)
		statKeys = append(statKeys, parent)
	}

	if err := c.readCache.Delete(ctx, paths...); err != nil {
		return err
	}
	if err := c.walkCache.Delete(ctx, dirs...); err != nil {
		return err
	}
	return c.statCache.Delete(ctx, uniquePaths(statKeys)...)
}

// Refresh forwards to the inner store. Cached entries are left to the version check.
func (c *CachingFileSystem) Refresh(ctx context.Context) *async.Result[struct{}] {
	return c.inner.Refresh(ctx)
}

// GetIdentity returns the inner store's identity.
func (c *CachingFileSystem) GetIdentity() string {
	return c.identity
}

// GetVersion returns the inner store's version.
func (c *CachingFileSystem) GetVersion() Version {
	return c.inner.GetVersion()
}

// GetCommitID forwards to the inner store when it is a CommitReader.
func (c *CachingFileSystem) GetCommitID(ctx context.Context) *async.Result[string] {
	if cr, ok := c.inner.(CommitReader); ok {
		return cr.GetCommitID(ctx)
	}
	return async.Failed[string](errors.NewError(errors.ErrCodeNotSupported, "inner store has no commit IDs").WithOperation("commit_id"))
}

// GetPreviousCommitID forwards to the inner store when it is a CommitReader.
func (c *CachingFileSystem) GetPreviousCommitID(ctx context.Context) *async.Result[string] {
	if cr, ok := c.inner.(CommitReader); ok {
		return cr.GetPreviousCommitID(ctx)
	}
	return async.Failed[string](errors.NewError(errors.ErrCodeNotSupported, "inner store has no commit IDs").WithOperation("previous_commit_id"))
}

// Inner returns the wrapped file system.
func (c *CachingFileSystem) Inner() FileSystem {
	return c.inner
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
