package s3

import (
	"context"
	"encoding/hex"
	stderr "errors"
	"io"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sourcegraph/conc/pool"
	"github.com/zeebo/blake3"

	"github.com/objectfs/cachingfs/internal/circuit"
	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/retry"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// Error codes S3 uses for request rate limiting.
var throttleCodes = map[string]bool{
	"SlowDown":                               true,
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"TooManyRequests":                        true,
	"RequestThrottled":                       true,
	"ServiceUnavailable":                     true,
	"ProvisionedThroughputExceededException": true,
}

// FileSystem is a read-only filesystem.FileSystem over an S3 bucket.
type FileSystem struct {
	api     API
	bucket  string
	prefix  string
	config  *Config
	retryer *retry.Retryer
	breaker *circuit.Breaker
	metrics *MetricsCollector
	logger  *slog.Logger

	mu          sync.RWMutex
	rootVersion filesystem.Version
}

var _ filesystem.FileSystem = (*FileSystem)(nil)

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithRetry replaces the retry policy applied to throttled requests.
func WithRetry(config retry.Config) Option {
	return func(f *FileSystem) {
		f.retryer = f.newRetryer(config)
	}
}

// WithCircuitBreaker replaces the breaker that stops requests to a failing bucket.
func WithCircuitBreaker(config circuit.Config) Option {
	return func(f *FileSystem) {
		f.breaker = f.newBreaker(config)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FileSystem) {
		if logger != nil {
			f.logger = logger.With("component", "s3-backend", "bucket", f.bucket)
		}
	}
}

// New creates a file system over bucket using api, rooted at cfg.Prefix.
func New(api API, bucket string, cfg *Config, opts ...Option) (*FileSystem, error) {
	if bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").WithComponent("s3-backend")
	}
	cfg = cfg.withDefaults()

	prefix := strings.TrimPrefix(cfg.Prefix, "/")
	if prefix != "" {
		prefix = utils.ToDirectory(prefix)
	}

	f := &FileSystem{
		api:     api,
		bucket:  bucket,
		prefix:  prefix,
		config:  cfg,
		metrics: NewMetricsCollector(),
		logger:  slog.Default().With("component", "s3-backend", "bucket", bucket),
	}
	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.MaxRetries + 1
	f.retryer = f.newRetryer(retryConfig)

	for _, opt := range opts {
		opt(f)
	}
	if f.breaker == nil {
		f.breaker = f.newBreaker(circuit.DefaultConfig())
	}
	return f, nil
}

func (f *FileSystem) newBreaker(config circuit.Config) *circuit.Breaker {
	onStateChange := config.OnStateChange
	config.OnStateChange = func(name string, from, to circuit.State) {
		f.logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		if onStateChange != nil {
			onStateChange(name, from, to)
		}
	}
	return circuit.New("s3:"+f.bucket, config)
}

func (f *FileSystem) newRetryer(config retry.Config) *retry.Retryer {
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.metrics.RecordRetry()
		f.logger.Debug("retrying S3 request", "attempt", attempt, "delay", delay, "error", err)
	}
	return retry.New(config)
}

// StatAsync stats path. Files are answered from a listing of their parent directory.
func (f *FileSystem) StatAsync(ctx context.Context, path string) *async.Result[filesystem.StatInfo] {
	return async.Go(func() (filesystem.StatInfo, error) {
		dir, name := filesystem.StatTarget(path)
		st, err := f.statDirectory(ctx, dir)
		if err != nil {
			return filesystem.StatInfo{}, err
		}
		return filesystem.ChildStat(st, path, name)
	})
}

// statDirectory lists everything below dir and derives the version of every directory
// in that subtree from the ETags of the objects it contains.
func (f *FileSystem) statDirectory(ctx context.Context, dir string) (filesystem.StatInfo, error) {
	objects, _, err := f.list(ctx, dir, false)
	if err != nil {
		return filesystem.StatInfo{}, err
	}
	if len(objects) == 0 && dir != "" {
		return filesystem.StatInfo{}, errors.NotFound(dir).WithComponent("s3-backend").WithOperation("stat")
	}

	base := f.prefix + dir
	children := map[string]map[string]filesystem.Version{"": {}}

	var addDir func(d string)
	addDir = func(d string) {
		if _, ok := children[d]; ok {
			return
		}
		children[d] = map[string]filesystem.Version{}
		parent, name := utils.SplitParent(d)
		addDir(parent)
		children[parent][name] = ""
	}

	for _, obj := range objects {
		rel := strings.TrimPrefix(aws.ToString(obj.Key), base)
		if rel == "" || utils.ValidatePath(rel) != nil {
			continue
		}
		if utils.IsDirectory(rel) {
			addDir(rel)
			continue
		}
		parent, name := utils.SplitParent(rel)
		addDir(parent)
		children[parent][name] = etagVersion(obj.ETag)
	}

	// Deepest directories first so every sub-directory version is known before its
	// parent is hashed.
	dirs := slices.Collect(maps.Keys(children))
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Count(b, "/") - strings.Count(a, "/")
	})

	var version filesystem.Version
	for _, d := range dirs {
		v := hashChildren(children[d])
		if d == "" {
			version = v
			continue
		}
		parent, name := utils.SplitParent(d)
		children[parent][name] = v
	}

	if dir == "" {
		f.mu.Lock()
		f.rootVersion = version
		f.mu.Unlock()
	}
	return filesystem.StatInfo{Version: version, ChildVersions: children[""]}, nil
}

func etagVersion(etag *string) filesystem.Version {
	return filesystem.Version(strings.Trim(aws.ToString(etag), `"`))
}

func hashChildren(children map[string]filesystem.Version) filesystem.Version {
	h := blake3.New()
	for _, name := range slices.Sorted(maps.Keys(children)) {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(children[name]))
		h.Write([]byte{'\n'})
	}
	return filesystem.Version(hex.EncodeToString(h.Sum(nil)[:16]))
}

// Read fetches every path concurrently.
func (f *FileSystem) Read(ctx context.Context, paths []string, skipNotFound bool) *async.Result[map[string]filesystem.Content] {
	return async.Go(func() (map[string]filesystem.Content, error) {
		var mu sync.Mutex
		out := make(map[string]filesystem.Content, len(paths))

		p := pool.New().WithMaxGoroutines(f.config.ReadConcurrency).WithContext(ctx).WithCancelOnError()
		for _, path := range paths {
			p.Go(func(ctx context.Context) error {
				content, err := f.readPath(ctx, path)
				if err != nil {
					if skipNotFound && errors.IsNotFound(err) {
						return nil
					}
					return err
				}
				mu.Lock()
				out[path] = content
				mu.Unlock()
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (f *FileSystem) readPath(ctx context.Context, path string) (filesystem.Content, error) {
	if err := utils.ValidatePath(path); err != nil {
		return filesystem.Content{}, errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(path)
	}
	if utils.IsDirectory(path) {
		children, err := f.readDirectory(ctx, path)
		return filesystem.Content{Children: children}, err
	}

	var data []byte
	err := f.do(ctx, path, func(ctx context.Context) error {
		out, err := f.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(f.prefix + path),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return filesystem.Content{}, err
	}
	f.metrics.RecordBytesDownloaded(int64(len(data)))
	return filesystem.Content{Data: data}, nil
}

func (f *FileSystem) readDirectory(ctx context.Context, dir string) ([]string, error) {
	objects, prefixes, err := f.list(ctx, dir, true)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 && len(prefixes) == 0 && dir != "" {
		return nil, errors.NotFound(dir).WithComponent("s3-backend").WithOperation("read")
	}

	base := f.prefix + dir
	children := make([]string, 0, len(objects)+len(prefixes))
	for _, obj := range objects {
		if rel := strings.TrimPrefix(aws.ToString(obj.Key), base); rel != "" {
			children = append(children, rel)
		}
	}
	for _, p := range prefixes {
		children = append(children, strings.TrimPrefix(p, base))
	}
	slices.Sort(children)
	return slices.Compact(children), nil
}

// list pages through every key below dir. With delimiter set only the immediate level
// is listed and sub-directories come back as common prefixes.
func (f *FileSystem) list(ctx context.Context, dir string, delimiter bool) ([]s3types.Object, []string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(f.prefix + dir),
		MaxKeys: aws.Int32(f.config.ListPageSize),
	}
	if delimiter {
		input.Delimiter = aws.String("/")
	}

	var objects []s3types.Object
	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(f.api, input)
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := f.do(ctx, dir, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, page.Contents...)
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return objects, prefixes, nil
}

// do runs one S3 request with a timeout, translating its error and retrying throttling.
// Requests fail fast while the breaker is open.
func (f *FileSystem) do(ctx context.Context, path string, fn func(context.Context) error) error {
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		return f.retryer.Do(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, f.config.RequestTimeout)
			defer cancel()

			start := time.Now()
			err := fn(ctx)
			if err != nil {
				err = f.translateError(err, path)
			}
			f.metrics.RecordRequest(time.Since(start), err)
			return err
		})
	})
	if err != nil {
		f.metrics.RecordRejected(err)
	}
	return err
}

func (f *FileSystem) translateError(err error, path string) error {
	var apiErr smithy.APIError
	var respErr *awshttp.ResponseError

	switch {
	case isErrorType[*s3types.NoSuchKey](err):
		return errors.NotFound(path).WithComponent("s3-backend").WithCause(err)
	case stderr.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound"):
		return errors.NotFound(path).WithComponent("s3-backend").WithCause(err)
	case stderr.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()],
		stderr.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusServiceUnavailable:
		f.metrics.RecordThrottle()
		return errors.Throttled(path, err).WithComponent("s3-backend")
	default:
		return errors.SystemError(path, err).WithComponent("s3-backend")
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}

// Walk walks the bucket below root.
func (f *FileSystem) Walk(ctx context.Context, root string, depth int, lister filesystem.FileLister) iter.Seq2[filesystem.WalkStep, error] {
	return filesystem.WalkTree(ctx, f, root, depth, lister)
}

// Refresh re-lists the bucket to update the root version.
func (f *FileSystem) Refresh(ctx context.Context) *async.Result[struct{}] {
	return async.Go(func() (struct{}, error) {
		_, err := f.statDirectory(ctx, "")
		return struct{}{}, err
	})
}

// GetIdentity returns "s3:<bucket>/<prefix>".
func (f *FileSystem) GetIdentity() string {
	return "s3:" + f.bucket + "/" + f.prefix
}

// GetVersion returns the root version from the last root listing.
func (f *FileSystem) GetVersion() filesystem.Version {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rootVersion
}

// GetMetrics returns current request metrics
func (f *FileSystem) GetMetrics() BackendMetrics {
	return f.metrics.GetMetrics()
}
