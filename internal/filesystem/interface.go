// Package filesystem defines the versioned, hierarchical FileSystem interface shared by
// every backing store in cachingfs, the operations derived from it, and the
// CachingFileSystem decorator that adds stat-versioned caching on top of any store.
//
// Paths are slash separated and relative to the store root. A trailing slash marks a
// directory; the root itself is "".
package filesystem

import (
	"context"
	"iter"
	"maps"

	"github.com/objectfs/cachingfs/pkg/async"
)

// Version is an opaque token identifying one state of a file or directory. Only
// equality is meaningful. The empty Version means "unversioned".
type Version string

// StatInfo is the version of a path. For directories ChildVersions maps every immediate
// child (sub-directories suffixed with "/") to its version and is never nil; for files
// it is nil. A directory's Version changes iff its child set or any child version does.
type StatInfo struct {
	Version       Version            `cbor:"v"`
	ChildVersions map[string]Version `cbor:"c"`
}

// IsDirectory reports whether s describes a directory.
func (s StatInfo) IsDirectory() bool {
	return s.ChildVersions != nil
}

// Equal reports whether both the version and the child versions match.
func (s StatInfo) Equal(o StatInfo) bool {
	return s.Version == o.Version &&
		s.IsDirectory() == o.IsDirectory() &&
		maps.Equal(s.ChildVersions, o.ChildVersions)
}

// Content is the result of reading one path: raw bytes for a file, child names for a
// directory (sub-directories suffixed with "/").
type Content struct {
	Data     []byte   `cbor:"d"`
	Children []string `cbor:"c"`
}

// WalkStep is one directory visited by Walk. Base is the directory relative to the walk
// root without a trailing slash ("" for the root itself); Dirs keep their trailing slash.
type WalkStep struct {
	Base  string
	Dirs  []string
	Files []string
}

// FileLister lists one directory level, splitting children into directories and files.
type FileLister func(ctx context.Context, dir string) (dirs, files []string, err error)

// FileSystem is a read-only, versioned, hierarchical store.
//
// Missing paths fail with errors.ErrCodeFileNotFound, rate limiting with
// errors.ErrCodeThrottled and every other backing store failure with
// errors.ErrCodeSystemError.
type FileSystem interface {
	// Read resolves every path to its Content. A missing path fails the whole call
	// unless skipNotFound is set, in which case it is left out of the result.
	Read(ctx context.Context, paths []string, skipNotFound bool) *async.Result[map[string]Content]

	// StatAsync resolves the version of path. Files are answered from their parent
	// directory's child versions.
	StatAsync(ctx context.Context, path string) *async.Result[StatInfo]

	// Walk lazily yields every directory under root depth first. A depth of -1 is
	// unlimited and 0 yields nothing. When lister is non-nil it sources each level.
	Walk(ctx context.Context, root string, depth int, lister FileLister) iter.Seq2[WalkStep, error]

	// Refresh refreshes any session state the store holds.
	Refresh(ctx context.Context) *async.Result[struct{}]

	// GetIdentity returns a stable key derived from the store's configuration.
	GetIdentity() string

	// GetVersion returns the overall store version, or "" when unversioned.
	GetVersion() Version
}

// CommitReader is implemented by stores backed by version control.
type CommitReader interface {
	GetCommitID(ctx context.Context) *async.Result[string]
	GetPreviousCommitID(ctx context.Context) *async.Result[string]
}

// SameIdentity reports whether a and b are the same file system. Two file systems are
// equal iff their identities are.
func SameIdentity(a, b FileSystem) bool {
	return a.GetIdentity() == b.GetIdentity()
}
