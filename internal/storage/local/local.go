// Package local serves a directory on local disk as a versioned filesystem.FileSystem.
//
// File versions are BLAKE3 digests of size and modification time; directory versions
// are digests of their children's names and versions, computed recursively, so a
// change anywhere below a directory changes its version.
package local

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	stderr "errors"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/zeebo/blake3"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// FileSystem is a read-only view of a local directory tree.
type FileSystem struct {
	root   string
	logger *slog.Logger
}

var _ filesystem.FileSystem = (*FileSystem)(nil)

// New returns a file system rooted at root, which must be an existing directory.
func New(root string, logger *slog.Logger) (*FileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid local root").WithPath(root).WithCause(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "local root is not accessible").WithPath(abs).WithCause(err)
	}
	if !info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeNotDirectory, "local root is not a directory").WithPath(abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{root: abs, logger: logger.With("component", "local-fs", "root", abs)}, nil
}

// resolve maps path onto disk, refusing anything that escapes the root.
func (l *FileSystem) resolve(path string) (string, error) {
	if err := utils.ValidatePath(path); err != nil {
		return "", errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(path)
	}
	if path == "" {
		return l.root, nil
	}
	p, err := utils.SecureJoin(l.root, filepath.FromSlash(path))
	if err != nil {
		return "", errors.NewError(errors.ErrCodePathInvalid, err.Error()).WithPath(path)
	}
	return p, nil
}

// Read reads every path. Directories list their children, sub-directories suffixed "/".
func (l *FileSystem) Read(ctx context.Context, paths []string, skipNotFound bool) *async.Result[map[string]filesystem.Content] {
	return async.Go(func() (map[string]filesystem.Content, error) {
		out := make(map[string]filesystem.Content, len(paths))
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			content, err := l.read(path)
			if err != nil {
				if skipNotFound && errors.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			out[path] = content
		}
		return out, nil
	})
}

func (l *FileSystem) read(path string) (filesystem.Content, error) {
	p, err := l.resolve(path)
	if err != nil {
		return filesystem.Content{}, err
	}
	if utils.IsDirectory(path) {
		entries, err := os.ReadDir(p)
		if err != nil {
			return filesystem.Content{}, translateError(path, err)
		}
		return filesystem.Content{Children: childNames(entries)}, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return filesystem.Content{}, translateError(path, err)
	}
	return filesystem.Content{Data: data}, nil
}

func childNames(entries []fs.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// StatAsync stats path. Files are answered from their parent directory.
func (l *FileSystem) StatAsync(ctx context.Context, path string) *async.Result[filesystem.StatInfo] {
	return async.Go(func() (filesystem.StatInfo, error) {
		dir, name := filesystem.StatTarget(path)
		p, err := l.resolve(dir)
		if err != nil {
			return filesystem.StatInfo{}, err
		}
		children, err := l.childVersions(p)
		if err != nil {
			l.logger.Debug("stat failed", "path", dir, "error", err)
			return filesystem.StatInfo{}, translateError(dir, err)
		}
		st := filesystem.StatInfo{Version: hashChildren(children), ChildVersions: children}
		return filesystem.ChildStat(st, path, name)
	})
}

func (l *FileSystem) childVersions(dir string) (map[string]filesystem.Version, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	children := make(map[string]filesystem.Version, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			sub, err := l.childVersions(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			children[e.Name()+"/"] = hashChildren(sub)
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		children[e.Name()] = fileVersion(info)
	}
	return children, nil
}

func fileVersion(info fs.FileInfo) filesystem.Version {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.BigEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	sum := blake3.Sum256(buf[:])
	return filesystem.Version(hex.EncodeToString(sum[:16]))
}

func hashChildren(children map[string]filesystem.Version) filesystem.Version {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	slices.Sort(names)

	h := blake3.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(children[name]))
		h.Write([]byte{'\n'})
	}
	return filesystem.Version(hex.EncodeToString(h.Sum(nil)[:16]))
}

func translateError(path string, err error) error {
	switch {
	case stderr.Is(err, fs.ErrNotExist), stderr.Is(err, syscall.ENOTDIR), stderr.Is(err, syscall.EISDIR):
		return errors.NotFound(path).WithComponent("local-fs").WithCause(err)
	default:
		return errors.SystemError(path, err).WithComponent("local-fs")
	}
}

// Walk walks the directory tree below root.
func (l *FileSystem) Walk(ctx context.Context, root string, depth int, lister filesystem.FileLister) iter.Seq2[filesystem.WalkStep, error] {
	return filesystem.WalkTree(ctx, l, root, depth, lister)
}

// Refresh has no session state to refresh.
func (l *FileSystem) Refresh(ctx context.Context) *async.Result[struct{}] {
	return async.Resolved(struct{}{})
}

// GetIdentity returns "local:<absolute root>".
func (l *FileSystem) GetIdentity() string {
	return "local:" + filepath.ToSlash(l.root)
}

// GetVersion returns "": a local tree is unversioned as a whole.
func (l *FileSystem) GetVersion() filesystem.Version {
	return ""
}
