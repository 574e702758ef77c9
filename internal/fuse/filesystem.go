package fuse

import (
	"context"
	stderr "errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/errors"
)

// safeIntToUint32 converts int to uint32, clamping out-of-range values.
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// Config controls the attributes reported for every node.
type Config struct {
	UID      uint32
	GID      uint32
	FileMode uint32
	DirMode  uint32
}

// DefaultConfig reports everything as owned by the current user.
func DefaultConfig() *Config {
	return &Config{
		UID:      safeIntToUint32(os.Getuid()),
		GID:      safeIntToUint32(os.Getgid()),
		FileMode: 0o444,
		DirMode:  0o555,
	}
}

// Stats counts kernel requests served by a FileSystem.
type Stats struct {
	Lookups   int64 `json:"lookups"`
	Readdirs  int64 `json:"readdirs"`
	Opens     int64 `json:"opens"`
	Reads     int64 `json:"reads"`
	BytesRead int64 `json:"bytes_read"`
	Errors    int64 `json:"errors"`
}

// FileSystem serves a CachingFileSystem read-only over FUSE. Every kernel request
// goes through the caching layer, so repeated lookups and reads of unchanged paths
// never reach the backing store.
type FileSystem struct {
	cfs     *filesystem.CachingFileSystem
	config  *Config
	logger  *slog.Logger
	mounted time.Time

	lookups   atomic.Int64
	readdirs  atomic.Int64
	opens     atomic.Int64
	reads     atomic.Int64
	bytesRead atomic.Int64
	errors    atomic.Int64
}

// NewFileSystem creates a FUSE view of cfs. A nil config takes DefaultConfig.
func NewFileSystem(cfs *filesystem.CachingFileSystem, config *Config, logger *slog.Logger) *FileSystem {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		cfs:     cfs,
		config:  config,
		logger:  logger.With("component", "fuse"),
		mounted: time.Now(),
	}
}

// Root returns the root directory node.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fsys: f, path: ""}
}

// GetStats returns current request counts.
func (f *FileSystem) GetStats() Stats {
	return Stats{
		Lookups:   f.lookups.Load(),
		Readdirs:  f.readdirs.Load(),
		Opens:     f.opens.Load(),
		Reads:     f.reads.Load(),
		BytesRead: f.bytesRead.Load(),
		Errors:    f.errors.Load(),
	}
}

// entry is a resolved child of a directory.
type entry struct {
	path string
	dir  bool
	size uint64
}

// resolve finds name in dir using the cached stat of dir. File sizes come from the
// file content, which the read cache serves while the version is unchanged.
func (f *FileSystem) resolve(ctx context.Context, dir, name string) (entry, syscall.Errno) {
	st, err := filesystem.Stat(ctx, f.cfs, dir)
	if err != nil {
		return entry{}, f.errno("lookup", dir, err)
	}

	if _, ok := st.ChildVersions[name+"/"]; ok {
		return entry{path: dir + name + "/", dir: true}, 0
	}
	if _, ok := st.ChildVersions[name]; !ok {
		return entry{}, syscall.ENOENT
	}

	path := dir + name
	content, errno := f.content(ctx, path)
	if errno != 0 {
		return entry{}, errno
	}
	return entry{path: path, size: uint64(len(content.Data))}, 0
}

func (f *FileSystem) content(ctx context.Context, path string) (*filesystem.Content, syscall.Errno) {
	content, err := filesystem.ReadSingle(ctx, f.cfs, path, false).Wait(ctx)
	if err != nil {
		return nil, f.errno("read", path, err)
	}
	return content, 0
}

// errno maps err to the errno reported to the kernel. NotFound is routine and is not
// counted as an error.
func (f *FileSystem) errno(op, path string, err error) syscall.Errno {
	e := toErrno(err)
	if e != syscall.ENOENT {
		f.errors.Add(1)
		f.logger.Warn("request failed", "op", op, "path", path, "error", err)
	}
	return e
}

func toErrno(err error) syscall.Errno {
	switch errors.CodeOf(err) {
	case errors.ErrCodeFileNotFound:
		return syscall.ENOENT
	case errors.ErrCodeNotDirectory:
		return syscall.ENOTDIR
	case errors.ErrCodePathInvalid:
		return syscall.EINVAL
	case errors.ErrCodeAccessDenied:
		return syscall.EACCES
	case errors.ErrCodeThrottled:
		return syscall.EAGAIN
	}
	if stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded) {
		return syscall.EINTR
	}
	return syscall.EIO
}

func (f *FileSystem) fillAttr(out *fuse.Attr, e entry) {
	if e.dir {
		out.Mode = fuse.S_IFDIR | f.config.DirMode
		out.Nlink = 2
	} else {
		out.Mode = fuse.S_IFREG | f.config.FileMode
		out.Nlink = 1
		out.Size = e.size
		out.Blocks = (e.size + 511) / 512
	}
	out.Uid = f.config.UID
	out.Gid = f.config.GID

	t := uint64(f.mounted.Unix())
	out.Mtime, out.Atime, out.Ctime = t, t, t
}

var (
	_ = (fs.NodeLookuper)((*DirectoryNode)(nil))
	_ = (fs.NodeGetattrer)((*DirectoryNode)(nil))
	_ = (fs.NodeReaddirer)((*DirectoryNode)(nil))
	_ = (fs.NodeGetattrer)((*FileNode)(nil))
	_ = (fs.NodeOpener)((*FileNode)(nil))
	_ = (fs.NodeReader)((*FileNode)(nil))
)

// DirectoryNode is a directory. path carries the trailing slash, "" for the root.
type DirectoryNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

// Lookup resolves a child by name.
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fsys.lookups.Add(1)

	e, errno := n.fsys.resolve(ctx, n.path, name)
	if errno != 0 {
		return nil, errno
	}
	n.fsys.fillAttr(&out.Attr, e)

	if e.dir {
		return n.NewInode(ctx, &DirectoryNode{fsys: n.fsys, path: e.path}, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
	}
	return n.NewInode(ctx, &FileNode{fsys: n.fsys, path: e.path}, fs.StableAttr{Mode: fuse.S_IFREG}), 0
}

// Getattr reports directory attributes after checking the directory still exists.
func (n *DirectoryNode) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ok, err := filesystem.Exists(ctx, n.fsys.cfs, n.path).Wait(ctx)
	if err != nil {
		return n.fsys.errno("getattr", n.path, err)
	}
	if !ok {
		return syscall.ENOENT
	}
	n.fsys.fillAttr(&out.Attr, entry{path: n.path, dir: true})
	return 0
}

// Readdir lists the directory from its cached content.
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.fsys.readdirs.Add(1)

	content, errno := n.fsys.content(ctx, n.path)
	if errno != 0 {
		return nil, errno
	}

	entries := make([]fuse.DirEntry, 0, len(content.Children))
	for _, child := range content.Children {
		if name, ok := strings.CutSuffix(child, "/"); ok {
			entries = append(entries, fuse.DirEntry{Name: name, Mode: fuse.S_IFDIR})
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: child, Mode: fuse.S_IFREG})
	}
	return fs.NewListDirStream(entries), 0
}

// FileNode is a regular file.
type FileNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

// Getattr reports the file size from its current content.
func (n *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*fileHandle); ok {
		n.fsys.fillAttr(&out.Attr, entry{path: n.path, size: uint64(len(h.data))})
		return 0
	}

	content, errno := n.fsys.content(ctx, n.path)
	if errno != 0 {
		return errno
	}
	n.fsys.fillAttr(&out.Attr, entry{path: n.path, size: uint64(len(content.Data))})
	return 0
}

// Open loads the file content into the handle. Writes are refused.
func (n *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	n.fsys.opens.Add(1)

	content, errno := n.fsys.content(ctx, n.path)
	if errno != 0 {
		return nil, 0, errno
	}
	return &fileHandle{data: content.Data}, fuse.FOPEN_KEEP_CACHE, 0
}

// Read serves a byte range from the handle, or from a fresh read without one.
func (n *FileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.fsys.reads.Add(1)

	var data []byte
	if h, ok := fh.(*fileHandle); ok {
		data = h.data
	} else {
		content, errno := n.fsys.content(ctx, n.path)
		if errno != 0 {
			return nil, errno
		}
		data = content.Data
	}

	chunk := sliceRange(data, off, len(dest))
	n.fsys.bytesRead.Add(int64(len(chunk)))
	return fuse.ReadResultData(chunk), 0
}

// fileHandle pins the content seen at open time.
type fileHandle struct {
	data []byte
}

func sliceRange(data []byte, off int64, size int) []byte {
	if off < 0 || off >= int64(len(data)) {
		return nil
	}
	end := min(off+int64(size), int64(len(data)))
	return data[off:end]
}
