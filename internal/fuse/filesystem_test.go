package fuse

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cachingfs/internal/cache"
	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/internal/storage/memfs"
	"github.com/objectfs/cachingfs/pkg/errors"
)

func newTestFS(t *testing.T, opts ...filesystem.Option) (*FileSystem, *memfs.FileSystem) {
	t.Helper()
	inner := memfs.New("docs", map[string]string{
		"extensions/alarms.html":   "alarms v0",
		"extensions/api/tabs.json": "{}",
		"index.html":               "<html>",
	})
	cfs, err := filesystem.NewCachingFileSystem(inner, cache.NewMemoryFactory(cache.CacheConfig{MaxEntries: 100}), opts...)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFileSystem(cfs, &Config{UID: 1000, GID: 1000, FileMode: 0o444, DirMode: 0o555}, logger), inner
}

func readBytes(t *testing.T, res fuse.ReadResult) string {
	t.Helper()
	data, status := res.Bytes(make([]byte, res.Size()))
	require.True(t, status.Ok())
	return string(data)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	fsys, inner := newTestFS(t)

	e, errno := fsys.resolve(ctx, "", "extensions")
	require.Zero(t, errno)
	assert.Equal(t, entry{path: "extensions/", dir: true}, e)

	e, errno = fsys.resolve(ctx, "extensions/", "alarms.html")
	require.Zero(t, errno)
	assert.Equal(t, entry{path: "extensions/alarms.html", size: uint64(len("alarms v0"))}, e)

	_, errno = fsys.resolve(ctx, "extensions/", "missing.html")
	assert.Equal(t, syscall.ENOENT, errno)

	// The second lookup is served from the stat and read caches.
	inner.ResetCounts()
	_, errno = fsys.resolve(ctx, "extensions/", "alarms.html")
	require.Zero(t, errno)
	assert.Equal(t, memfs.Counts{}, inner.Counts())
}

func TestResolveFailOnMiss(t *testing.T) {
	fsys, inner := newTestFS(t, filesystem.WithFailOnMiss(true))

	_, errno := fsys.resolve(context.Background(), "", "index.html")
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, memfs.Counts{}, inner.Counts())
	assert.Zero(t, fsys.GetStats().Errors)
}

func TestDirectoryNode(t *testing.T) {
	ctx := context.Background()
	fsys, _ := newTestFS(t)
	root := &DirectoryNode{fsys: fsys, path: ""}

	stream, errno := root.Readdir(ctx)
	require.Zero(t, errno)
	var names []string
	modes := map[string]uint32{}
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Zero(t, errno)
		names = append(names, e.Name)
		modes[e.Name] = e.Mode
	}
	stream.Close()
	sort.Strings(names)
	assert.Equal(t, []string{"extensions", "index.html"}, names)
	assert.Equal(t, uint32(fuse.S_IFDIR), modes["extensions"])
	assert.Equal(t, uint32(fuse.S_IFREG), modes["index.html"])

	var out fuse.AttrOut
	require.Zero(t, root.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(fuse.S_IFDIR|0o555), out.Mode)
	assert.Equal(t, uint32(1000), out.Uid)

	gone := &DirectoryNode{fsys: fsys, path: "gone/"}
	assert.Equal(t, syscall.ENOENT, gone.Getattr(ctx, nil, &out))
	_, errno = gone.Readdir(ctx)
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, int64(2), fsys.GetStats().Readdirs)
}

func TestFileNode(t *testing.T) {
	ctx := context.Background()
	fsys, inner := newTestFS(t)
	file := &FileNode{fsys: fsys, path: "index.html"}

	var out fuse.AttrOut
	require.Zero(t, file.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(fuse.S_IFREG|0o444), out.Mode)
	assert.Equal(t, uint64(len("<html>")), out.Size)

	_, _, errno := file.Open(ctx, syscall.O_WRONLY)
	assert.Equal(t, syscall.EROFS, errno)

	fh, flags, errno := file.Open(ctx, syscall.O_RDONLY)
	require.Zero(t, errno)
	assert.Equal(t, uint32(fuse.FOPEN_KEEP_CACHE), flags)

	// The handle keeps the content seen at open time.
	inner.Set("index.html", "<html><body>")
	res, errno := file.Read(ctx, fh, make([]byte, 3), 1)
	require.Zero(t, errno)
	assert.Equal(t, "htm", readBytes(t, res))

	res, errno = file.Read(ctx, fh, make([]byte, 16), 100)
	require.Zero(t, errno)
	assert.Empty(t, readBytes(t, res))

	stats := fsys.GetStats()
	assert.Equal(t, int64(1), stats.Opens)
	assert.Equal(t, int64(2), stats.Reads)
	assert.Equal(t, int64(3), stats.BytesRead)

	missing := &FileNode{fsys: fsys, path: "missing.html"}
	_, _, errno = missing.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"not found", errors.NotFound("a"), syscall.ENOENT},
		{"not a directory", errors.NewError(errors.ErrCodeNotDirectory, "x"), syscall.ENOTDIR},
		{"invalid path", errors.NewError(errors.ErrCodePathInvalid, "x"), syscall.EINVAL},
		{"access denied", errors.NewError(errors.ErrCodeAccessDenied, "x"), syscall.EACCES},
		{"throttled", errors.Throttled("a", nil), syscall.EAGAIN},
		{"canceled", context.Canceled, syscall.EINTR},
		{"system error", errors.SystemError("a", nil), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toErrno(tt.err))
		})
	}
}

func TestSliceRange(t *testing.T) {
	data := []byte("abcdef")
	assert.Equal(t, []byte("abc"), sliceRange(data, 0, 3))
	assert.Equal(t, []byte("ef"), sliceRange(data, 4, 10))
	assert.Nil(t, sliceRange(data, 6, 1))
	assert.Nil(t, sliceRange(data, -1, 1))
}

func TestIsMounted(t *testing.T) {
	table := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(table, []byte(
		"proc /proc proc rw 0 0\ncachingfs /mnt/docs fuse.cachingfs ro 0 0\n"), 0o600))

	assert.True(t, isMounted(table, "/mnt/docs/"))
	assert.False(t, isMounted(table, "/mnt/doc"))
	assert.False(t, isMounted(filepath.Join(t.TempDir(), "absent"), "/mnt/docs"))
}

func TestValidateMountPoint(t *testing.T) {
	fsys, _ := newTestFS(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name    string
		point   string
		wantErr bool
	}{
		{"empty", "", true},
		{"missing", filepath.Join(dir, "missing"), true},
		{"file", file, true},
		{"directory", t.TempDir(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMountManager(fsys, MountConfig{MountPoint: tt.point, Options: DefaultMountOptions()})
			err := m.validateMountPoint()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildFUSEOptions(t *testing.T) {
	fsys, _ := newTestFS(t)
	m := NewMountManager(fsys, MountConfig{MountPoint: "/mnt/docs", Options: DefaultMountOptions()})

	opts := m.buildFUSEOptions()
	assert.Contains(t, opts.MountOptions.Options, "ro")
	assert.Equal(t, "cachingfs", opts.MountOptions.FsName)
	require.NotNil(t, opts.AttrTimeout)
	assert.Equal(t, DefaultMountOptions().AttrTimeout, *opts.AttrTimeout)
	assert.Equal(t, uint32(1000), opts.UID)
}

func TestMount(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("Skipping mount test - /dev/fuse not available")
	}

	fsys, _ := newTestFS(t)
	mnt := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMountManager(fsys, MountConfig{MountPoint: mnt, Options: DefaultMountOptions()})
	if err := m.Mount(ctx); err != nil {
		t.Skipf("Skipping mount test - mount not permitted: %v", err)
	}
	t.Cleanup(func() {
		if m.IsMounted() {
			_ = m.Unmount()
		}
	})
	require.True(t, m.IsMounted())

	data, err := os.ReadFile(filepath.Join(mnt, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>", string(data))

	entries, err := os.ReadDir(filepath.Join(mnt, "extensions"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"alarms.html", "api"}, names)

	_, err = os.Stat(filepath.Join(mnt, "missing.html"))
	assert.True(t, os.IsNotExist(err))

	err = os.WriteFile(filepath.Join(mnt, "index.html"), []byte("x"), 0o644)
	assert.Error(t, err)

	require.NoError(t, m.Unmount())
	assert.False(t, m.IsMounted())
	assert.Positive(t, m.GetStats().Lookups)
}
