// Package memfs is an in-memory, versioned FileSystem. Every file and directory
// carries an integer version; changing a path bumps it and all of its ancestors, so
// directory versions follow their contents. Call counters, injectable failures and a
// stat gate make it the backing store of choice in tests.
package memfs

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// Counts is a snapshot of the calls made against a FileSystem.
type Counts struct {
	Stat    int
	Read    int
	Refresh int
	// ReadPaths is the number of paths requested across all Read calls.
	ReadPaths int
}

// FileSystem is an in-memory filesystem.FileSystem. It is safe for concurrent use.
type FileSystem struct {
	name string

	mu       sync.RWMutex
	files    map[string][]byte
	dirs     map[string]struct{}
	versions map[string]int
	failures map[string]error
	commits  []string
	gate     chan struct{}
	counts   Counts
}

var (
	_ filesystem.FileSystem   = (*FileSystem)(nil)
	_ filesystem.CommitReader = (*FileSystem)(nil)
)

// New creates a filesystem named name holding files, keyed by path. A key with a
// trailing slash creates an empty directory.
func New(name string, files map[string]string) *FileSystem {
	m := &FileSystem{
		name:     name,
		files:    make(map[string][]byte),
		dirs:     map[string]struct{}{"": {}},
		versions: make(map[string]int),
		failures: make(map[string]error),
	}
	for p, data := range files {
		m.add(p, []byte(data))
	}
	return m
}

func (m *FileSystem) add(path string, data []byte) {
	if utils.IsDirectory(path) {
		m.dirs[path] = struct{}{}
	} else {
		m.files[path] = data
	}
	for parent := path; parent != ""; {
		parent, _ = utils.SplitParent(parent)
		m.dirs[parent] = struct{}{}
	}
}

// Set creates or replaces the file at path and bumps its version.
func (m *FileSystem) Set(path, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(path, []byte(data))
	m.bump(path, 1)
}

// Remove deletes path, and everything below it for a directory, bumping the parent.
func (m *FileSystem) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if utils.IsDirectory(path) {
		for p := range m.files {
			if strings.HasPrefix(p, path) {
				delete(m.files, p)
			}
		}
		for d := range m.dirs {
			if strings.HasPrefix(d, path) {
				delete(m.dirs, d)
			}
		}
	} else {
		delete(m.files, path)
	}
	parent, _ := utils.SplitParent(path)
	m.bump(parent, 1)
}

// IncrementStat bumps the version of path and of every ancestor directory by by.
func (m *FileSystem) IncrementStat(path string, by int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bump(path, by)
}

func (m *FileSystem) bump(path string, by int) {
	for {
		m.versions[path] += by
		if path == "" {
			return
		}
		path, _ = utils.SplitParent(path)
	}
}

// Fail makes every stat and read of path fail with err until cleared with a nil err.
func (m *FileSystem) Fail(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, path)
		return
	}
	m.failures[path] = err
}

// HoldStats blocks every StatAsync until the returned release function is called.
func (m *FileSystem) HoldStats() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// SetCommits sets the commit history, oldest first.
func (m *FileSystem) SetCommits(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = slices.Clone(ids)
}

// Counts returns the calls made so far.
func (m *FileSystem) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts
}

// ResetCounts zeroes the call counters and returns their previous values.
func (m *FileSystem) ResetCounts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counts
	m.counts = Counts{}
	return c
}

// Read resolves the content of every path.
func (m *FileSystem) Read(ctx context.Context, paths []string, skipNotFound bool) *async.Result[map[string]filesystem.Content] {
	m.mu.Lock()
	m.counts.Read++
	m.counts.ReadPaths += len(paths)
	m.mu.Unlock()

	return async.Go(func() (map[string]filesystem.Content, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		out := make(map[string]filesystem.Content, len(paths))
		for _, p := range paths {
			if err := m.failures[p]; err != nil {
				return nil, err
			}
			content, ok := m.content(p)
			if !ok {
				if skipNotFound {
					continue
				}
				return nil, errors.NotFound(p).WithComponent("memfs").WithOperation("read")
			}
			out[p] = content
		}
		return out, nil
	})
}

func (m *FileSystem) content(path string) (filesystem.Content, bool) {
	if !utils.IsDirectory(path) {
		data, ok := m.files[path]
		if !ok {
			return filesystem.Content{}, false
		}
		return filesystem.Content{Data: slices.Clone(data)}, true
	}
	if _, ok := m.dirs[path]; !ok {
		return filesystem.Content{}, false
	}
	return filesystem.Content{Children: m.children(path)}, true
}

// children lists the immediate children of dir, sorted, sub-directories suffixed "/".
func (m *FileSystem) children(dir string) []string {
	var out []string
	for p := range m.files {
		if parent, name := utils.SplitParent(p); parent == dir {
			out = append(out, name)
		}
	}
	for d := range m.dirs {
		if d == "" {
			continue
		}
		if parent, name := utils.SplitParent(d); parent == dir {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// StatAsync resolves the stat of path. Files are answered from the parent directory.
func (m *FileSystem) StatAsync(ctx context.Context, path string) *async.Result[filesystem.StatInfo] {
	m.mu.Lock()
	m.counts.Stat++
	gate := m.gate
	m.mu.Unlock()

	return async.Go(func() (filesystem.StatInfo, error) {
		if gate != nil {
			<-gate
		}
		m.mu.RLock()
		defer m.mu.RUnlock()

		if err := m.failures[path]; err != nil {
			return filesystem.StatInfo{}, err
		}
		dir, name := filesystem.StatTarget(path)
		if _, ok := m.dirs[dir]; !ok {
			return filesystem.StatInfo{}, errors.NotFound(path).WithComponent("memfs").WithOperation("stat")
		}

		children := make(map[string]filesystem.Version)
		for _, child := range m.children(dir) {
			children[child] = m.version(dir + child)
		}
		return filesystem.ChildStat(filesystem.StatInfo{Version: m.version(dir), ChildVersions: children}, path, name)
	})
}

func (m *FileSystem) version(path string) filesystem.Version {
	return filesystem.Version(strconv.Itoa(m.versions[path]))
}

// Walk walks the tree under root.
func (m *FileSystem) Walk(ctx context.Context, root string, depth int, lister filesystem.FileLister) iter.Seq2[filesystem.WalkStep, error] {
	return filesystem.WalkTree(ctx, m, root, depth, lister)
}

// Refresh counts the call and resolves immediately.
func (m *FileSystem) Refresh(ctx context.Context) *async.Result[struct{}] {
	m.mu.Lock()
	m.counts.Refresh++
	m.mu.Unlock()
	return async.Resolved(struct{}{})
}

// GetIdentity returns "memfs:<name>".
func (m *FileSystem) GetIdentity() string {
	return "memfs:" + m.name
}

// GetVersion returns the root version.
func (m *FileSystem) GetVersion() filesystem.Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version("")
}

// GetCommitID returns the newest commit.
func (m *FileSystem) GetCommitID(ctx context.Context) *async.Result[string] {
	return m.commit(1)
}

// GetPreviousCommitID returns the commit before the newest.
func (m *FileSystem) GetPreviousCommitID(ctx context.Context) *async.Result[string] {
	return m.commit(2)
}

func (m *FileSystem) commit(fromEnd int) *async.Result[string] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.commits) < fromEnd {
		return async.Failed[string](errors.NotFound("commit").WithComponent("memfs"))
	}
	return async.Resolved(m.commits[len(m.commits)-fromEnd])
}

// Paths returns every file path, sorted.
func (m *FileSystem) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}
