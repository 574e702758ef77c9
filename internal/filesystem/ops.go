package filesystem

import (
	"context"

	"github.com/objectfs/cachingfs/pkg/async"
	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// ReadSingle reads one path. It resolves to nil when the path is missing and
// skipNotFound is set, and fails with NotFound when it is missing otherwise.
func ReadSingle(ctx context.Context, fs FileSystem, path string, skipNotFound bool) *async.Result[*Content] {
	return async.Then(fs.Read(ctx, []string{path}, skipNotFound), func(m map[string]Content) (*Content, error) {
		c, ok := m[path]
		if !ok {
			if skipNotFound {
				return nil, nil
			}
			return nil, errors.NotFound(path).WithOperation("read")
		}
		return &c, nil
	}, nil)
}

// Exists reports whether path exists. It never fails with NotFound; the root always exists.
func Exists(ctx context.Context, fs FileSystem, path string) *async.Result[bool] {
	if path == "" {
		return async.Resolved(true)
	}
	return async.Then(fs.StatAsync(ctx, path), func(StatInfo) (bool, error) {
		return true, nil
	}, func(err error) (bool, error) {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	})
}

// Stat blocks until StatAsync resolves.
func Stat(ctx context.Context, fs FileSystem, path string) (StatInfo, error) {
	return fs.StatAsync(ctx, path).Wait(ctx)
}

// ChildStat derives the stat of path from the stat of the directory holding it: the
// directory itself when name is "", otherwise the named child.
func ChildStat(dirStat StatInfo, path, name string) (StatInfo, error) {
	if name == "" {
		return dirStat, nil
	}
	v, ok := dirStat.ChildVersions[name]
	if !ok {
		return StatInfo{}, errors.NotFound(path)
	}
	return StatInfo{Version: v}, nil
}

// StatTarget returns the directory whose stat answers a stat of path, and the child name
// to extract from it ("" when path is itself a directory).
func StatTarget(path string) (dir, name string) {
	if utils.IsDirectory(path) {
		return path, ""
	}
	return utils.SplitParent(path)
}

// SplitChildren partitions a directory listing into directories and files.
func SplitChildren(children []string) (dirs, files []string) {
	dirs, files = []string{}, []string{}
	for _, child := range children {
		if utils.IsDirectory(child) {
			dirs = append(dirs, child)
		} else {
			files = append(files, child)
		}
	}
	return dirs, files
}
