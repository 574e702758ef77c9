package filesystem

import (
	"context"
	"iter"
	"strings"

	"github.com/objectfs/cachingfs/pkg/errors"
	"github.com/objectfs/cachingfs/pkg/utils"
)

// WalkTree is the depth-first walk shared by every backing store. Each directory level
// comes from lister, or from ReadSingle on fs when lister is nil. Iteration stops at the
// first listing error, which is yielded with an empty WalkStep.
func WalkTree(ctx context.Context, fs FileSystem, root string, depth int, lister FileLister) iter.Seq2[WalkStep, error] {
	root = utils.ToDirectory(root)
	if lister == nil {
		lister = func(ctx context.Context, dir string) ([]string, []string, error) {
			content, err := ReadSingle(ctx, fs, dir, false).Wait(ctx)
			if err != nil {
				return nil, nil, err
			}
			dirs, files := SplitChildren(content.Children)
			return dirs, files, nil
		}
	}

	return func(yield func(WalkStep, error) bool) {
		walkDir(ctx, root, root, depth, lister, yield)
	}
}

// walkDir returns false once the consumer stops or an error was yielded.
func walkDir(ctx context.Context, base, dir string, depth int, lister FileLister, yield func(WalkStep, error) bool) bool {
	if depth == 0 {
		return true
	}
	if !utils.IsDirectory(dir) {
		yield(WalkStep{}, errors.NewError(errors.ErrCodeNotDirectory, "walk root must be a directory").WithPath(dir))
		return false
	}

	dirs, files, err := lister(ctx, dir)
	if err != nil {
		yield(WalkStep{}, err)
		return false
	}

	step := WalkStep{
		Base:  strings.TrimSuffix(strings.TrimPrefix(dir, base), "/"),
		Dirs:  dirs,
		Files: files,
	}
	if !yield(step, nil) {
		return false
	}

	for _, d := range dirs {
		if !walkDir(ctx, base, dir+d, depth-1, lister, yield) {
			return false
		}
	}
	return true
}
