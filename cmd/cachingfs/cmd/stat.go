package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/pkg/async"
)

func newStatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Print the version of each path",
		Long:  "Print the version of each path. Directory paths end in \"/\"; \"/\" is the root.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, fs *filesystem.CachingFileSystem) error {
				return runStat(ctx, cmd, fs, args)
			})
		},
	}
}

func runStat(ctx context.Context, cmd *cobra.Command, fs filesystem.FileSystem, paths []string) error {
	// Issue every stat before waiting so directories shared between paths are fetched once.
	results := make([]*async.Result[filesystem.StatInfo], len(paths))
	for i, p := range paths {
		paths[i] = normalizePath(p)
		results[i] = fs.StatAsync(ctx, paths[i])
	}

	out := cmd.OutOrStdout()
	for i, p := range paths {
		st, err := results[i].Wait(ctx)
		if err != nil {
			return fmt.Errorf("stat %s: %w", displayPath(p), err)
		}
		if !st.IsDirectory() {
			fmt.Fprintf(out, "%s\t%s\tfile\n", displayPath(p), st.Version)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\tdir\t%d entries\n", displayPath(p), st.Version, len(st.ChildVersions))
	}
	return nil
}

// normalizePath maps command line paths onto file system paths, where the root is "".
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == "./" {
		return ""
	}
	return strings.TrimPrefix(p, "./")
}

// displayPath shows the root as "/".
func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
