package cmd

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/filesystem"
)

func newWalkCommand(opts *rootOptions) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "walk [dir]",
		Short: "List a directory tree",
		Long: "Walk the tree below dir (default: the root) and print every entry relative\n" +
			"to it, directories suffixed with \"/\". Listings come from the walk cache.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = normalizePath(args[0])
			}
			return opts.run(cmd, func(ctx context.Context, fs *filesystem.CachingFileSystem) error {
				return runWalk(ctx, cmd.OutOrStdout(), fs, root, depth)
			})
		},
	}

	cmd.Flags().IntVar(&depth, "depth", -1, "maximum number of levels to descend (-1 for no limit)")
	return cmd
}

func runWalk(ctx context.Context, out io.Writer, fs filesystem.FileSystem, root string, depth int) error {
	for step, err := range fs.Walk(ctx, root, depth, nil) {
		if err != nil {
			return fmt.Errorf("walk %s: %w", displayPath(root), err)
		}
		for _, d := range step.Dirs {
			fmt.Fprintln(out, path.Join(step.Base, d)+"/")
		}
		for _, f := range step.Files {
			fmt.Fprintln(out, path.Join(step.Base, f))
		}
	}
	return nil
}
