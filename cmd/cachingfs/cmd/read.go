package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/filesystem"
)

func newReadCommand(opts *rootOptions) *cobra.Command {
	var skipMissing bool

	cmd := &cobra.Command{
		Use:   "read <path>...",
		Short: "Print file contents or directory listings",
		Long: "Read every path in one batch. Files are written as-is; directories list\n" +
			"their children one per line. With several paths each is preceded by a header.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, fs *filesystem.CachingFileSystem) error {
				return runRead(ctx, cmd.OutOrStdout(), fs, args, skipMissing)
			})
		},
	}

	cmd.Flags().BoolVar(&skipMissing, "skip-missing", false, "skip paths that do not exist instead of failing")
	return cmd
}

func runRead(ctx context.Context, out io.Writer, fs filesystem.FileSystem, args []string, skipMissing bool) error {
	paths := make([]string, len(args))
	for i, a := range args {
		paths[i] = normalizePath(a)
	}

	contents, err := fs.Read(ctx, paths, skipMissing).Wait(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	headers := len(paths) > 1
	printed := 0
	for _, p := range paths {
		content, ok := contents[p]
		if !ok {
			continue
		}
		if headers {
			if printed > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "==> %s <==\n", displayPath(p))
		}
		printed++
		if content.Children != nil {
			for _, child := range content.Children {
				fmt.Fprintln(out, child)
			}
			continue
		}
		if _, err := out.Write(content.Data); err != nil {
			return err
		}
	}
	return nil
}
