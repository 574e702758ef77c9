package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/filesystem"
)

// errMissing makes exists exit non-zero without printing an error.
type errMissing struct{ path string }

func (e errMissing) Error() string { return e.path + " does not exist" }

func newExistsCommand(opts *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "exists <path>",
		Short: "Report whether a path exists",
		Long:  "Print true or false. The exit status is 1 when the path does not exist.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := normalizePath(args[0])
			return opts.run(cmd, func(ctx context.Context, fs *filesystem.CachingFileSystem) error {
				ok, err := filesystem.Exists(ctx, fs, p).Wait(ctx)
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), ok)
				}
				if !ok {
					cmd.SilenceErrors = true
					return errMissing{path: displayPath(p)}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing; report through the exit status only")
	return cmd
}
