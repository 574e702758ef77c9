package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/internal/fuse"
)

func newMountCommand(opts *rootOptions) *cobra.Command {
	mountOpts := fuse.DefaultMountOptions()

	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount the file system read-only over FUSE",
		Long: "Serve the caching file system at mountpoint until interrupted. Lookups,\n" +
			"listings and reads go through the caching layer; writes fail with EROFS.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, fs *filesystem.CachingFileSystem) error {
				return runMount(ctx, cmd.OutOrStdout(), opts, fs, fuse.MountConfig{
					MountPoint: args[0],
					Options:    mountOpts,
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&mountOpts.AllowOther, "allow-other", false, "allow other users to access the mount")
	flags.BoolVar(&mountOpts.Debug, "fuse-debug", false, "log every FUSE request")
	flags.DurationVar(&mountOpts.AttrTimeout, "attr-timeout", mountOpts.AttrTimeout, "kernel attribute cache timeout")
	flags.DurationVar(&mountOpts.EntryTimeout, "entry-timeout", mountOpts.EntryTimeout, "kernel lookup cache timeout")
	return cmd
}

func runMount(ctx context.Context, out io.Writer, opts *rootOptions, fs *filesystem.CachingFileSystem, config fuse.MountConfig) error {
	fsys := fuse.NewFileSystem(fs, nil, opts.logger)
	mm := fuse.NewMountManager(fsys, config)
	if err := mm.Mount(ctx); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	fmt.Fprintf(out, "mounted %s at %s\n", fs.GetIdentity(), mm.GetMountPoint())

	mm.Wait()

	s := mm.GetStats()
	opts.logger.Info("unmounted", "lookups", s.Lookups, "reads", s.Reads, "bytes_read", s.BytesRead, "errors", s.Errors)
	return nil
}
