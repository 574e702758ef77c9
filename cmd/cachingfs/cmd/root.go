// Package cmd implements the cachingfs command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/objectfs/cachingfs/internal/adapter"
	"github.com/objectfs/cachingfs/internal/config"
	"github.com/objectfs/cachingfs/internal/filesystem"
	"github.com/objectfs/cachingfs/internal/metrics"
)

type rootOptions struct {
	configFile string
	storage    string
	cacheDir   string
	logLevel   string
	failOnMiss bool
	stats      bool

	// logger is set by run before fn is called.
	logger *slog.Logger
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// NewRootCommand builds the cachingfs command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cachingfs",
		Short: "Versioned caching file system CLI",
		Long: "Query a memory, local or S3 file system through the caching layer.\n" +
			"Reads and stats are served from cache while the stored version is current.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: ~/.config/cachingfs/config.yaml if present)")
	flags.StringVar(&opts.storage, "storage", "", "storage URI: s3://bucket/prefix, file:///path or mem://name")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "persistent cache directory (enables the persistent cache)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.BoolVar(&opts.failOnMiss, "fail-on-miss", false, "serve only from cache; misses fail as not found")
	flags.BoolVar(&opts.stats, "stats", false, "print cache statistics to stderr when done")

	root.AddCommand(
		newStatCommand(opts),
		newReadCommand(opts),
		newWalkCommand(opts),
		newExistsCommand(opts),
		newMountCommand(opts),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	cfg := config.NewDefault()

	file := o.configFile
	if file == "" {
		if candidate := filepath.Join(configDir(), "config.yaml"); fileExists(candidate) {
			file = candidate
		}
	}
	if file != "" {
		if err := cfg.LoadFromFile(file); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if o.storage != "" {
		if err := adapter.ApplyStorageURI(&cfg.Storage, o.storage); err != nil {
			return nil, fmt.Errorf("invalid storage URI: %w", err)
		}
	}
	if o.cacheDir != "" {
		cfg.Cache.Persistent.Enabled = true
		cfg.Cache.Persistent.Directory = o.cacheDir
	}
	if o.logLevel != "" {
		cfg.Global.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("fail-on-miss") {
		cfg.Cache.FailOnMiss = o.failOnMiss
	}
	return cfg, nil
}

// run opens the caching file system, hands it to fn and tears everything down.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, fs *filesystem.CachingFileSystem) error) (err error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	o.logger = adapter.NewLogger(cmd.ErrOrStderr(), cfg.Global)
	a, err := adapter.New(ctx, cfg, adapter.WithLogger(o.logger))
	if err != nil {
		return err
	}
	defer func() {
		if serr := a.Stop(context.WithoutCancel(ctx)); serr != nil && err == nil {
			err = serr
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}

	err = fn(ctx, a.FileSystem())

	if o.stats {
		writeStats(cmd.ErrOrStderr(), a.Metrics())
	}
	return err
}

func writeStats(w io.Writer, collector *metrics.Collector) {
	s := collector.GetSnapshot()
	_, _ = fmt.Fprintf(w, "\nnegative hits: %d, dedup joins: %d\n", s.NegativeHits, s.DedupJoins)
	metrics.WriteSummary(w, s)
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachingfs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "cachingfs")
	}
	return ".cachingfs"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
