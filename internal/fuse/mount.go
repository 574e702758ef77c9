package fuse

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountOptions contains FUSE mount options. The mount is always read-only.
type MountOptions struct {
	AllowOther   bool
	Debug        bool
	FSName       string
	Subtype      string
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
	MaxReadAhead int
}

// MountConfig contains mount-specific configuration.
type MountConfig struct {
	MountPoint string
	Options    MountOptions
}

// DefaultMountOptions returns the options used when none are set.
func DefaultMountOptions() MountOptions {
	return MountOptions{
		FSName:       "cachingfs",
		Subtype:      "cachingfs",
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
		MaxReadAhead: 128 * 1024,
	}
}

// MountManager mounts a FileSystem and tracks the FUSE server serving it.
type MountManager struct {
	filesystem *FileSystem
	config     MountConfig
	logger     *slog.Logger

	mu      sync.Mutex
	server  *fuse.Server
	mounted bool
}

// NewMountManager creates a new mount manager.
func NewMountManager(filesystem *FileSystem, config MountConfig) *MountManager {
	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     filesystem.logger,
	}
}

// Mount mounts the filesystem and returns once the kernel has accepted the mount.
// The mount is released when ctx is canceled.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return fmt.Errorf("filesystem is already mounted")
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	server, err := fs.Mount(m.config.MountPoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}
	m.server = server
	m.mounted = true
	m.logger.Info("filesystem mounted", "mount_point", m.config.MountPoint)

	stopped := make(chan struct{})
	go func() {
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
			m.server = nil
		}
		m.mu.Unlock()
		close(stopped)
		m.logger.Info("fuse server stopped", "mount_point", m.config.MountPoint)
	}()

	go func() {
		select {
		case <-ctx.Done():
			if err := m.Unmount(); err != nil {
				m.logger.Warn("unmount on shutdown failed", "error", err)
			}
		case <-stopped:
		}
	}()
	return nil
}

// Unmount unmounts the filesystem, forcing it when the mount is busy.
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()

	if server == nil {
		return fmt.Errorf("filesystem is not mounted")
	}

	m.logger.Info("unmounting filesystem", "mount_point", m.config.MountPoint)
	if err := server.Unmount(); err != nil {
		m.logger.Warn("unmount failed, trying forced unmount", "error", err)
		if forceErr := forceUnmount(m.config.MountPoint); forceErr != nil {
			return fmt.Errorf("unmount failed: %w (forced unmount also failed: %v)", err, forceErr)
		}
	}

	m.mu.Lock()
	if m.server == server {
		m.server = nil
		m.mounted = false
	}
	m.mu.Unlock()
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Wait blocks until the FUSE server exits.
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

// GetMountPoint returns the configured mount point.
func (m *MountManager) GetMountPoint() string {
	return m.config.MountPoint
}

// GetStats returns the request counts of the mounted filesystem.
func (m *MountManager) GetStats() Stats {
	return m.filesystem.GetStats()
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.MountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.MountPoint)
	}

	entries, err := os.ReadDir(m.config.MountPoint)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.Warn("mount point is not empty", "mount_point", m.config.MountPoint)
	}

	if isMounted("/proc/mounts", m.config.MountPoint) {
		return fmt.Errorf("mount point %s is already mounted", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	o := m.config.Options
	attrTimeout, entryTimeout := o.AttrTimeout, o.EntryTimeout

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:         o.Subtype,
			FsName:       o.FSName,
			Debug:        o.Debug,
			AllowOther:   o.AllowOther,
			MaxReadAhead: o.MaxReadAhead,
			Options:      []string{"ro"},
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		UID:          m.filesystem.config.UID,
		GID:          m.filesystem.config.GID,
	}
	return opts
}

// isMounted reports whether mountPoint appears as a mount target in the mounts table
// at path. An unreadable table counts as not mounted.
func isMounted(path, mountPoint string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	target := filepath.Clean(mountPoint)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 1 && filepath.Clean(fields[1]) == target {
			return true
		}
	}
	return false
}
