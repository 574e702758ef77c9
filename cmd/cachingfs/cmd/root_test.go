package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteConfig = `
global:
  log_level: ERROR
storage:
  backend: memory
  memory:
    name: site
    files:
      index.html: "<html>"
      docs/a.txt: "alpha"
      docs/b.txt: "beta"
      docs/deep/c.txt: "gamma"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(siteConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRead(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, "read", "--config", cfg, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>", out)

	out, _, err = execute(t, "read", "--config", cfg, "/")
	require.NoError(t, err)
	assert.Equal(t, "docs/\nindex.html\n", out)

	out, _, err = execute(t, "read", "--config", cfg, "/docs/a.txt", "docs/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "==> docs/a.txt <==\nalpha\n==> docs/b.txt <==\nbeta", out)
}

func TestReadMissing(t *testing.T) {
	cfg := writeConfig(t)

	_, stderr, err := execute(t, "read", "--config", cfg, "nope.txt")
	require.Error(t, err)
	assert.Contains(t, stderr, "nope.txt")

	out, _, err := execute(t, "read", "--config", cfg, "--skip-missing", "nope.txt", "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "==> docs/a.txt <==\nalpha", out)
}

func TestStat(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, "stat", "--config", cfg, "/", "docs/a.txt", "docs/deep/")
	require.NoError(t, err)
	assert.Equal(t, "/\t0\tdir\t2 entries\ndocs/a.txt\t0\tfile\ndocs/deep/\t0\tdir\t1 entries\n", out)

	_, _, err = execute(t, "stat", "--config", cfg, "docs/missing.txt")
	assert.Error(t, err)
}

func TestWalk(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, "walk", "--config", cfg, "docs/")
	require.NoError(t, err)
	assert.Equal(t, "deep/\na.txt\nb.txt\ndeep/c.txt\n", out)

	out, _, err = execute(t, "walk", "--config", cfg, "--depth", "1")
	require.NoError(t, err)
	assert.Equal(t, "docs/\nindex.html\n", out)
}

func TestExists(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := execute(t, "exists", "--config", cfg, "docs/")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, stderr, err := execute(t, "exists", "--config", cfg, "nope.txt")
	assert.Error(t, err)
	assert.Equal(t, "false\n", out)
	assert.NotContains(t, stderr, "Error")

	out, _, err = execute(t, "exists", "--config", cfg, "-q", "index.html")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFailOnMiss(t *testing.T) {
	cfg := writeConfig(t)

	_, _, err := execute(t, "read", "--config", cfg, "--fail-on-miss", "index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.html")
}

func TestStats(t *testing.T) {
	cfg := writeConfig(t)

	_, stderr, err := execute(t, "read", "--config", cfg, "--stats", "index.html", "docs/a.txt")
	require.NoError(t, err)
	assert.Contains(t, stderr, "negative hits: 0")
	assert.Contains(t, stderr, "read")
	assert.Contains(t, stderr, "stat")
}

func TestStorageFlag(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello"), 0o644))

	out, _, err := execute(t, "read", "--log-level", "ERROR", "--storage", "file://"+root, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, _, err = execute(t, "read", "--storage", "gcs://bucket", "hello.txt")
	assert.Error(t, err)
}

func TestMountRejectsBadMountPoint(t *testing.T) {
	cfg := writeConfig(t)

	_, _, err := execute(t, "mount", "--config", cfg)
	assert.Error(t, err)

	_, _, err = execute(t, "mount", "--config", cfg, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount point does not exist")
}
