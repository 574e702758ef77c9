package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestPersistent(t *testing.T, dir string, startEmpty bool) *PersistentCache {
	t.Helper()
	c, err := NewPersistentCache(&PersistentCacheConfig{
		Directory:    dir,
		Compression:  true,
		SyncInterval: time.Hour,
	}, startEmpty, nil)
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	return c
}

// TestNewPersistentCache tests configuration validation
func TestNewPersistentCache(t *testing.T) {
	if _, err := NewPersistentCache(nil, false, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewPersistentCache(&PersistentCacheConfig{}, false, nil); err == nil {
		t.Error("expected error for empty directory")
	}

	c := newTestPersistent(t, t.TempDir(), false)
	defer c.Close()
	if c.config.IndexFile != "index.cbor" {
		t.Errorf("expected default index file, got %s", c.config.IndexFile)
	}
}

// TestPersistentCache_SetGet tests round trips including compressed values
func TestPersistentCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := newTestPersistent(t, t.TempDir(), false)
	defer c.Close()

	small := []byte("hello")
	large := bytes.Repeat([]byte("compressible "), 200)

	if err := c.SetMulti(ctx, map[string][]byte{"small": small, "large": large}); err != nil {
		t.Fatalf("SetMulti: %v", err)
	}

	got, err := c.GetMulti(ctx, []string{"small", "large", "missing"}).Get()
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if !bytes.Equal(got["small"], small) || !bytes.Equal(got["large"], large) {
		t.Error("GetMulti returned wrong content")
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key should be absent")
	}

	if !c.index["large"].Compressed {
		t.Error("large value should be stored compressed")
	}
	if c.index["small"].Compressed {
		t.Error("small value should be stored uncompressed")
	}
	if c.Size() >= int64(len(large)+len(small)) {
		t.Errorf("Size = %d, expected compression to shrink storage", c.Size())
	}
}

// TestPersistentCache_Reopen tests that state survives restarts unless startEmpty
func TestPersistentCache_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newTestPersistent(t, dir, false)
	if err := c.Set(ctx, "docs/a.txt", []byte("A")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := newTestPersistent(t, dir, false)
	l, _ := reopened.Get(ctx, "docs/a.txt").Get()
	if !l.Found || string(l.Value) != "A" {
		t.Errorf("reopened Get = %+v, want A", l)
	}
	_ = reopened.Close()

	wiped := newTestPersistent(t, dir, true)
	defer wiped.Close()
	if l, _ := wiped.Get(ctx, "docs/a.txt").Get(); l.Found {
		t.Error("startEmpty should discard persisted entries")
	}
}

// TestPersistentCache_Corruption tests that tampered files read as misses
func TestPersistentCache_Corruption(t *testing.T) {
	ctx := context.Background()
	c := newTestPersistent(t, t.TempDir(), false)
	defer c.Close()

	_ = c.Set(ctx, "k", []byte("original"))
	path := c.filePath(c.index["k"])
	if err := os.WriteFile(path, []byte("tampered"), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if l, _ := c.Get(ctx, "k").Get(); l.Found {
		t.Error("expected checksum mismatch to be reported as a miss")
	}
	if _, ok := c.index["k"]; ok {
		t.Error("corrupt entry should be dropped from the index")
	}
}

// TestPersistentCache_Eviction tests size-bounded eviction
func TestPersistentCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c, err := NewPersistentCache(&PersistentCacheConfig{
		Directory:    t.TempDir(),
		MaxSize:      10,
		SyncInterval: time.Hour,
	}, false, nil)
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	defer c.Close()

	_ = c.Set(ctx, "a", []byte("123456"))
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "b", []byte("789012"))

	if c.Size() > 10 {
		t.Errorf("Size = %d, exceeds max", c.Size())
	}
	if l, _ := c.Get(ctx, "a").Get(); l.Found {
		t.Error("expected oldest entry to be evicted")
	}
}

// TestPersistentCache_Closed tests writes after Close
func TestPersistentCache_Closed(t *testing.T) {
	c := newTestPersistent(t, t.TempDir(), false)
	_ = c.Close()
	if err := c.Set(context.Background(), "k", []byte("v")); err == nil {
		t.Error("expected error writing to closed cache")
	}
}

// TestPersistentFactory tests namespacing and the memory front
func TestPersistentFactory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	f := &PersistentFactory{
		Config: PersistentCacheConfig{Directory: root, SyncInterval: time.Hour},
		Memory: &CacheConfig{MaxEntries: 10},
	}
	defer f.Close()

	reads, err := f.Create(Namespace("fs-a", "read"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stats, err := f.Create(Namespace("fs-a", "stat"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_ = reads.Set(ctx, "k", []byte("read"))
	if l, _ := stats.Get(ctx, "k").Get(); l.Found {
		t.Error("namespaces must not share entries")
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 2 {
		t.Errorf("expected one directory per namespace, got %d", len(entries))
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "/") || filepath.Base(e.Name()) != e.Name() {
			t.Errorf("unexpected namespace directory %q", e.Name())
		}
	}
}

// TestMemoryFactory tests namespace sharing and startEmpty
func TestMemoryFactory(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFactory(CacheConfig{MaxEntries: 10})
	defer f.Close()

	first, _ := f.Create("ns", false)
	_ = first.Set(ctx, "k", []byte("v"))

	second, _ := f.Create("ns", false)
	if l, _ := second.Get(ctx, "k").Get(); !l.Found {
		t.Error("startEmpty=false should reuse the namespace's store")
	}

	fresh, _ := f.Create("ns", true)
	if l, _ := fresh.Get(ctx, "k").Get(); l.Found {
		t.Error("startEmpty=true should return an empty store")
	}
}

type sample struct {
	Name     string            `cbor:"name"`
	Children []string          `cbor:"children"`
	Versions map[string]string `cbor:"versions"`
}

// TestTyped tests the CBOR-encoded view over a byte store
func TestTyped(t *testing.T) {
	ctx := context.Background()
	raw := NewLRUCache[[]byte](nil)
	defer raw.Close()
	typed := NewTyped[sample](raw)

	in := sample{Name: "docs/", Children: []string{"a.txt", "sub/"}, Versions: map[string]string{"a.txt": "v1"}}
	if err := typed.Set(ctx, "docs/", in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	l, err := typed.Get(ctx, "docs/").Get()
	if err != nil || !l.Found {
		t.Fatalf("Get: %+v, %v", l, err)
	}
	if l.Value.Name != in.Name || len(l.Value.Children) != 2 || l.Value.Versions["a.txt"] != "v1" {
		t.Errorf("Get = %+v, want %+v", l.Value, in)
	}

	_ = raw.Set(ctx, "garbage", []byte{0xff, 0x00})
	got, _ := typed.GetMulti(ctx, []string{"docs/", "garbage"}).Get()
	if _, ok := got["garbage"]; ok {
		t.Error("undecodable values should be treated as absent")
	}
	if _, ok := got["docs/"]; !ok {
		t.Error("expected docs/ in GetMulti result")
	}
}
