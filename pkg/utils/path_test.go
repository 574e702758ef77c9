package utils

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestIsDirectory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"", true},
		{"docs/", true},
		{"docs/sub/", true},
		{"docs/a.txt", false},
		{"a.txt", false},
	}

	for _, tt := range tests {
		if got := IsDirectory(tt.path); got != tt.want {
			t.Errorf("IsDirectory(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if got := ToDirectory("docs"); got != "docs/" {
		t.Errorf("ToDirectory(docs) = %q", got)
	}
	if got := ToDirectory("docs/"); got != "docs/" {
		t.Errorf("ToDirectory(docs/) = %q", got)
	}
}

func TestSplitParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		parent string
		name   string
	}{
		{"a.txt", "", "a.txt"},
		{"docs/", "", "docs/"},
		{"docs/a.txt", "docs/", "a.txt"},
		{"docs/sub/", "docs/", "sub/"},
		{"extensions/alarms.html", "extensions/", "alarms.html"},
		{"a/b/c/d.txt", "a/b/c/", "d.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			parent, name := SplitParent(tt.path)
			if parent != tt.parent || name != tt.name {
				t.Errorf("SplitParent(%q) = (%q, %q), want (%q, %q)",
					tt.path, parent, name, tt.parent, tt.name)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		errContains string
	}{
		{name: "root", path: ""},
		{name: "file", path: "docs/a.txt"},
		{name: "directory", path: "docs/sub/"},
		{name: "absolute", path: "/etc/passwd", errContains: "absolute paths not allowed"},
		{name: "traversal", path: "docs/../../etc", errContains: "directory traversal"},
		{name: "dot segment", path: "./docs", errContains: "directory traversal"},
		{name: "double slash", path: "docs//a.txt", errContains: "empty segment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidatePath(%q) unexpected error: %v", tt.path, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath(%q) = %v, want error containing %q", tt.path, err, tt.errContains)
			}
		})
	}
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "root")

	got, err := SecureJoin(base, "docs", "a.txt")
	if err != nil {
		t.Fatalf("SecureJoin unexpected error: %v", err)
	}
	if want := filepath.Join(base, "docs", "a.txt"); got != want {
		t.Errorf("SecureJoin = %q, want %q", got, want)
	}

	if _, err := SecureJoin(base, "..", "escape"); err == nil {
		t.Error("SecureJoin should reject escaping paths")
	}
	if _, err := SecureJoin(""); err == nil {
		t.Error("SecureJoin should reject empty base")
	}
}
