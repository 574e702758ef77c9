package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IsDirectory reports whether path names a directory. The root "" is a directory.
func IsDirectory(path string) bool {
	return path == "" || strings.HasSuffix(path, "/")
}

// ToDirectory appends the trailing slash that marks path as a directory.
func ToDirectory(path string) string {
	if IsDirectory(path) {
		return path
	}
	return path + "/"
}

// SplitParent splits path into its parent directory (with trailing slash, "" for
// top-level entries) and the entry name. Directory names keep their trailing slash:
//
//	SplitParent("docs/a.txt")   // "docs/", "a.txt"
//	SplitParent("docs/sub/")    // "docs/", "sub/"
//	SplitParent("a.txt")        // "", "a.txt"
func SplitParent(path string) (string, string) {
	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "", path
	}
	return path[:i+1], path[i+1:]
}

// ValidatePath validates a file system path: slash separated, relative to the root,
// no "." or ".." segments and no empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}
	for _, segment := range strings.Split(strings.TrimSuffix(path, "/"), "/") {
		switch segment {
		case "":
			return fmt.Errorf("path contains empty segment: %s", path)
		case ".", "..":
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// SecureJoin safely joins path elements and ensures the result stays within the base directory.
// Unlike filepath.Join, this function validates that the result doesn't escape the base through
// directory traversal.
//
// Example usage:
//
//	localPath, err := SecureJoin(root, filepath.FromSlash(path))
//	if err != nil {
//		return fmt.Errorf("invalid path combination: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) &&
		fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
