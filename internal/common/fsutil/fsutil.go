// Package fsutil holds small filesystem helpers shared across chatd packages.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/.local/share/chatd
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// EnsureDir expands and creates path (including parents) and returns the
// expanded form.
func EnsureDir(path string) (string, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	return expanded, nil
}
