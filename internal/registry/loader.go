// Package registry discovers model files available to the daemon.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from
// filenames. ID is the full filename; Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{ID: name, Name: name, Path: filepath.Join(abs, name)})
	}
	return models, nil
}

// Resolve finds a model by id or display name in a registry.
func Resolve(models []types.Model, id string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == id || m.Name == id {
			return m, true
		}
	}
	return types.Model{}, false
}
