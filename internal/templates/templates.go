// Package templates stores template documents on disk, one JSON file per
// template id.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilnworks/kiln/internal/definition"
)

// ErrNotFound is returned when no file exists for a template id.
var ErrNotFound = errors.New("template not found")

// FileStore persists templates under a single directory. The directory is
// created on first write.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

// Put writes the template document for id, replacing any existing one.
func (fs *FileStore) Put(id string, tpl definition.Template) error {
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}
	data, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template %s: %w", id, err)
	}
	if err := os.WriteFile(fs.path(id), data, 0o644); err != nil {
		return fmt.Errorf("write template %s: %w", id, err)
	}
	return nil
}

// Get reads the template stored under id.
func (fs *FileStore) Get(id string) (definition.Template, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return definition.Template{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return definition.Template{}, fmt.Errorf("read template %s: %w", id, err)
	}
	var tpl definition.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return definition.Template{}, fmt.Errorf("parse template %s: %w", id, err)
	}
	return tpl, nil
}

// Delete removes the template stored under id.
func (fs *FileStore) Delete(id string) error {
	if err := os.Remove(fs.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

// List returns every stored template id with its document, sorted by id.
// A missing directory is an empty store, not an error.
func (fs *FileStore) List() (map[string]definition.Template, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]definition.Template{}, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	out := make(map[string]definition.Template)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		tpl, err := fs.Get(id)
		if err != nil {
			return nil, err
		}
		out[id] = tpl
	}
	return out, nil
}

// IDs returns the sorted template ids without loading the documents.
func (fs *FileStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}
