// Package contexts implements CRUD over named context files stored as
// sibling JSON documents under one contexts directory.
package contexts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/example/cctx/internal/cctx/domain"
	"github.com/example/cctx/internal/cctx/paths"
	"github.com/example/cctx/internal/cctx/storage"
)

// Repository manages the context files of one resolved settings level.
type Repository struct {
	storage *storage.Storage
	paths   paths.Paths
}

// New creates a Repository scoped to the given resolved paths.
func New(storage *storage.Storage, p paths.Paths) *Repository {
	return &Repository{storage: storage, paths: p}
}

// Path returns the file path for a named context.
func (r *Repository) Path(name string) string {
	return r.paths.ContextPath(name)
}

// List returns the sorted names of all stored contexts. Hidden files (state,
// backups) and files without the context extension are excluded. A missing
// contexts directory yields an empty list.
func (r *Repository) List() ([]string, error) {
	entries, err := r.storage.ReadDir(r.paths.ContextsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read contexts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, paths.HiddenPrefix) {
			continue
		}
		if !strings.HasSuffix(name, paths.ContextExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, paths.ContextExt))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a context with the given name is stored.
func (r *Repository) Exists(name string) (bool, error) {
	return r.storage.Exists(r.Path(name))
}

// ReadRaw returns the raw bytes of a stored context.
func (r *Repository) ReadRaw(name string) ([]byte, error) {
	data, err := r.storage.ReadFile(r.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("context %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read context %q: %w", name, err)
	}
	return data, nil
}

// Read parses a stored context into a document.
func (r *Repository) Read(name string) (map[string]any, error) {
	data, err := r.ReadRaw(name)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("context %q: %w: %v", name, domain.ErrInvalidFormat, err)
	}
	return doc, nil
}

// Write serializes doc as pretty-printed JSON and atomically replaces the
// context file, creating the contexts directory if absent. Overwrite is
// unconditional; callers wanting create-if-absent semantics check Exists
// first.
func (r *Repository) Write(name string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize context %q: %w", name, err)
	}
	return r.WriteRaw(name, append(data, '\n'))
}

// WriteRaw atomically replaces the context file with data verbatim.
func (r *Repository) WriteRaw(name string, data []byte) error {
	if err := r.storage.WriteFile(r.Path(name), data); err != nil {
		return fmt.Errorf("failed to write context %q: %w", name, err)
	}
	return nil
}

// Snapshot copies the active settings file into a context named name.
// Overwriting an existing context of the same name is how re-snapshotting
// works, so no conflict check is made.
func (r *Repository) Snapshot(name string) error {
	exists, err := r.storage.Exists(r.paths.ActiveSettingsPath)
	if err != nil {
		return fmt.Errorf("failed to inspect active settings: %w", err)
	}
	if !exists {
		return domain.ErrNoActiveConfig
	}
	if err := r.storage.CopyFile(r.paths.ActiveSettingsPath, r.Path(name)); err != nil {
		return fmt.Errorf("failed to snapshot active settings: %w", err)
	}
	return nil
}

// Delete removes a stored context file. Protecting the active context is the
// caller's responsibility; the repository has no notion of switch state.
func (r *Repository) Delete(name string) error {
	exists, err := r.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("context %q: %w", name, domain.ErrNotFound)
	}
	if err := r.storage.Remove(r.Path(name)); err != nil {
		return fmt.Errorf("failed to delete context %q: %w", name, err)
	}
	return nil
}

// Rename moves a context from old to new.
func (r *Repository) Rename(old, new string) error {
	exists, err := r.Exists(old)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("context %q: %w", old, domain.ErrNotFound)
	}
	conflict, err := r.Exists(new)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("context %q: %w", new, domain.ErrNameConflict)
	}
	if err := r.storage.Rename(r.Path(old), r.Path(new)); err != nil {
		return fmt.Errorf("failed to rename context %q: %w", old, err)
	}
	return nil
}
