// Package cctx coordinates the context repository, switch state, merge
// engine and backups behind the operations the CLI exposes.
package cctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/example/cctx/internal/cctx/backup"
	"github.com/example/cctx/internal/cctx/contexts"
	"github.com/example/cctx/internal/cctx/domain"
	"github.com/example/cctx/internal/cctx/merge"
	"github.com/example/cctx/internal/cctx/paths"
	"github.com/example/cctx/internal/cctx/state"
	"github.com/example/cctx/internal/cctx/storage"
	"github.com/example/cctx/internal/cctx/validator"
)

// CurrentTarget is the merge target selector meaning "the active settings
// file" rather than a named context.
const CurrentTarget = "current"

// UserSource is the merge source selector for the user-level settings file.
const UserSource = "user"

// Manager ties the per-level components together. All state it touches is
// derived from the resolved paths passed in at construction, never read from
// environment globals mid-operation.
type Manager struct {
	storage *storage.Storage
	paths   paths.Paths
	level   paths.Level
	homeDir string

	repo    *contexts.Repository
	states  *state.Store
	backups *backup.Service
	names   *validator.Validator

	now    func() time.Time
	logger *slog.Logger
}

// NewManager builds a Manager for one settings level. A nil logger discards
// log output.
func NewManager(fs afero.Fs, level paths.Level, homeDir, workDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st := storage.New(fs)
	p := paths.Resolve(level, homeDir, workDir)
	return &Manager{
		storage: st,
		paths:   p,
		level:   level,
		homeDir: homeDir,
		repo:    contexts.New(st, p),
		states:  state.NewStore(st, p.StatePath),
		backups: backup.New(st, p.BackupDir, logger),
		names:   validator.New(),
		now:     time.Now,
		logger:  logger,
	}
}

// SetNow allows overriding the clock for testing.
func (m *Manager) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
	m.backups.SetNow(now)
}

// Level returns the settings level this manager operates on.
func (m *Manager) Level() paths.Level {
	return m.level
}

// Paths returns the resolved paths this manager operates on.
func (m *Manager) Paths() paths.Paths {
	return m.paths
}

// ListContexts returns the sorted names of stored contexts.
func (m *Manager) ListContexts() ([]string, error) {
	return m.repo.List()
}

// CurrentContext returns the active context name, or "" when unset.
func (m *Manager) CurrentContext() string {
	return m.states.Load().Current
}

// PreviousContext returns the previously active context name, or "".
func (m *Manager) PreviousContext() string {
	return m.states.Load().Previous
}

// Switch activates the named context: its content replaces the active
// settings file verbatim and the switch state rotates. The outgoing active
// file is backed up first.
func (m *Manager) Switch(name string) error {
	exists, err := m.repo.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("context %q: %w", name, domain.ErrNotFound)
	}

	if err := m.backups.BackupFile(m.paths.ActiveSettingsPath); err != nil {
		return err
	}
	if err := m.storage.CopyFile(m.repo.Path(name), m.paths.ActiveSettingsPath); err != nil {
		return fmt.Errorf("failed to apply context %q: %w", name, err)
	}

	s := m.states.Load()
	s.SetCurrent(name)
	if err := m.states.Save(s); err != nil {
		return err
	}

	m.logger.Info("switched context", "name", name, "level", m.level.String())
	return nil
}

// SwitchToPrevious re-activates the previously active context and returns
// its name.
func (m *Manager) SwitchToPrevious() (string, error) {
	s := m.states.Load()
	if s.Previous == "" {
		return "", domain.ErrNoPreviousContext
	}
	if err := m.Switch(s.Previous); err != nil {
		return "", err
	}
	return m.states.Load().Current, nil
}

// Unset removes the active settings file (after backing it up) and clears
// the current context, leaving previous untouched.
func (m *Manager) Unset() error {
	exists, err := m.storage.Exists(m.paths.ActiveSettingsPath)
	if err != nil {
		return err
	}
	if exists {
		if err := m.backups.BackupFile(m.paths.ActiveSettingsPath); err != nil {
			return err
		}
		if err := m.storage.Remove(m.paths.ActiveSettingsPath); err != nil {
			return fmt.Errorf("failed to remove active settings: %w", err)
		}
	}

	s := m.states.Load()
	s.UnsetCurrent()
	return m.states.Save(s)
}

// Create snapshots the active settings file into a context named name.
// Re-snapshotting over an existing context is allowed.
func (m *Manager) Create(name string) error {
	normalized, err := m.names.NormalizeName(name)
	if err != nil {
		return err
	}
	return m.repo.Snapshot(normalized)
}

// Delete removes a stored context. The active context cannot be deleted;
// unset it first. Switch state is never altered by a delete, so a dangling
// previous pointer is possible and handled gracefully on lookup.
func (m *Manager) Delete(name string) error {
	if m.states.Load().Current == name {
		return fmt.Errorf("context %q: %w", name, domain.ErrCannotDeleteActive)
	}
	return m.repo.Delete(name)
}

// Rename moves a context to a new name. When the switch state referenced the
// old name, it follows to the new one as part of the same operation.
func (m *Manager) Rename(old, new string) error {
	normalized, err := m.names.NormalizeName(new)
	if err != nil {
		return err
	}
	if err := m.repo.Rename(old, normalized); err != nil {
		return err
	}

	s := m.states.Load()
	updated := false
	if s.Current == old {
		s.Current = normalized
		updated = true
	}
	if s.Previous == old {
		s.Previous = normalized
		updated = true
	}
	if updated {
		return m.states.Save(s)
	}
	return nil
}

// Render returns the pretty-printed content of a context with the reserved
// merge-history key filtered out. An empty name defaults to the current
// context.
func (m *Manager) Render(name string) (string, error) {
	resolved, err := m.defaultToCurrent(name)
	if err != nil {
		return "", err
	}
	doc, err := m.repo.Read(resolved)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(merge.StripHistory(doc), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// Import stores JSON read from data as a new context. Unlike Create, import
// rejects existing names.
func (m *Manager) Import(name string, data []byte) error {
	normalized, err := m.names.NormalizeName(name)
	if err != nil {
		return err
	}
	exists, err := m.repo.Exists(normalized)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("context %q: %w", normalized, domain.ErrNameConflict)
	}
	if !json.Valid(data) {
		return fmt.Errorf("context %q: %w", normalized, domain.ErrInvalidFormat)
	}
	return m.repo.WriteRaw(normalized, data)
}

// ContextPath returns the file path of a named context, for collaborators
// like the editor invocation. An empty name defaults to the current context.
func (m *Manager) ContextPath(name string) (string, error) {
	resolved, err := m.defaultToCurrent(name)
	if err != nil {
		return "", err
	}
	exists, err := m.repo.Exists(resolved)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("context %q: %w", resolved, domain.ErrNotFound)
	}
	return m.repo.Path(resolved), nil
}

// Merge combines settings from source into target and returns the recorded
// merge. target is a context name or CurrentTarget; source is UserSource,
// a context name at this level, or a filesystem path. With full false only
// the permission lists are merged.
func (m *Manager) Merge(target, source string, full bool) (merge.Record, error) {
	targetPath, err := m.resolveTargetPath(target)
	if err != nil {
		return merge.Record{}, err
	}
	targetDoc, err := m.readDocument(targetPath)
	if err != nil {
		return merge.Record{}, err
	}

	sourcePath, err := m.resolveSourcePath(source)
	if err != nil {
		return merge.Record{}, err
	}
	sourceDoc, err := m.readDocument(sourcePath)
	if err != nil {
		return merge.Record{}, err
	}

	record, err := merge.Apply(targetDoc, sourceDoc, source, full, m.now())
	if err != nil {
		return merge.Record{}, err
	}
	if err := m.writeDocument(targetPath, targetDoc); err != nil {
		return merge.Record{}, err
	}

	m.logger.Info("merged settings",
		"target", target,
		"source", source,
		"full", full,
		"added", len(record.KeysAdded))
	return record, nil
}

// Unmerge reverses the most recent merge from source into target that has a
// matching full flag. Removal is by value: a rule that was independently
// reintroduced after the tracked merge is still removed.
func (m *Manager) Unmerge(target, source string, full bool) (merge.Record, error) {
	targetPath, err := m.resolveTargetPath(target)
	if err != nil {
		return merge.Record{}, err
	}
	targetDoc, err := m.readDocument(targetPath)
	if err != nil {
		return merge.Record{}, err
	}

	record, err := merge.Revert(targetDoc, source, full)
	if err != nil {
		return merge.Record{}, err
	}
	if err := m.writeDocument(targetPath, targetDoc); err != nil {
		return merge.Record{}, err
	}

	m.logger.Info("unmerged settings",
		"target", target,
		"source", source,
		"full", full,
		"removed", len(record.KeysAdded))
	return record, nil
}

// MergeHistory returns the merge records of a target, oldest first. An empty
// name defaults to the active settings file.
func (m *Manager) MergeHistory(target string) ([]merge.Record, error) {
	if target == "" {
		target = CurrentTarget
	}
	targetPath, err := m.resolveTargetPath(target)
	if err != nil {
		return nil, err
	}
	doc, err := m.readDocument(targetPath)
	if err != nil {
		return nil, err
	}
	return merge.History(doc)
}

// PruneBackups removes backups of the active settings file older than the
// given duration, returning the number deleted.
func (m *Manager) PruneBackups(olderThan time.Duration) (int, error) {
	return m.backups.PruneBackups(olderThan)
}

// HasProjectContexts reports whether the working directory carries
// project-level contexts, for the hint shown when listing at user level.
func HasProjectContexts(fs afero.Fs, workDir string) bool {
	p := paths.Resolve(paths.LevelProject, "", workDir)
	names, err := contexts.New(storage.New(fs), p).List()
	return err == nil && len(names) > 0
}

// HasLocalContexts reports whether the working directory carries a
// local-level settings file.
func HasLocalContexts(fs afero.Fs, workDir string) bool {
	p := paths.Resolve(paths.LevelLocal, "", workDir)
	exists, err := afero.Exists(fs, p.ActiveSettingsPath)
	return err == nil && exists
}

func (m *Manager) defaultToCurrent(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	current := m.states.Load().Current
	if current == "" {
		return "", fmt.Errorf("no current context set: %w", domain.ErrNotFound)
	}
	return current, nil
}

// resolveTargetPath maps a merge target selector to a concrete file path.
func (m *Manager) resolveTargetPath(target string) (string, error) {
	if target == CurrentTarget {
		exists, err := m.storage.Exists(m.paths.ActiveSettingsPath)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", domain.ErrNoActiveConfig
		}
		return m.paths.ActiveSettingsPath, nil
	}

	exists, err := m.repo.Exists(target)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("context %q: %w", target, domain.ErrNotFound)
	}
	return m.repo.Path(target), nil
}

// resolveSourcePath maps a merge source selector to a concrete file path:
// the literal "user" means the user-level settings file, any other value is
// first tried as a context name at this level and then treated as a
// filesystem path.
func (m *Manager) resolveSourcePath(source string) (string, error) {
	if source == UserSource {
		path := paths.UserSettingsPath(m.homeDir)
		exists, err := m.storage.Exists(path)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("user settings file %q: %w", path, domain.ErrNotFound)
		}
		return path, nil
	}

	if exists, err := m.repo.Exists(source); err != nil {
		return "", err
	} else if exists {
		return m.repo.Path(source), nil
	}

	exists, err := m.storage.Exists(source)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("source %q: %w", source, domain.ErrNotFound)
	}
	return source, nil
}

func (m *Manager) readDocument(path string) (map[string]any, error) {
	data, err := m.storage.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, domain.ErrInvalidFormat, err)
	}
	return doc, nil
}

func (m *Manager) writeDocument(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return m.storage.WriteFile(path, append(data, '\n'))
}

