// Package state persists which context is active at a settings level and
// which one was active before it.
package state

import (
	"encoding/json"

	"github.com/example/cctx/internal/cctx/domain"
	"github.com/example/cctx/internal/cctx/storage"
)

// State records the current and previous context names. Either field may be
// empty; neither is guaranteed to reference an existing context file, since
// contexts can be deleted after being recorded.
type State struct {
	Current  string
	Previous string
}

// wireState is the on-disk shape: {"current": string|null, "previous": string|null}.
type wireState struct {
	Current  *string `json:"current"`
	Previous *string `json:"previous"`
}

// SetCurrent makes name the current context, rotating the old current into
// previous. Re-activating the already-current context leaves previous alone.
func (s *State) SetCurrent(name string) {
	if s.Current != "" && s.Current != name {
		s.Previous = s.Current
	}
	s.Current = name
}

// UnsetCurrent clears the current context. Previous is left untouched so a
// later "switch to previous" still works.
func (s *State) UnsetCurrent() {
	s.Current = ""
}

// Swap exchanges current and previous. It fails when no previous context has
// been recorded.
func (s *State) Swap() error {
	if s.Previous == "" {
		return domain.ErrNoPreviousContext
	}
	s.Current, s.Previous = s.Previous, s.Current
	return nil
}

// Store reads and writes the hidden state file inside a contexts directory.
type Store struct {
	storage *storage.Storage
	path    string
}

// NewStore creates a state Store persisting at path.
func NewStore(storage *storage.Storage, path string) *Store {
	return &Store{storage: storage, path: path}
}

// Load returns the persisted state. A missing or malformed state file yields
// the zero state: losing switch history is recoverable and must never block
// context management.
func (st *Store) Load() State {
	data, err := st.storage.ReadFile(st.path)
	if err != nil {
		return State{}
	}
	var wire wireState
	if err := json.Unmarshal(data, &wire); err != nil {
		return State{}
	}
	var s State
	if wire.Current != nil {
		s.Current = *wire.Current
	}
	if wire.Previous != nil {
		s.Previous = *wire.Previous
	}
	return s
}

// Save atomically replaces the state file.
func (st *Store) Save(s State) error {
	var wire wireState
	if s.Current != "" {
		wire.Current = &s.Current
	}
	if s.Previous != "" {
		wire.Previous = &s.Previous
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return err
	}
	return st.storage.WriteFile(st.path, append(data, '\n'))
}
