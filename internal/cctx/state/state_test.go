package state

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/example/cctx/internal/cctx/domain"
	"github.com/example/cctx/internal/cctx/storage"
)

const statePath = "/home/test/.claude/settings/.cctx-state.json"

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewStore(storage.New(fs), statePath), fs
}

func TestLoadMissingFileReturnsZeroState(t *testing.T) {
	store, _ := newTestStore(t)
	s := store.Load()
	if s.Current != "" || s.Previous != "" {
		t.Errorf("expected zero state, got %+v", s)
	}
}

func TestLoadCorruptFileReturnsZeroState(t *testing.T) {
	store, fs := newTestStore(t)
	if err := afero.WriteFile(fs, statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Corruption must never block other commands
	s := store.Load()
	if s.Current != "" || s.Previous != "" {
		t.Errorf("expected zero state, got %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Save(State{Current: "work", Previous: "personal"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s := store.Load()
	if s.Current != "work" || s.Previous != "personal" {
		t.Errorf("round trip mismatch: %+v", s)
	}
}

func TestSaveWritesNullForUnsetFields(t *testing.T) {
	store, fs := newTestStore(t)
	if err := store.Save(State{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := afero.ReadFile(fs, statePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"current": null`) {
		t.Errorf("expected explicit null for current, got %s", data)
	}
}

func TestLoadAcceptsNullFields(t *testing.T) {
	store, fs := newTestStore(t)
	raw := `{"current": null, "previous": "old"}`
	if err := afero.WriteFile(fs, statePath, []byte(raw), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	s := store.Load()
	if s.Current != "" || s.Previous != "old" {
		t.Errorf("unexpected state: %+v", s)
	}
}

func TestSetCurrentRotatesPrevious(t *testing.T) {
	var s State
	s.SetCurrent("work")
	if s.Current != "work" || s.Previous != "" {
		t.Fatalf("after first set: %+v", s)
	}
	s.SetCurrent("personal")
	if s.Current != "personal" || s.Previous != "work" {
		t.Fatalf("after second set: %+v", s)
	}
}

func TestSetCurrentSameNameKeepsPrevious(t *testing.T) {
	s := State{Current: "work", Previous: "personal"}
	s.SetCurrent("work")
	if s.Previous != "personal" {
		t.Errorf("re-activating current must not clobber previous: %+v", s)
	}
}

func TestUnsetCurrentLeavesPrevious(t *testing.T) {
	s := State{Current: "work", Previous: "personal"}
	s.UnsetCurrent()
	if s.Current != "" {
		t.Errorf("current should be cleared: %+v", s)
	}
	if s.Previous != "personal" {
		t.Errorf("previous must survive an unset: %+v", s)
	}
}

func TestSwap(t *testing.T) {
	s := State{Current: "a", Previous: "b"}
	if err := s.Swap(); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if s.Current != "b" || s.Previous != "a" {
		t.Errorf("unexpected state after swap: %+v", s)
	}
}

func TestSwapWithoutPrevious(t *testing.T) {
	s := State{Current: "a"}
	err := s.Swap()
	if !errors.Is(err, domain.ErrNoPreviousContext) {
		t.Errorf("expected ErrNoPreviousContext, got %v", err)
	}
}
