package paths

import (
	"path/filepath"
	"testing"
)

func TestResolveUserLevel(t *testing.T) {
	p := Resolve(LevelUser, "/home/test", "/work/project")

	if p.ActiveSettingsPath != filepath.Join("/home/test", ".claude", "settings.json") {
		t.Errorf("unexpected active path: %s", p.ActiveSettingsPath)
	}
	if p.ContextsDir != filepath.Join("/home/test", ".claude", "settings") {
		t.Errorf("unexpected contexts dir: %s", p.ContextsDir)
	}
	if p.StatePath != filepath.Join(p.ContextsDir, ".cctx-state.json") {
		t.Errorf("unexpected state path: %s", p.StatePath)
	}
}

func TestResolveProjectLevel(t *testing.T) {
	p := Resolve(LevelProject, "/home/test", "/work/project")

	if p.ActiveSettingsPath != filepath.Join("/work/project", ".claude", "settings.json") {
		t.Errorf("unexpected active path: %s", p.ActiveSettingsPath)
	}
	if p.StatePath != filepath.Join("/work/project", ".claude", "settings", ".cctx-state.json") {
		t.Errorf("unexpected state path: %s", p.StatePath)
	}
}

func TestResolveLocalLevel(t *testing.T) {
	p := Resolve(LevelLocal, "/home/test", "/work/project")

	if p.ActiveSettingsPath != filepath.Join("/work/project", ".claude", "settings.local.json") {
		t.Errorf("unexpected active path: %s", p.ActiveSettingsPath)
	}
	// Distinct state file keeps local switches from clobbering project ones
	if p.StatePath != filepath.Join("/work/project", ".claude", "settings", ".cctx-state.local.json") {
		t.Errorf("unexpected state path: %s", p.StatePath)
	}
}

func TestProjectAndLocalShareContextsDir(t *testing.T) {
	project := Resolve(LevelProject, "/h", "/w")
	local := Resolve(LevelLocal, "/h", "/w")
	if project.ContextsDir != local.ContextsDir {
		t.Errorf("expected shared contexts dir, got %s vs %s", project.ContextsDir, local.ContextsDir)
	}
	if project.StatePath == local.StatePath {
		t.Error("project and local levels must not share a state file")
	}
}

func TestContextPath(t *testing.T) {
	p := Resolve(LevelUser, "/home/test", "")
	got := p.ContextPath("work")
	want := filepath.Join("/home/test", ".claude", "settings", "work.json")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelUser:    "user",
		LevelProject: "project",
		LevelLocal:   "local",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestUserSettingsPath(t *testing.T) {
	got := UserSettingsPath("/home/test")
	want := filepath.Join("/home/test", ".claude", "settings.json")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
