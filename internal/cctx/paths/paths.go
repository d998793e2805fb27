package paths

import "path/filepath"

// Directory and file name constants for Claude Code context storage.
const (
	ClaudeDirName         = ".claude"
	ContextsDirName       = "settings"
	SettingsFileName      = "settings.json"
	LocalSettingsFileName = "settings.local.json"
	StateFileName         = ".cctx-state.json"
	LocalStateFileName    = ".cctx-state.local.json"
	BackupDirName         = ".backups"
	ContextExt            = ".json"

	// HiddenPrefix marks files inside the contexts directory that are
	// never treated as contexts (state, backups, temp files).
	HiddenPrefix = "."
)

// Level selects which on-disk settings root an invocation operates on.
// It is always chosen explicitly by a flag, never inferred from the
// repository contents, so the same invocation targets the same files
// regardless of ambient state.
type Level int

const (
	// LevelUser targets ~/.claude/settings.json.
	LevelUser Level = iota
	// LevelProject targets ./.claude/settings.json.
	LevelProject
	// LevelLocal targets ./.claude/settings.local.json.
	LevelLocal
)

// String returns the display name of the level.
func (l Level) String() string {
	switch l {
	case LevelProject:
		return "project"
	case LevelLocal:
		return "local"
	default:
		return "user"
	}
}

// Paths holds the resolved filesystem locations for one settings level.
type Paths struct {
	// ActiveSettingsPath is the live file the consumed application reads.
	ActiveSettingsPath string
	// ContextsDir stores named context files as <name>.json siblings.
	ContextsDir string
	// StatePath is the hidden current/previous state file inside ContextsDir.
	StatePath string
	// BackupDir stores content-addressed backups of the active settings.
	BackupDir string
}

// Resolve maps a settings level to its concrete path set. Pure path
// construction: directory existence is the caller's responsibility.
func Resolve(level Level, homeDir, workDir string) Paths {
	root := filepath.Join(homeDir, ClaudeDirName)
	settingsFile := SettingsFileName
	stateFile := StateFileName

	switch level {
	case LevelProject:
		root = filepath.Join(workDir, ClaudeDirName)
	case LevelLocal:
		root = filepath.Join(workDir, ClaudeDirName)
		settingsFile = LocalSettingsFileName
		stateFile = LocalStateFileName
	}

	contextsDir := filepath.Join(root, ContextsDirName)
	return Paths{
		ActiveSettingsPath: filepath.Join(root, settingsFile),
		ContextsDir:        contextsDir,
		StatePath:          filepath.Join(contextsDir, stateFile),
		BackupDir:          filepath.Join(contextsDir, BackupDirName),
	}
}

// ContextPath returns the file path for a named context.
func (p Paths) ContextPath(name string) string {
	return filepath.Join(p.ContextsDir, name+ContextExt)
}

// UserSettingsPath returns the user-level active settings path. The merge
// engine uses it to resolve the literal "user" source regardless of the
// level the invocation runs at.
func UserSettingsPath(homeDir string) string {
	return filepath.Join(homeDir, ClaudeDirName, SettingsFileName)
}
