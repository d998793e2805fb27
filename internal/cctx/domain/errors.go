package domain

import "errors"

// Exported error variables allow callers to use errors.Is() for error checking.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidFormat      = errors.New("file is not valid JSON")
	ErrNameConflict       = errors.New("a context with that name already exists")
	ErrCannotDeleteActive = errors.New("cannot delete the active context")
	ErrNoActiveConfig     = errors.New("no active settings file to snapshot")
	ErrNoPreviousContext  = errors.New("no previous context")
	ErrNoMergeRecord      = errors.New("no matching merge record found")
)

// Name validation errors.
var (
	ErrNameEmpty        = errors.New("context name cannot be empty")
	ErrNameDash         = errors.New("context name cannot be '-'")
	ErrNameDot          = errors.New("context name cannot be '.' or '..'")
	ErrNamePathSep      = errors.New("context name cannot contain path separators")
	ErrNameNonPrintable = errors.New("context name contains non-printable characters")
	ErrNameInvalidChars = errors.New("context name contains invalid characters (<>:\"|?*)")
	ErrNameReserved     = errors.New("context name is a reserved system filename")
	ErrNameNullByte     = errors.New("context name contains null byte")
)
