package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Storage provides low-level file operations with security validations.
// Every mutation goes through a temp-file-then-rename sequence so that a
// crash mid-write cannot leave a truncated file behind; the rename is the
// single commit point.
type Storage struct {
	fs afero.Fs
}

// New creates a new Storage instance.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// FileSystem returns the underlying filesystem.
func (s *Storage) FileSystem() afero.Fs {
	return s.fs
}

// ValidatePathSafety checks that the path is not a symlink, preventing symlink attacks.
// It returns nil if the path doesn't exist or is a regular file/directory.
func (s *Storage) ValidatePathSafety(path string) error {
	if lstater, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil // Non-existent paths are safe to write to
			}
			return fmt.Errorf("failed to check path: %w", err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("refusing to operate on symlink: %s", path)
		}
	}
	// If Lstat is not available, fall through (in-memory filesystems
	// don't support symlinks anyway)
	return nil
}

// WriteFile atomically replaces the file at path with data.
func (s *Storage) WriteFile(path string, data []byte) error {
	if err := s.ValidatePathSafety(path); err != nil {
		return fmt.Errorf("validate destination: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Temp file in the same directory enables atomic rename
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// CopyFile copies a file from src to dst, atomically replacing the destination.
func (s *Storage) CopyFile(src, dst string) (err error) {
	if err := s.ValidatePathSafety(src); err != nil {
		return fmt.Errorf("validate source: %w", err)
	}
	if err := s.ValidatePathSafety(dst); err != nil {
		return fmt.Errorf("validate destination: %w", err)
	}

	source, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()

	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := dst + ".tmp"
	dest, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, copyErr := io.Copy(dest, source)
	closeErr := dest.Close()

	if copyErr != nil || closeErr != nil {
		s.fs.Remove(tmp)
		if copyErr != nil {
			return fmt.Errorf("copy data: %w", copyErr)
		}
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := s.fs.Rename(tmp, dst); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

// ReadFile reads the entire file.
func (s *Storage) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// Exists checks if a path exists.
func (s *Storage) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// Stat returns file information.
func (s *Storage) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// MkdirAll creates a directory with secure permissions.
func (s *Storage) MkdirAll(path string) error {
	return s.fs.MkdirAll(path, 0o700)
}

// ReadDir reads directory contents.
func (s *Storage) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, path)
}

// Remove deletes a file.
func (s *Storage) Remove(path string) error {
	return s.fs.Remove(path)
}

// Rename moves a file into place.
func (s *Storage) Rename(oldpath, newpath string) error {
	return s.fs.Rename(oldpath, newpath)
}

// Chtimes changes file access and modification times.
func (s *Storage) Chtimes(path string, atime, mtime time.Time) error {
	return s.fs.Chtimes(path, atime, mtime)
}
