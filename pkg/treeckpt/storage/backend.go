// Package storage provides the byte-oriented backends checkpoints are written to.
//
// A Backend is a minimal hierarchical file store: the codec only needs to
// create directories, write and read whole files, list a directory, rename
// a directory atomically, and remove a subtree. Paths are slash-separated.
package storage

import (
	"errors"
	"time"
)

// Backend persists checkpoint files.
// Implementations must be safe for concurrent use.
type Backend interface {
	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// WriteFile stores data at path, replacing any existing file.
	// The parent directory must exist. The data is durable when WriteFile returns.
	WriteFile(path string, data []byte) error

	// ReadFile returns the contents of a file.
	// Returns ErrNotExist if the file doesn't exist.
	ReadFile(path string) ([]byte, error)

	// Stat returns metadata for a file or directory.
	// Returns ErrNotExist if nothing exists at path.
	Stat(path string) (Entry, error)

	// List returns the immediate children of a directory, sorted by name.
	// Returns ErrNotExist if the directory doesn't exist.
	List(dir string) ([]Entry, error)

	// Rename atomically moves a file or directory tree.
	// Fails if newPath already exists.
	Rename(oldPath, newPath string) error

	// RemoveAll deletes path and everything below it.
	// Returns nil if path doesn't exist.
	RemoveAll(path string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Entry describes a file or directory without loading its contents.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Sentinel errors for backend operations.
var (
	// ErrNotExist indicates nothing exists at a path.
	ErrNotExist = errors.New("path does not exist")

	// ErrExist indicates a rename destination is occupied.
	ErrExist = errors.New("path already exists")

	// ErrBackendClosed indicates the backend has been closed.
	ErrBackendClosed = errors.New("storage backend closed")
)

// Exists reports whether anything exists at path.
func Exists(b Backend, path string) (bool, error) {
	_, err := b.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}
