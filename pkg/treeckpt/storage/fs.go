package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FSBackend stores checkpoints on the local filesystem.
// Paths are interpreted relative to the process working directory unless absolute.
type FSBackend struct{}

// NewFSBackend creates a local filesystem backend.
func NewFSBackend() *FSBackend {
	return &FSBackend{}
}

// MkdirAll implements Backend.
func (b *FSBackend) MkdirAll(path string) error {
	return translate(os.MkdirAll(filepath.FromSlash(path), 0o755))
}

// WriteFile implements Backend. The file is fsynced before returning.
func (b *FSBackend) WriteFile(path string, data []byte) error {
	f, err := os.OpenFile(filepath.FromSlash(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return translate(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

// ReadFile implements Backend.
func (b *FSBackend) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.FromSlash(path))
	return data, translate(err)
}

// Stat implements Backend.
func (b *FSBackend) Stat(path string) (Entry, error) {
	info, err := os.Stat(filepath.FromSlash(path))
	if err != nil {
		return Entry{}, translate(err)
	}
	return entryFromInfo(info), nil
}

// List implements Backend.
func (b *FSBackend) List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(filepath.FromSlash(dir))
	if err != nil {
		return nil, translate(err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		entries = append(entries, entryFromInfo(info))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Rename implements Backend.
// The parent directory is synced so the rename survives a crash.
func (b *FSBackend) Rename(oldPath, newPath string) error {
	newOS := filepath.FromSlash(newPath)
	if _, err := os.Lstat(newOS); err == nil {
		return fmt.Errorf("rename to %s: %w", newPath, ErrExist)
	}
	if err := os.Rename(filepath.FromSlash(oldPath), newOS); err != nil {
		return translate(err)
	}
	return syncDir(filepath.Dir(newOS))
}

// RemoveAll implements Backend.
func (b *FSBackend) RemoveAll(path string) error {
	return os.RemoveAll(filepath.FromSlash(path))
}

// Close implements Backend.
func (b *FSBackend) Close() error {
	return nil
}

func entryFromInfo(info fs.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems reject fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}

// translate maps os errors onto the package sentinels, keeping the original cause.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %v", ErrExist, err)
	}
	return err
}
