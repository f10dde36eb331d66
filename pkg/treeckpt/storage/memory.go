package storage

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is an in-memory backend for testing.
// Data is lost when the process exits.
type MemoryBackend struct {
	mu     sync.RWMutex
	files  map[string]memFile
	dirs   map[string]time.Time
	closed bool
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		files: make(map[string]memFile),
		dirs:  make(map[string]time.Time),
	}
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// isRoot reports whether p is the implicit root, which always exists.
func isRoot(p string) bool {
	return p == "/"
}

// MkdirAll implements Backend.
func (m *MemoryBackend) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	for dir := p; !isRoot(dir); dir = path.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return fmt.Errorf("mkdir %s: not a directory", dir)
		}
		if _, ok := m.dirs[dir]; !ok {
			m.dirs[dir] = time.Now().UTC()
		}
	}
	return nil
}

// WriteFile implements Backend.
func (m *MemoryBackend) WriteFile(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	if parent := path.Dir(p); !isRoot(parent) {
		if _, ok := m.dirs[parent]; !ok {
			return fmt.Errorf("write %s: %w", p, ErrNotExist)
		}
	}
	if _, ok := m.dirs[p]; ok {
		return fmt.Errorf("write %s: is a directory", p)
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[p] = memFile{data: stored, modTime: time.Now().UTC()}
	return nil
}

// ReadFile implements Backend.
func (m *MemoryBackend) ReadFile(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrBackendClosed
	}

	f, ok := m.files[cleanPath(p)]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, ErrNotExist)
	}

	// Return a copy to prevent modification
	result := make([]byte, len(f.data))
	copy(result, f.data)
	return result, nil
}

// Stat implements Backend.
func (m *MemoryBackend) Stat(p string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{}, ErrBackendClosed
	}
	return m.statLocked(cleanPath(p))
}

func (m *MemoryBackend) statLocked(p string) (Entry, error) {
	if isRoot(p) {
		return Entry{Name: "/", IsDir: true}, nil
	}
	if f, ok := m.files[p]; ok {
		return Entry{Name: path.Base(p), Size: int64(len(f.data)), ModTime: f.modTime}, nil
	}
	if mod, ok := m.dirs[p]; ok {
		return Entry{Name: path.Base(p), IsDir: true, ModTime: mod}, nil
	}
	return Entry{}, fmt.Errorf("stat %s: %w", p, ErrNotExist)
}

// List implements Backend.
func (m *MemoryBackend) List(dir string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrBackendClosed
	}

	dir = cleanPath(dir)
	if _, ok := m.dirs[dir]; !ok && !isRoot(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, ErrNotExist)
	}

	var entries []Entry
	for p, f := range m.files {
		if path.Dir(p) == dir {
			entries = append(entries, Entry{Name: path.Base(p), Size: int64(len(f.data)), ModTime: f.modTime})
		}
	}
	for p, mod := range m.dirs {
		if path.Dir(p) == dir {
			entries = append(entries, Entry{Name: path.Base(p), IsDir: true, ModTime: mod})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Rename implements Backend. The whole subtree moves under one lock.
func (m *MemoryBackend) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	oldPath, newPath = cleanPath(oldPath), cleanPath(newPath)
	if _, err := m.statLocked(oldPath); err != nil {
		return err
	}
	if _, err := m.statLocked(newPath); err == nil {
		return fmt.Errorf("rename to %s: %w", newPath, ErrExist)
	}
	if parent := path.Dir(newPath); !isRoot(parent) {
		if _, ok := m.dirs[parent]; !ok {
			return fmt.Errorf("rename to %s: %w", newPath, ErrNotExist)
		}
	}

	prefix := oldPath + "/"
	if strings.HasPrefix(newPath, prefix) {
		return fmt.Errorf("rename %s into itself", oldPath)
	}

	movedFiles := make(map[string]memFile)
	for p, f := range m.files {
		if p == oldPath || strings.HasPrefix(p, prefix) {
			movedFiles[p] = f
		}
	}
	movedDirs := make(map[string]time.Time)
	for p, mod := range m.dirs {
		if p == oldPath || strings.HasPrefix(p, prefix) {
			movedDirs[p] = mod
		}
	}
	for p, f := range movedFiles {
		delete(m.files, p)
		m.files[newPath+strings.TrimPrefix(p, oldPath)] = f
	}
	for p, mod := range movedDirs {
		delete(m.dirs, p)
		m.dirs[newPath+strings.TrimPrefix(p, oldPath)] = mod
	}
	return nil
}

// RemoveAll implements Backend.
func (m *MemoryBackend) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	prefix := p + "/"
	for f := range m.files {
		if f == p || strings.HasPrefix(f, prefix) {
			delete(m.files, f)
		}
	}
	for d := range m.dirs {
		if d == p || strings.HasPrefix(d, prefix) {
			delete(m.dirs, d)
		}
	}
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.files = nil
	m.dirs = nil
	return nil
}

// Len returns the total number of files stored.
// Useful for testing.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
