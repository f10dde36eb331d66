package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteBackend stores checkpoint files as rows in a single SQLite database.
// Directory renames run in one transaction, so a checkpoint appears all at once.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteBackend creates a new SQLite backend.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			path TEXT NOT NULL PRIMARY KEY,
			parent TEXT NOT NULL,
			is_dir INTEGER NOT NULL,
			mod_time TEXT NOT NULL,
			data BLOB
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_parent
		ON entries(parent)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// MkdirAll implements Backend.
func (s *SQLiteBackend) MkdirAll(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	var dirs []string
	for dir := p; !isRoot(dir); dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin mkdir: %w", err)
	}
	defer tx.Rollback()

	for _, dir := range dirs {
		var isDir bool
		err := tx.QueryRow(`SELECT is_dir FROM entries WHERE path = ?`, dir).Scan(&isDir)
		if err == nil {
			if !isDir {
				return fmt.Errorf("mkdir %s: not a directory", dir)
			}
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO entries (path, parent, is_dir, mod_time, data)
			VALUES (?, ?, 1, ?, NULL)
		`, dir, path.Dir(dir), now()); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return tx.Commit()
}

// WriteFile implements Backend.
func (s *SQLiteBackend) WriteFile(p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	parent := path.Dir(p)
	if !isRoot(parent) {
		ok, err := s.isDirLocked(parent)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("write %s: %w", p, ErrNotExist)
		}
	}
	if data == nil {
		data = []byte{}
	}

	_, err := s.db.Exec(`
		INSERT INTO entries (path, parent, is_dir, mod_time, data)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mod_time = excluded.mod_time,
			data = excluded.data
		WHERE entries.is_dir = 0
	`, p, parent, now(), data)
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func (s *SQLiteBackend) isDirLocked(p string) (bool, error) {
	var isDir bool
	err := s.db.QueryRow(`SELECT is_dir FROM entries WHERE path = ?`, p).Scan(&isDir)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return isDir, nil
}

// ReadFile implements Backend.
func (s *SQLiteBackend) ReadFile(p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrBackendClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM entries
		WHERE path = ? AND is_dir = 0
	`, cleanPath(p)).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s: %w", p, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Stat implements Backend.
func (s *SQLiteBackend) Stat(p string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrBackendClosed
	}

	p = cleanPath(p)
	if isRoot(p) {
		return Entry{Name: "/", IsDir: true}, nil
	}

	var (
		e       Entry
		modTime string
	)
	err := s.db.QueryRow(`
		SELECT is_dir, mod_time, COALESCE(LENGTH(data), 0)
		FROM entries WHERE path = ?
	`, p).Scan(&e.IsDir, &modTime, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("stat %s: %w", p, ErrNotExist)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", p, err)
	}
	e.Name = path.Base(p)
	e.ModTime, _ = time.Parse(time.RFC3339Nano, modTime)
	return e, nil
}

// List implements Backend.
func (s *SQLiteBackend) List(dir string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrBackendClosed
	}

	dir = cleanPath(dir)
	if !isRoot(dir) {
		ok, err := s.isDirLocked(dir)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("list %s: %w", dir, ErrNotExist)
		}
	}

	rows, err := s.db.Query(`
		SELECT path, is_dir, mod_time, COALESCE(LENGTH(data), 0)
		FROM entries
		WHERE parent = ? AND path != ?
		ORDER BY path
	`, dir, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			p       string
			modTime string
		)
		if err := rows.Scan(&p, &e.IsDir, &modTime, &e.Size); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Name = path.Base(p)
		e.ModTime, _ = time.Parse(time.RFC3339Nano, modTime)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Rename implements Backend. The subtree moves in a single transaction.
func (s *SQLiteBackend) Rename(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendClosed
	}

	oldPath, newPath = cleanPath(oldPath), cleanPath(newPath)
	if strings.HasPrefix(newPath, oldPath+"/") {
		return fmt.Errorf("rename %s into itself", oldPath)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE path = ?`, oldPath).Scan(&n); err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	if n == 0 {
		return fmt.Errorf("rename %s: %w", oldPath, ErrNotExist)
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE path = ?`, newPath).Scan(&n); err != nil {
		return fmt.Errorf("rename %s: %w", newPath, err)
	}
	if n > 0 {
		return fmt.Errorf("rename to %s: %w", newPath, ErrExist)
	}
	if parent := path.Dir(newPath); !isRoot(parent) {
		if err := tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE path = ? AND is_dir = 1`, parent).Scan(&n); err != nil {
			return fmt.Errorf("rename to %s: %w", newPath, err)
		}
		if n == 0 {
			return fmt.Errorf("rename to %s: %w", newPath, ErrNotExist)
		}
	}

	// Paths are rewritten in Go: substr counts characters, not bytes.
	rows, err := tx.Query(`SELECT path FROM entries WHERE `+subtreeClause, subtreeArgs(oldPath)...)
	if err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	var moved []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("rename %s: %w", oldPath, err)
		}
		moved = append(moved, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	rows.Close()

	for _, p := range moved {
		dst := newPath + strings.TrimPrefix(p, oldPath)
		if _, err := tx.Exec(`UPDATE entries SET path = ?, parent = ? WHERE path = ?`,
			dst, path.Dir(dst), p); err != nil {
			return fmt.Errorf("rename %s: %w", p, err)
		}
	}

	return tx.Commit()
}

// RemoveAll implements Backend.
func (s *SQLiteBackend) RemoveAll(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBackendClosed
	}

	p = cleanPath(p)
	_, err := s.db.Exec(`DELETE FROM entries WHERE `+subtreeClause, subtreeArgs(p)...)
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// subtreeClause matches p and everything below it. TEXT compares
// bytewise, and every path under p sorts in [p+"/", p+"0") since '0'
// follows '/'.
const subtreeClause = `path = ? OR (path >= ? AND path < ?)`

func subtreeArgs(p string) []any {
	return []any{p, p + "/", p + "0"}
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
