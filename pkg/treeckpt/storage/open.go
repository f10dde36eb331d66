package storage

import (
	"fmt"
	"strings"
)

// Opener creates a backend from the remainder of a storage URI.
type Opener func(location string) (Backend, error)

var openers = map[string]Opener{
	"file": func(string) (Backend, error) {
		return NewFSBackend(), nil
	},
	"memory": func(string) (Backend, error) {
		return NewMemoryBackend(), nil
	},
	"sqlite": func(location string) (Backend, error) {
		if location == "" {
			return nil, fmt.Errorf("sqlite storage needs a database path")
		}
		return NewSQLiteBackend(location)
	},
}

// Open creates a backend from a URI.
//
// Accepted forms:
//   - "" or "file://": local filesystem
//   - "memory://": in-memory, for tests
//   - "sqlite://./checkpoints.db" or "sqlite://:memory:": SQLite database
func Open(uri string) (Backend, error) {
	scheme, location := "file", ""
	if i := strings.Index(uri, "://"); i >= 0 {
		scheme, location = uri[:i], uri[i+3:]
	} else if uri != "" {
		return nil, fmt.Errorf("storage uri %q: missing scheme", uri)
	}

	open, ok := openers[scheme]
	if !ok {
		return nil, fmt.Errorf("storage uri %q: unknown scheme %q", uri, scheme)
	}
	return open(location)
}
