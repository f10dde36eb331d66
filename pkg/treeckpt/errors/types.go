package errors

import (
	"errors"
	"fmt"
)

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed ("write", "read", "save", "restore", ...).
	Op string

	// Path is the checkpoint path or tree path involved, if any.
	Path string

	// Err is the underlying cause. May be nil.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.Sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so
// errors.Is(err, ErrNotFound) works without wrapping the sentinel.
func (e *Error) Is(target error) bool {
	s := e.Kind.Sentinel()
	if s == nil {
		return false
	}
	return s == target || errors.Is(s, target)
}

// New creates an Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IOFailure wraps a storage error.
func IOFailure(op, path string, err error) *Error {
	return New(KindIOFailure, op, path, err)
}

// Corrupt reports an unreadable checkpoint.
func Corrupt(op, path string, err error) *Error {
	return New(KindCorruptCheckpoint, op, path, err)
}

// NotFound reports a missing checkpoint.
func NotFound(op, path string) *Error {
	return New(KindNotFound, op, path, nil)
}

// Unsupported reports a leaf that cannot be stored.
func Unsupported(path string, format string, args ...any) *Error {
	return New(KindUnsupportedLeafType, "encode", path, fmt.Errorf(format, args...))
}

// StructureMismatch reports a key-set, length or nesting mismatch at a tree path.
func StructureMismatch(path string, format string, args ...any) *Error {
	return New(KindStructureMismatch, "restore", path, fmt.Errorf(format, args...))
}

// DTypeMismatch reports a leaf kind, dtype or shape mismatch at a tree path.
func DTypeMismatch(path string, format string, args ...any) *Error {
	return New(KindDTypeMismatch, "restore", path, fmt.Errorf(format, args...))
}
