// Package errors defines the checkpoint error taxonomy.
//
// Every failure surfaced by treeckpt carries a Kind. Callers match on the
// sentinel values with errors.Is, or extract the Kind with KindOf:
//   - Storage: IOFailure, NotFound, AlreadyExists
//   - Data: UnsupportedLeafType, CorruptCheckpoint, StructureMismatch, DTypeMismatch
//   - Lifecycle: ConcurrentSaveInProgress, NonMonotonicStep, ManagerClosed
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a checkpoint failure.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors outside the taxonomy.
	KindUnknown Kind = iota

	// KindIOFailure indicates storage was unreachable or unwritable.
	// It is never retried by the core.
	KindIOFailure

	// KindUnsupportedLeafType indicates a leaf that is not a scalar, string or array.
	KindUnsupportedLeafType

	// KindCorruptCheckpoint indicates a missing or unreadable manifest or artifact.
	KindCorruptCheckpoint

	// KindStructureMismatch indicates differing keys, sequence lengths or nesting
	// between a restore target and the stored tree.
	KindStructureMismatch

	// KindDTypeMismatch indicates a leaf whose kind, dtype or array shape
	// disagrees with the restore target.
	KindDTypeMismatch

	// KindAlreadyExists indicates a completed checkpoint occupies the destination.
	KindAlreadyExists

	// KindConcurrentSave indicates an asynchronous save is still in flight.
	KindConcurrentSave

	// KindNonMonotonicStep indicates a step not greater than the latest saved step.
	KindNonMonotonicStep

	// KindManagerClosed indicates use of a closed manager.
	KindManagerClosed

	// KindNotFound indicates a requested checkpoint does not exist.
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindIOFailure:
		return "io_failure"
	case KindUnsupportedLeafType:
		return "unsupported_leaf_type"
	case KindCorruptCheckpoint:
		return "corrupt_checkpoint"
	case KindStructureMismatch:
		return "structure_mismatch"
	case KindDTypeMismatch:
		return "dtype_mismatch"
	case KindAlreadyExists:
		return "already_exists"
	case KindConcurrentSave:
		return "concurrent_save_in_progress"
	case KindNonMonotonicStep:
		return "non_monotonic_step"
	case KindManagerClosed:
		return "manager_closed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind.
var (
	ErrIOFailure           = errors.New("checkpoint storage failure")
	ErrUnsupportedLeafType = errors.New("unsupported leaf type")
	ErrCorruptCheckpoint   = errors.New("corrupt checkpoint")
	ErrAlreadyExists       = errors.New("checkpoint already exists")
	ErrConcurrentSave      = errors.New("concurrent save in progress")
	ErrNonMonotonicStep    = errors.New("non-monotonic step")
	ErrManagerClosed       = errors.New("checkpoint manager closed")
	ErrNotFound            = errors.New("checkpoint not found")

	// ErrShapeMismatch matches both structural and dtype mismatches.
	// Use ErrStructureMismatch or ErrDTypeMismatch to tell them apart.
	ErrShapeMismatch     = errors.New("restore target mismatch")
	ErrStructureMismatch = fmt.Errorf("%w: structure", ErrShapeMismatch)
	ErrDTypeMismatch     = fmt.Errorf("%w: dtype", ErrShapeMismatch)
)

var sentinels = map[Kind]error{
	KindIOFailure:           ErrIOFailure,
	KindUnsupportedLeafType: ErrUnsupportedLeafType,
	KindCorruptCheckpoint:   ErrCorruptCheckpoint,
	KindStructureMismatch:   ErrStructureMismatch,
	KindDTypeMismatch:       ErrDTypeMismatch,
	KindAlreadyExists:       ErrAlreadyExists,
	KindConcurrentSave:      ErrConcurrentSave,
	KindNonMonotonicStep:    ErrNonMonotonicStep,
	KindManagerClosed:       ErrManagerClosed,
	KindNotFound:            ErrNotFound,
}

// Sentinel returns the sentinel error for a kind, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	return sentinels[k]
}

// KindOf determines the kind of an error.
// Errors that carry no kind return KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ckErr *Error
	if errors.As(err, &ckErr) {
		return ckErr.Kind
	}

	// Order matters: the mismatch sentinels wrap ErrShapeMismatch.
	for _, k := range []Kind{
		KindStructureMismatch,
		KindDTypeMismatch,
		KindIOFailure,
		KindUnsupportedLeafType,
		KindCorruptCheckpoint,
		KindAlreadyExists,
		KindConcurrentSave,
		KindNonMonotonicStep,
		KindManagerClosed,
		KindNotFound,
	} {
		if errors.Is(err, sentinels[k]) {
			return k
		}
	}
	return KindUnknown
}

// IsMismatch reports whether err is a structural or dtype mismatch.
func IsMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}
