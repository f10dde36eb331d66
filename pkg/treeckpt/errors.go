package treeckpt

import (
	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrIOFailure           = ckerrors.ErrIOFailure
	ErrUnsupportedLeafType = ckerrors.ErrUnsupportedLeafType
	ErrCorruptCheckpoint   = ckerrors.ErrCorruptCheckpoint
	ErrAlreadyExists       = ckerrors.ErrAlreadyExists
	ErrConcurrentSave      = ckerrors.ErrConcurrentSave
	ErrNonMonotonicStep    = ckerrors.ErrNonMonotonicStep
	ErrManagerClosed       = ckerrors.ErrManagerClosed
	ErrNotFound            = ckerrors.ErrNotFound

	// ErrShapeMismatch matches both ErrStructureMismatch and ErrDTypeMismatch.
	ErrShapeMismatch     = ckerrors.ErrShapeMismatch
	ErrStructureMismatch = ckerrors.ErrStructureMismatch
	ErrDTypeMismatch     = ckerrors.ErrDTypeMismatch
)

// ErrorKind returns the kind of a checkpoint error.
func ErrorKind(err error) ckerrors.Kind {
	return ckerrors.KindOf(err)
}
