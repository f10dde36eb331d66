package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindIOFailure, "io_failure"},
		{KindUnsupportedLeafType, "unsupported_leaf_type"},
		{KindCorruptCheckpoint, "corrupt_checkpoint"},
		{KindStructureMismatch, "structure_mismatch"},
		{KindDTypeMismatch, "dtype_mismatch"},
		{KindAlreadyExists, "already_exists"},
		{KindConcurrentSave, "concurrent_save_in_progress"},
		{KindNonMonotonicStep, "non_monotonic_step"},
		{KindManagerClosed, "manager_closed"},
		{KindNotFound, "not_found"},
		{KindUnknown, "unknown"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := NotFound("restore", "/ckpt/7")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrIOFailure)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestError_WrappedStillMatches(t *testing.T) {
	inner := IOFailure("write", "/ckpt/3", fs.ErrPermission)
	wrapped := fmt.Errorf("save step 3: %w", inner)

	assert.ErrorIs(t, wrapped, ErrIOFailure)
	assert.ErrorIs(t, wrapped, fs.ErrPermission)
	assert.Equal(t, KindIOFailure, KindOf(wrapped))

	var ckErr *Error
	assert.True(t, errors.As(wrapped, &ckErr))
	assert.Equal(t, "write", ckErr.Op)
	assert.Equal(t, "/ckpt/3", ckErr.Path)
}

func TestMismatchKindsAreDistinct(t *testing.T) {
	structural := StructureMismatch("params.w", "missing key %q", "b")
	dtype := DTypeMismatch("params.w", "want float32, got int64")

	// Both are shape mismatches.
	assert.True(t, IsMismatch(structural))
	assert.True(t, IsMismatch(dtype))
	assert.ErrorIs(t, structural, ErrShapeMismatch)
	assert.ErrorIs(t, dtype, ErrShapeMismatch)

	// But never each other.
	assert.ErrorIs(t, structural, ErrStructureMismatch)
	assert.NotErrorIs(t, structural, ErrDTypeMismatch)
	assert.ErrorIs(t, dtype, ErrDTypeMismatch)
	assert.NotErrorIs(t, dtype, ErrStructureMismatch)

	assert.Equal(t, KindStructureMismatch, KindOf(structural))
	assert.Equal(t, KindDTypeMismatch, KindOf(dtype))
}

func TestKindOf_BareSentinels(t *testing.T) {
	assert.Equal(t, KindDTypeMismatch, KindOf(fmt.Errorf("x: %w", ErrDTypeMismatch)))
	assert.Equal(t, KindConcurrentSave, KindOf(ErrConcurrentSave))
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestError_Message(t *testing.T) {
	err := Corrupt("read", "/ckpt/9", errors.New("manifest.json: unexpected EOF"))
	assert.Equal(t, "read /ckpt/9: corrupt checkpoint: manifest.json: unexpected EOF", err.Error())

	err = New(KindManagerClosed, "save", "", nil)
	assert.Equal(t, "save: checkpoint manager closed", err.Error())
}
