package tree

import (
	"encoding/binary"
	"fmt"
	"math"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
)

// Sharding describes how an array is distributed across devices.
// treeckpt stores it verbatim and hands it back to the materializer; it
// never interprets it.
type Sharding struct {
	// Spec is a backend-specific partition spec, e.g. "P('data', None)".
	Spec string `json:"spec,omitempty"`

	// Mesh is the device mesh shape.
	Mesh []int `json:"mesh,omitempty"`

	// Devices lists device ids in mesh order.
	Devices []int `json:"devices,omitempty"`
}

func (s *Sharding) clone() *Sharding {
	if s == nil {
		return nil
	}
	return &Sharding{
		Spec:    s.Spec,
		Mesh:    append([]int(nil), s.Mesh...),
		Devices: append([]int(nil), s.Devices...),
	}
}

// Array is a typed, shaped, multi-dimensional leaf.
// Data holds the elements in row-major little-endian order.
type Array struct {
	DType    DType
	Shape    []int
	Data     []byte
	Sharding *Sharding
}

func (Array) Kind() Kind { return KindArray }
func (Array) node()      {}

// NewArray creates an array and validates its buffer length.
func NewArray(dtype DType, shape []int, data []byte) (Array, error) {
	a := Array{DType: dtype, Shape: shape, Data: data}
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	return a, nil
}

// Validate checks the dtype is known and the buffer matches the shape.
func (a Array) Validate() error {
	if !a.DType.Valid() {
		return ckerrors.Unsupported("", "array dtype %q", a.DType)
	}
	for _, dim := range a.Shape {
		if dim < 0 {
			return ckerrors.Unsupported("", "negative dimension in shape %v", a.Shape)
		}
	}
	want := NumElements(a.Shape) * a.DType.ItemSize()
	if len(a.Data) != want {
		return ckerrors.Unsupported("", "array %s%v needs %d bytes, has %d", a.DType, a.Shape, want, len(a.Data))
	}
	return nil
}

// Spec returns the array's dtype, shape and sharding without its data.
func (a Array) Spec() ArraySpec {
	return ArraySpec{DType: a.DType, Shape: append([]int(nil), a.Shape...), Sharding: a.Sharding.clone()}
}

// ArraySpec is what a materializer needs to allocate an array.
type ArraySpec struct {
	DType    DType
	Shape    []int
	Sharding *Sharding
}

// Materializer builds an array from its spec and raw bytes during restore.
// It lets callers choose their own allocation policy (pinned buffers,
// device placement, sharded layouts).
type Materializer func(spec ArraySpec, data []byte) (Array, error)

// DefaultMaterializer wraps the bytes in a host-memory Array.
func DefaultMaterializer(spec ArraySpec, data []byte) (Array, error) {
	a := Array{DType: spec.DType, Shape: spec.Shape, Data: data, Sharding: spec.Sharding}
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	return a, nil
}

// FromFloat32s creates a float32 array. len(vals) must match shape.
func FromFloat32s(shape []int, vals []float32) Array {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return Array{DType: Float32, Shape: shape, Data: data}
}

// FromFloat64s creates a float64 array. len(vals) must match shape.
func FromFloat64s(shape []int, vals []float64) Array {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return Array{DType: Float64, Shape: shape, Data: data}
}

// FromInt32s creates an int32 array. len(vals) must match shape.
func FromInt32s(shape []int, vals []int32) Array {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return Array{DType: Int32, Shape: shape, Data: data}
}

// FromInt64s creates an int64 array. len(vals) must match shape.
func FromInt64s(shape []int, vals []int64) Array {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(v))
	}
	return Array{DType: Int64, Shape: shape, Data: data}
}

// FromUint8s creates a uint8 array. The bytes are copied.
func FromUint8s(shape []int, vals []uint8) Array {
	return Array{DType: Uint8, Shape: shape, Data: append([]byte(nil), vals...)}
}

// Float32s decodes a float32 array.
func (a Array) Float32s() ([]float32, error) {
	if a.DType != Float32 {
		return nil, fmt.Errorf("array is %s, not float32", a.DType)
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return out, nil
}

// Float64s decodes a float64 array.
func (a Array) Float64s() ([]float64, error) {
	if a.DType != Float64 {
		return nil, fmt.Errorf("array is %s, not float64", a.DType)
	}
	out := make([]float64, len(a.Data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[8*i:]))
	}
	return out, nil
}

// Int64s decodes an int64 array.
func (a Array) Int64s() ([]int64, error) {
	if a.DType != Int64 {
		return nil, fmt.Errorf("array is %s, not int64", a.DType)
	}
	out := make([]int64, len(a.Data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(a.Data[8*i:]))
	}
	return out, nil
}
