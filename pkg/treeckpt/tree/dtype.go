package tree

import "fmt"

// DType names the element type of an array leaf.
type DType string

// Supported element types.
const (
	Float16  DType = "float16"
	BFloat16 DType = "bfloat16"
	Float32  DType = "float32"
	Float64  DType = "float64"
	Int8     DType = "int8"
	Int32    DType = "int32"
	Int64    DType = "int64"
	Uint8    DType = "uint8"
	BoolDT   DType = "bool"
)

// ItemSize returns the number of bytes per element, or 0 for an unknown dtype.
func (d DType) ItemSize() int {
	switch d {
	case Int8, Uint8, BoolDT:
		return 1
	case Float16, BFloat16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	return d.ItemSize() > 0
}

// ParseDType parses a dtype name.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown dtype %q", s)
	}
	return d, nil
}

// NumElements returns the product of the shape's dimensions.
// A nil or empty shape describes a scalar array with one element.
func NumElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
