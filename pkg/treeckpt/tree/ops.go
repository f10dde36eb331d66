package tree

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
)

// Clone returns a deep copy of n. Array buffers are copied.
func Clone(n Node) Node {
	switch v := n.(type) {
	case Map:
		out := make(Map, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case Seq:
		out := make(Seq, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	case Array:
		return Array{
			DType:    v.DType,
			Shape:    append([]int(nil), v.Shape...),
			Data:     append([]byte(nil), v.Data...),
			Sharding: v.Sharding.clone(),
		}
	default:
		// Scalars are immutable values.
		return n
	}
}

// Equal reports whether a and b are deeply equal.
// Arrays compare bit-exactly; sharding is not compared.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Map:
		bv := b.(Map)
		if len(av) != len(bv) {
			return false
		}
		for k, child := range av {
			other, ok := bv[k]
			if !ok || !Equal(child, other) {
				return false
			}
		}
		return true
	case Seq:
		bv := b.(Seq)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Float:
		// Bit comparison so NaN payloads round-trip as equal.
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Float)))
	case Array:
		bv := b.(Array)
		return av.DType == bv.DType && slices.Equal(av.Shape, bv.Shape) && bytes.Equal(av.Data, bv.Data)
	default:
		return a == b
	}
}

// WalkFunc is called for each leaf in canonical order.
type WalkFunc func(path Path, leaf Node) error

// Walk visits every leaf of n depth-first, map keys in sorted order.
// It fails with UnsupportedLeafType on a nil node.
func Walk(n Node, fn WalkFunc) error {
	return walk(nil, n, fn)
}

func walk(path Path, n Node, fn WalkFunc) error {
	switch v := n.(type) {
	case nil:
		return ckerrors.Unsupported(path.String(), "nil node")
	case Map:
		for _, k := range v.Keys() {
			if err := walk(path.Child(k), v[k], fn); err != nil {
				return err
			}
		}
		return nil
	case Seq:
		for i, child := range v {
			if err := walk(path.Child(IndexKey(i)), child, fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(path, n)
	}
}

// Validate checks every leaf of n can be stored.
func Validate(n Node) error {
	return Walk(n, func(path Path, leaf Node) error {
		if a, ok := leaf.(Array); ok {
			if err := a.Validate(); err != nil {
				return ckerrors.New(ckerrors.KindUnsupportedLeafType, "encode", path.String(), err)
			}
		}
		return nil
	})
}

// CountLeaves returns the number of leaves in n.
func CountLeaves(n Node) int {
	count := 0
	_ = Walk(n, func(Path, Node) error {
		count++
		return nil
	})
	return count
}

// FromValue converts a plain Go value into a Node.
//
// Accepts Node values, map[string]any, []any, Go integer, float, bool and
// string types, and []float32, []float64, []int32, []int64, []byte (as 1-D
// arrays). Anything else fails with UnsupportedLeafType.
func FromValue(v any) (Node, error) {
	return fromValue(nil, v)
}

func fromValue(path Path, v any) (Node, error) {
	switch val := v.(type) {
	case nil:
		return nil, ckerrors.Unsupported(path.String(), "nil value")
	case Node:
		return val, nil
	case map[string]any:
		out := make(Map, len(val))
		for k, child := range val {
			n, err := fromValue(path.Child(k), child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make(Seq, len(val))
		for i, child := range val {
			n, err := fromValue(path.Child(IndexKey(i)), child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []float32:
		return FromFloat32s([]int{len(val)}, val), nil
	case []float64:
		return FromFloat64s([]int{len(val)}, val), nil
	case []int32:
		return FromInt32s([]int{len(val)}, val), nil
	case []int64:
		return FromInt64s([]int{len(val)}, val), nil
	case []byte:
		return FromUint8s([]int{len(val)}, val), nil
	default:
		return nil, ckerrors.Unsupported(path.String(), "value of type %T", v)
	}
}

// ToValue converts a Node into plain Go values: map[string]any, []any,
// int64, float64, bool, string, and Array for array leaves.
func ToValue(n Node) any {
	switch v := n.(type) {
	case Map:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = ToValue(child)
		}
		return out
	case Seq:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = ToValue(child)
		}
		return out
	case Int:
		return int64(v)
	case Float:
		return float64(v)
	case Bool:
		return bool(v)
	case String:
		return string(v)
	case Array:
		return v
	default:
		return nil
	}
}

// Describe renders a short human-readable summary of a leaf.
func Describe(leaf Node) string {
	switch v := leaf.(type) {
	case Array:
		return fmt.Sprintf("%s%v", v.DType, v.Shape)
	case String:
		return fmt.Sprintf("string(%d)", len(v))
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%s(%v)", leaf.Kind(), v)
	}
}
