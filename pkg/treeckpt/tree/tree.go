// Package tree defines the tree-shaped values that checkpoints hold.
//
// A Node is one of a closed set of variants: the inner nodes Map and Seq,
// and the leaves Int, Float, Bool, String and Array. Leaves never share
// mutable state; Clone deep-copies array buffers so a saved tree can be
// handed to a background writer while the caller keeps mutating its own.
package tree

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies a node variant.
type Kind uint8

const (
	KindMap Kind = iota + 1
	KindSeq
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
)

// String returns the kind name used in manifests.
func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindSeq:
		return "seq"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// IsLeaf reports whether the kind is a leaf variant.
func (k Kind) IsLeaf() bool {
	return k >= KindInt && k <= KindArray
}

// ParseKind parses a manifest kind name.
func ParseKind(s string) (Kind, error) {
	for k := KindMap; k <= KindArray; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Node is a tree value. The set of implementations is closed.
type Node interface {
	Kind() Kind
	node()
}

// Map is an inner node keyed by string.
type Map map[string]Node

// Seq is an ordered inner node.
type Seq []Node

// Int is a signed integer scalar leaf.
type Int int64

// Float is a floating point scalar leaf.
type Float float64

// Bool is a boolean scalar leaf.
type Bool bool

// String is a string leaf.
type String string

func (Map) Kind() Kind    { return KindMap }
func (Seq) Kind() Kind    { return KindSeq }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (Bool) Kind() Kind   { return KindBool }
func (String) Kind() Kind { return KindString }

func (Map) node()    {}
func (Seq) node()    {}
func (Int) node()    {}
func (Float) node()  {}
func (Bool) node()   {}
func (String) node() {}

// Keys returns the map's keys in sorted order.
// Sorted order is the canonical order used on disk.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IndexKey is the map key a sequence position takes when a tree is
// restored without a target.
func IndexKey(i int) string {
	return strconv.Itoa(i)
}

// Path is the location of a node within a tree, as a list of keys.
// Sequence positions use their decimal index.
type Path []string

// Child returns a new path extended by key.
func (p Path) Child(key string) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)
	return append(child, key)
}

// String renders the path dot-separated, or "<root>" for the empty path.
func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	s := p[0]
	for _, k := range p[1:] {
		s += "." + k
	}
	return s
}
