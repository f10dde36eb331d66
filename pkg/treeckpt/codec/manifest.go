// Package codec maps trees to and from checkpoint directories.
//
// A checkpoint directory holds:
//
//	manifest.json     structure of the tree, independent of leaf values
//	leaves/<n>.json   per-leaf descriptor (kind, dtype, shape, checksum)
//	leaves/<n>.bin    leaf artifact
//	commit_success    completion marker, written last
//
// Writes go to a hidden sibling directory that is renamed into place, so
// readers never observe a partially written tree.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// Version is the current manifest format version.
// Increment when making breaking changes to the on-disk layout.
const Version = 1

// File and directory names inside a checkpoint.
const (
	ManifestFile = "manifest.json"
	CommitMarker = "commit_success"
	LeavesDir    = "leaves"
)

// Manifest describes a stored tree.
type Manifest struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	LeafCount int       `json:"leaf_count"`
	Tree      *NodeSpec `json:"tree"`

	// Caller metadata, stored verbatim.
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Metadata map[string]string  `json:"metadata,omitempty"`
}

// NodeSpec is one node of the stored structure.
// Map children align with Keys; Seq children are positional; leaves carry
// the index of their artifact.
type NodeSpec struct {
	Kind     string      `json:"kind"`
	Keys     []string    `json:"keys,omitempty"`
	Children []*NodeSpec `json:"children,omitempty"`
	Leaf     *int        `json:"leaf,omitempty"`
}

// LeafDescriptor is the per-leaf type and shape record.
type LeafDescriptor struct {
	Index       int            `json:"index"`
	Path        string         `json:"path"`
	Kind        string         `json:"kind"`
	DType       tree.DType     `json:"dtype,omitempty"`
	Shape       []int          `json:"shape,omitempty"`
	Sharding    *tree.Sharding `json:"sharding,omitempty"`
	Size        int64          `json:"size"`
	RawSize     int64          `json:"raw_size"`
	Checksum    string         `json:"checksum"`
	Compression Compression    `json:"compression,omitempty"`
}

// Marshal serializes a manifest to JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalManifest deserializes and sanity-checks a manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Version != Version {
		return nil, fmt.Errorf("manifest version %d, expected %d", m.Version, Version)
	}
	if m.Tree == nil {
		return nil, fmt.Errorf("manifest has no tree")
	}
	if err := m.Tree.check(m.LeafCount); err != nil {
		return nil, err
	}
	return &m, nil
}

// check validates the structure against the declared leaf count.
func (s *NodeSpec) check(leafCount int) error {
	seen := make([]bool, leafCount)
	var visit func(n *NodeSpec) error
	visit = func(n *NodeSpec) error {
		if n == nil {
			return fmt.Errorf("manifest has a nil node")
		}
		kind, err := tree.ParseKind(n.Kind)
		if err != nil {
			return err
		}
		switch {
		case kind == tree.KindMap:
			if len(n.Keys) != len(n.Children) {
				return fmt.Errorf("map node has %d keys and %d children", len(n.Keys), len(n.Children))
			}
		case kind.IsLeaf():
			if n.Leaf == nil || *n.Leaf < 0 || *n.Leaf >= leafCount {
				return fmt.Errorf("leaf node has invalid index")
			}
			if seen[*n.Leaf] {
				return fmt.Errorf("leaf %d referenced twice", *n.Leaf)
			}
			seen[*n.Leaf] = true
			return nil
		}
		for _, child := range n.Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(s); err != nil {
		return err
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("leaf %d not referenced", i)
		}
	}
	return nil
}

func leafFile(index int, ext string) string {
	return fmt.Sprintf("%s/%d.%s", LeavesDir, index, ext)
}
