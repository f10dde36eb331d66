package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// ReadOption configures a read.
type ReadOption func(*readConfig)

type readConfig struct {
	target      tree.Node
	materialize tree.Materializer
}

// WithTarget drives reconstruction from a reference tree. The stored
// structure must match it; array leaves take the target's sharding.
func WithTarget(target tree.Node) ReadOption {
	return func(c *readConfig) {
		c.target = target
	}
}

// WithMaterializer sets how array leaves are allocated.
func WithMaterializer(m tree.Materializer) ReadOption {
	return func(c *readConfig) {
		c.materialize = m
	}
}

// ReadManifest loads and checks the manifest at p.
func (c *Codec) ReadManifest(p string) (*Manifest, error) {
	data, err := c.backend.ReadFile(path.Join(p, ManifestFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, ckerrors.Corrupt("read", p, fmt.Errorf("missing %s", ManifestFile))
		}
		return nil, ckerrors.IOFailure("read", p, err)
	}
	m, err := UnmarshalManifest(data)
	if err != nil {
		return nil, ckerrors.Corrupt("read", p, err)
	}
	return m, nil
}

// ReadDescriptor loads the descriptor of leaf i.
func (c *Codec) ReadDescriptor(p string, i int) (LeafDescriptor, error) {
	var desc LeafDescriptor
	data, err := c.backend.ReadFile(path.Join(p, leafFile(i, "json")))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return desc, ckerrors.Corrupt("read", p, fmtLeafErr(i, errors.New("missing descriptor")))
		}
		return desc, ckerrors.IOFailure("read", p, err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, ckerrors.Corrupt("read", p, fmtLeafErr(i, err))
	}
	if desc.Index != i {
		return desc, ckerrors.Corrupt("read", p, fmtLeafErr(i, fmt.Errorf("descriptor index %d", desc.Index)))
	}
	if _, err := tree.ParseKind(desc.Kind); err != nil {
		return desc, ckerrors.Corrupt("read", p, fmtLeafErr(i, err))
	}
	return desc, nil
}

// ReadDescriptors loads every leaf descriptor listed by the manifest.
func (c *Codec) ReadDescriptors(p string) (*Manifest, []LeafDescriptor, error) {
	m, err := c.ReadManifest(p)
	if err != nil {
		return nil, nil, err
	}
	descs := make([]LeafDescriptor, m.LeafCount)
	for i := range descs {
		if descs[i], err = c.ReadDescriptor(p, i); err != nil {
			return nil, nil, err
		}
	}
	return m, descs, nil
}

// readArtifact loads, verifies and decompresses a leaf artifact.
func (c *Codec) readArtifact(p string, desc LeafDescriptor) ([]byte, error) {
	stored, err := c.backend.ReadFile(path.Join(p, leafFile(desc.Index, "bin")))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, ckerrors.Corrupt("read", p, fmtLeafErr(desc.Index, errors.New("missing artifact")))
		}
		return nil, ckerrors.IOFailure("read", p, err)
	}
	if int64(len(stored)) != desc.Size {
		return nil, ckerrors.Corrupt("read", p, fmtLeafErr(desc.Index,
			fmt.Errorf("artifact has %d bytes, descriptor says %d", len(stored), desc.Size)))
	}
	if sum := checksum(stored); sum != desc.Checksum {
		return nil, ckerrors.Corrupt("read", p, fmtLeafErr(desc.Index,
			fmt.Errorf("checksum %s, descriptor says %s", sum, desc.Checksum)))
	}
	raw, err := decompress(desc.Compression, stored, desc.RawSize)
	if err != nil {
		return nil, ckerrors.Corrupt("read", p, fmtLeafErr(desc.Index, err))
	}
	if int64(len(raw)) != desc.RawSize {
		return nil, ckerrors.Corrupt("read", p, fmtLeafErr(desc.Index,
			fmt.Errorf("decoded %d bytes, descriptor says %d", len(raw), desc.RawSize)))
	}
	return raw, nil
}

// Verify checks every artifact of the checkpoint at p against its
// descriptor without materializing the tree.
func (c *Codec) Verify(p string) (*Manifest, error) {
	m, descs, err := c.ReadDescriptors(p)
	if err != nil {
		return nil, err
	}
	for _, desc := range descs {
		if _, err := c.readArtifact(p, desc); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Read reconstructs the tree stored at p.
//
// Without a target, stored sequences come back as maps keyed "0", "1", ...
// With one, the result mirrors the target's container types and any
// disagreement is reported as a StructureMismatch (keys, lengths, node kinds)
// or a DTypeMismatch (leaf kind, dtype, shape).
func (c *Codec) Read(p string, opts ...ReadOption) (tree.Node, error) {
	cfg := readConfig{materialize: tree.DefaultMaterializer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.materialize == nil {
		cfg.materialize = tree.DefaultMaterializer
	}

	m, err := c.ReadManifest(p)
	if err != nil {
		return nil, err
	}
	r := &reader{codec: c, dir: p, cfg: cfg}
	return r.node(nil, m.Tree, cfg.target, cfg.target != nil)
}

type reader struct {
	codec *Codec
	dir   string
	cfg   readConfig
}

func (r *reader) node(p tree.Path, spec *NodeSpec, target tree.Node, hasTarget bool) (tree.Node, error) {
	kind, err := tree.ParseKind(spec.Kind)
	if err != nil {
		return nil, ckerrors.Corrupt("read", r.dir, err)
	}

	if hasTarget {
		if target == nil {
			return nil, ckerrors.StructureMismatch(p.String(), "target has no node")
		}
		if err := compareKinds(p, kind, target.Kind()); err != nil {
			return nil, err
		}
	}

	switch kind {
	case tree.KindMap:
		var tm tree.Map
		if hasTarget {
			tm = target.(tree.Map)
			if !slices.Equal(tm.Keys(), spec.Keys) {
				return nil, ckerrors.StructureMismatch(p.String(),
					"stored keys %v, target keys %v", spec.Keys, tm.Keys())
			}
		}
		out := make(tree.Map, len(spec.Keys))
		for i, k := range spec.Keys {
			var child tree.Node
			if hasTarget {
				child = tm[k]
			}
			v, err := r.node(p.Child(k), spec.Children[i], child, hasTarget)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case tree.KindSeq:
		if hasTarget {
			ts := target.(tree.Seq)
			if len(ts) != len(spec.Children) {
				return nil, ckerrors.StructureMismatch(p.String(),
					"stored length %d, target length %d", len(spec.Children), len(ts))
			}
			out := make(tree.Seq, len(ts))
			for i := range ts {
				v, err := r.node(p.Child(tree.IndexKey(i)), spec.Children[i], ts[i], true)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
		out := make(tree.Map, len(spec.Children))
		for i, child := range spec.Children {
			key := tree.IndexKey(i)
			v, err := r.node(p.Child(key), child, nil, false)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil

	default:
		return r.leaf(p, kind, *spec.Leaf, target, hasTarget)
	}
}

// compareKinds reports container-level disagreements as structural and
// leaf-level ones as dtype mismatches.
func compareKinds(p tree.Path, stored, target tree.Kind) error {
	if stored == target {
		return nil
	}
	if stored.IsLeaf() && target.IsLeaf() {
		return ckerrors.DTypeMismatch(p.String(), "stored %s, target %s", stored, target)
	}
	return ckerrors.StructureMismatch(p.String(), "stored %s, target %s", stored, target)
}

func (r *reader) leaf(p tree.Path, kind tree.Kind, index int, target tree.Node, hasTarget bool) (tree.Node, error) {
	desc, err := r.codec.ReadDescriptor(r.dir, index)
	if err != nil {
		return nil, err
	}
	if desc.Kind != kind.String() {
		return nil, ckerrors.Corrupt("read", r.dir, fmtLeafErr(index,
			fmt.Errorf("descriptor kind %s, manifest kind %s", desc.Kind, kind)))
	}

	spec := tree.ArraySpec{DType: desc.DType, Shape: desc.Shape, Sharding: desc.Sharding}
	if hasTarget && kind == tree.KindArray {
		ta := target.(tree.Array)
		if ta.DType != desc.DType {
			return nil, ckerrors.DTypeMismatch(p.String(), "stored dtype %s, target dtype %s", desc.DType, ta.DType)
		}
		if !slices.Equal(ta.Shape, desc.Shape) {
			return nil, ckerrors.DTypeMismatch(p.String(), "stored shape %v, target shape %v", desc.Shape, ta.Shape)
		}
		if ta.Sharding != nil {
			spec.Sharding = ta.Spec().Sharding
		}
	}

	raw, err := r.codec.readArtifact(r.dir, desc)
	if err != nil {
		return nil, err
	}

	if kind != tree.KindArray {
		v, err := decodeScalar(kind, raw)
		if err != nil {
			return nil, ckerrors.Corrupt("read", r.dir, fmtLeafErr(index, err))
		}
		return v, nil
	}

	if !desc.DType.Valid() || int64(tree.NumElements(desc.Shape)*desc.DType.ItemSize()) != desc.RawSize {
		return nil, ckerrors.Corrupt("read", r.dir, fmtLeafErr(index,
			fmt.Errorf("array %s%v does not fit %d bytes", desc.DType, desc.Shape, desc.RawSize)))
	}
	arr, err := r.cfg.materialize(spec, raw)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", p, err)
	}
	return arr, nil
}
