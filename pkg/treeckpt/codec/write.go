package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// Codec reads and writes trees through a storage backend.
// It is stateless and safe for concurrent use on distinct paths.
type Codec struct {
	backend     storage.Backend
	compression Compression
}

// Option configures a Codec.
type Option func(*Codec)

// WithCompression sets the compression applied to leaf artifacts on write.
// Reads handle any compression regardless of this setting.
func WithCompression(c Compression) Option {
	return func(cd *Codec) {
		cd.compression = c
	}
}

// New creates a codec over a backend.
func New(backend storage.Backend, opts ...Option) *Codec {
	c := &Codec{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the underlying storage backend.
func (c *Codec) Backend() storage.Backend {
	return c.backend
}

// WriteOptions controls a single write.
type WriteOptions struct {
	// Overwrite replaces whatever exists at the destination.
	// Without it, an existing destination fails with AlreadyExists.
	Overwrite bool

	// Metrics and Metadata are stored in the manifest.
	Metrics  map[string]float64
	Metadata map[string]string
}

// WriteStats summarizes a completed write.
type WriteStats struct {
	Leaves int
	Bytes  int64
}

// Hidden sibling names used while writing.
const (
	tempInfix  = ".tmp-"
	asideInfix = ".old-"
)

// TempPath returns a unique hidden sibling of p to stage a write in.
func TempPath(p string) string {
	return path.Join(path.Dir(p), "."+path.Base(p)+tempInfix+uuid.NewString())
}

func asidePath(p string) string {
	return path.Join(path.Dir(p), "."+path.Base(p)+asideInfix+uuid.NewString())
}

// IsStagingName reports whether a directory entry is a leftover staging or
// set-aside directory from an interrupted write.
func IsStagingName(name string) bool {
	return strings.HasPrefix(name, ".") &&
		(strings.Contains(name, tempInfix) || strings.Contains(name, asideInfix))
}

type pendingLeaf struct {
	path tree.Path
	node tree.Node
}

// Write stores a tree at p.
//
// Every leaf is validated before storage is touched. Artifacts, descriptors,
// the manifest and finally the completion marker are written into a hidden
// sibling directory, which is then renamed onto p.
func (c *Codec) Write(p string, n tree.Node, opts WriteOptions) (WriteStats, error) {
	if err := tree.Validate(n); err != nil {
		return WriteStats{}, err
	}

	var leaves []pendingLeaf
	spec, err := buildSpec(nil, n, &leaves)
	if err != nil {
		return WriteStats{}, err
	}

	exists, err := storage.Exists(c.backend, p)
	if err != nil {
		return WriteStats{}, ckerrors.IOFailure("write", p, err)
	}
	if exists && !opts.Overwrite {
		return WriteStats{}, ckerrors.New(ckerrors.KindAlreadyExists, "write", p, nil)
	}

	tmp := TempPath(p)
	stats, err := c.stage(tmp, spec, leaves, opts)
	if err != nil {
		_ = c.backend.RemoveAll(tmp)
		return WriteStats{}, err
	}

	if err := c.commit(tmp, p, exists); err != nil {
		_ = c.backend.RemoveAll(tmp)
		return WriteStats{}, err
	}
	return stats, nil
}

// stage writes the complete checkpoint, marker included, into dir.
func (c *Codec) stage(dir string, spec *NodeSpec, leaves []pendingLeaf, opts WriteOptions) (WriteStats, error) {
	if err := c.backend.MkdirAll(path.Join(dir, LeavesDir)); err != nil {
		return WriteStats{}, ckerrors.IOFailure("write", dir, err)
	}

	var stats WriteStats
	for i, leaf := range leaves {
		desc, raw, err := encodeLeaf(leaf.node)
		if err != nil {
			return WriteStats{}, ckerrors.New(ckerrors.KindUnsupportedLeafType, "write", leaf.path.String(), err)
		}
		stored, err := compress(c.compression, raw)
		if err != nil {
			return WriteStats{}, ckerrors.IOFailure("write", leaf.path.String(), err)
		}

		desc.Index = i
		desc.Path = leaf.path.String()
		desc.Size = int64(len(stored))
		desc.RawSize = int64(len(raw))
		desc.Checksum = checksum(stored)
		desc.Compression = c.compression

		descData, err := json.Marshal(desc)
		if err != nil {
			return WriteStats{}, ckerrors.IOFailure("write", leaf.path.String(), err)
		}
		if err := c.backend.WriteFile(path.Join(dir, leafFile(i, "bin")), stored); err != nil {
			return WriteStats{}, ckerrors.IOFailure("write", leaf.path.String(), err)
		}
		if err := c.backend.WriteFile(path.Join(dir, leafFile(i, "json")), descData); err != nil {
			return WriteStats{}, ckerrors.IOFailure("write", leaf.path.String(), err)
		}
		stats.Leaves++
		stats.Bytes += desc.Size
	}

	m := &Manifest{
		Version:   Version,
		CreatedAt: time.Now().UTC(),
		LeafCount: len(leaves),
		Tree:      spec,
		Metrics:   opts.Metrics,
		Metadata:  opts.Metadata,
	}
	data, err := m.Marshal()
	if err != nil {
		return WriteStats{}, ckerrors.IOFailure("write", dir, err)
	}
	if err := c.backend.WriteFile(path.Join(dir, ManifestFile), data); err != nil {
		return WriteStats{}, ckerrors.IOFailure("write", dir, err)
	}
	stats.Bytes += int64(len(data))

	marker := []byte(m.CreatedAt.Format(time.RFC3339Nano))
	if err := c.backend.WriteFile(path.Join(dir, CommitMarker), marker); err != nil {
		return WriteStats{}, ckerrors.IOFailure("write", dir, err)
	}
	return stats, nil
}

// commit renames the staged directory onto p, moving any existing
// destination aside first and removing it afterwards.
func (c *Codec) commit(tmp, p string, replace bool) error {
	var aside string
	if replace {
		aside = asidePath(p)
		if err := c.backend.Rename(p, aside); err != nil {
			return ckerrors.IOFailure("write", p, err)
		}
	}

	if err := c.backend.Rename(tmp, p); err != nil {
		if aside != "" {
			// Put the previous checkpoint back.
			_ = c.backend.Rename(aside, p)
		}
		if errors.Is(err, storage.ErrExist) {
			return ckerrors.New(ckerrors.KindAlreadyExists, "write", p, err)
		}
		return ckerrors.IOFailure("write", p, err)
	}

	if aside != "" {
		// The new checkpoint is in place; a leftover aside dir is swept by recovery.
		_ = c.backend.RemoveAll(aside)
	}
	return nil
}

// buildSpec records the structure of n and collects its leaves in canonical order.
func buildSpec(p tree.Path, n tree.Node, leaves *[]pendingLeaf) (*NodeSpec, error) {
	switch v := n.(type) {
	case nil:
		return nil, ckerrors.Unsupported(p.String(), "nil node")
	case tree.Map:
		keys := v.Keys()
		spec := &NodeSpec{Kind: tree.KindMap.String(), Keys: keys, Children: make([]*NodeSpec, len(keys))}
		for i, k := range keys {
			child, err := buildSpec(p.Child(k), v[k], leaves)
			if err != nil {
				return nil, err
			}
			spec.Children[i] = child
		}
		return spec, nil
	case tree.Seq:
		spec := &NodeSpec{Kind: tree.KindSeq.String(), Children: make([]*NodeSpec, len(v))}
		for i, item := range v {
			child, err := buildSpec(p.Child(tree.IndexKey(i)), item, leaves)
			if err != nil {
				return nil, err
			}
			spec.Children[i] = child
		}
		return spec, nil
	default:
		idx := len(*leaves)
		*leaves = append(*leaves, pendingLeaf{path: p, node: n})
		return &NodeSpec{Kind: n.Kind().String(), Leaf: &idx}, nil
	}
}

// IsCommitted reports whether p holds a checkpoint with its completion marker.
func (c *Codec) IsCommitted(p string) (bool, error) {
	ok, err := storage.Exists(c.backend, path.Join(p, CommitMarker))
	if err != nil {
		return false, ckerrors.IOFailure("stat", p, err)
	}
	return ok, nil
}

// fmtLeafErr is shared by read paths to label which artifact failed.
func fmtLeafErr(index int, err error) error {
	return fmt.Errorf("leaf %d: %w", index, err)
}
