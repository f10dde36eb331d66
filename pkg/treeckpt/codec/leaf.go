package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// Compression selects how leaf artifacts are stored.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name. "none" and "" mean uncompressed.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// Encoders are safe for concurrent EncodeAll/DecodeAll and expensive to build.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

// checksum is the hex xxhash64 of stored artifact bytes.
func checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// encodeLeaf renders a leaf to raw bytes and its descriptor.
// Scalars use fixed-width little-endian encodings so floats round-trip bit-exactly.
func encodeLeaf(leaf tree.Node) (LeafDescriptor, []byte, error) {
	desc := LeafDescriptor{Kind: leaf.Kind().String()}

	var raw []byte
	switch v := leaf.(type) {
	case tree.Int:
		raw = binary.LittleEndian.AppendUint64(nil, uint64(v))
	case tree.Float:
		raw = binary.LittleEndian.AppendUint64(nil, math.Float64bits(float64(v)))
	case tree.Bool:
		raw = []byte{0}
		if v {
			raw[0] = 1
		}
	case tree.String:
		raw = []byte(v)
	case tree.Array:
		if err := v.Validate(); err != nil {
			return desc, nil, err
		}
		desc.DType = v.DType
		desc.Shape = append([]int{}, v.Shape...)
		desc.Sharding = v.Sharding
		raw = v.Data
	default:
		return desc, nil, fmt.Errorf("leaf of kind %s", leaf.Kind())
	}
	return desc, raw, nil
}

// compress applies the compression to raw bytes.
func compress(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("init zstd encoder: %w", err)
		}
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// decompress reverses compress.
func decompress(c Compression, stored []byte, rawSize int64) ([]byte, error) {
	switch c {
	case CompressionNone:
		return stored, nil
	case CompressionZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("init zstd decoder: %w", err)
		}
		return dec.DecodeAll(stored, make([]byte, 0, rawSize))
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// decodeScalar rebuilds a non-array leaf from raw bytes.
func decodeScalar(kind tree.Kind, raw []byte) (tree.Node, error) {
	switch kind {
	case tree.KindInt:
		if len(raw) != 8 {
			return nil, fmt.Errorf("int leaf has %d bytes", len(raw))
		}
		return tree.Int(int64(binary.LittleEndian.Uint64(raw))), nil
	case tree.KindFloat:
		if len(raw) != 8 {
			return nil, fmt.Errorf("float leaf has %d bytes", len(raw))
		}
		return tree.Float(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
	case tree.KindBool:
		if len(raw) != 1 || raw[0] > 1 {
			return nil, fmt.Errorf("malformed bool leaf")
		}
		return tree.Bool(raw[0] == 1), nil
	case tree.KindString:
		return tree.String(raw), nil
	default:
		return nil, fmt.Errorf("leaf of kind %s is not a scalar", kind)
	}
}
