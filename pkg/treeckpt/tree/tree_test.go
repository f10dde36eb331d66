package tree_test

import (
	"math"
	"testing"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() tree.Node {
	return tree.Map{
		"step": tree.Int(100),
		"lr":   tree.Float(3e-4),
		"name": tree.String("adam"),
		"params": tree.Map{
			"w": tree.FromFloat32s([]int{2, 2}, []float32{1, 2, 3, 4}),
			"b": tree.FromFloat32s([]int{2}, []float32{0.5, -0.5}),
		},
		"history": tree.Seq{tree.Float(1.5), tree.Bool(true)},
	}
}

func TestClone_DeepCopiesArrays(t *testing.T) {
	original := sampleTree()
	cloned := tree.Clone(original)
	require.True(t, tree.Equal(original, cloned))

	// Mutating the original buffer must not leak into the clone.
	w := original.(tree.Map)["params"].(tree.Map)["w"].(tree.Array)
	w.Data[0] = 0xff

	assert.False(t, tree.Equal(original, cloned))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b tree.Node
		want bool
	}{
		{"same scalar", tree.Int(1), tree.Int(1), true},
		{"different scalar", tree.Int(1), tree.Int(2), false},
		{"int vs float", tree.Int(1), tree.Float(1), false},
		{"nan equals nan", tree.Float(math.NaN()), tree.Float(math.NaN()), true},
		{"map key differs", tree.Map{"a": tree.Int(1)}, tree.Map{"b": tree.Int(1)}, false},
		{"seq length differs", tree.Seq{tree.Int(1)}, tree.Seq{}, false},
		{"array dtype differs",
			tree.Array{DType: tree.Int32, Shape: []int{1}, Data: []byte{0, 0, 0, 0}},
			tree.Array{DType: tree.Float32, Shape: []int{1}, Data: []byte{0, 0, 0, 0}},
			false},
		{"nil vs nil", nil, nil, true},
		{"nil vs node", nil, tree.Int(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tree.Equal(tt.a, tt.b))
		})
	}
}

func TestWalk_CanonicalOrder(t *testing.T) {
	var paths []string
	err := tree.Walk(sampleTree(), func(path tree.Path, _ tree.Node) error {
		paths = append(paths, path.String())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"history.0",
		"history.1",
		"lr",
		"name",
		"params.b",
		"params.w",
		"step",
	}, paths)
	assert.Equal(t, 7, tree.CountLeaves(sampleTree()))
}

func TestValidate(t *testing.T) {
	t.Run("valid tree", func(t *testing.T) {
		assert.NoError(t, tree.Validate(sampleTree()))
	})

	t.Run("short array buffer", func(t *testing.T) {
		bad := tree.Map{"w": tree.Array{DType: tree.Float32, Shape: []int{3}, Data: make([]byte, 8)}}
		err := tree.Validate(bad)
		assert.ErrorIs(t, err, ckerrors.ErrUnsupportedLeafType)
	})

	t.Run("unknown dtype", func(t *testing.T) {
		bad := tree.Seq{tree.Array{DType: "complex64", Shape: []int{1}, Data: make([]byte, 8)}}
		assert.ErrorIs(t, tree.Validate(bad), ckerrors.ErrUnsupportedLeafType)
	})

	t.Run("nil child", func(t *testing.T) {
		assert.ErrorIs(t, tree.Validate(tree.Map{"x": nil}), ckerrors.ErrUnsupportedLeafType)
	})
}

func TestFromValue(t *testing.T) {
	n, err := tree.FromValue([]any{12, map[string]any{"foo": "str"}})
	require.NoError(t, err)

	assert.True(t, tree.Equal(tree.Seq{tree.Int(12), tree.Map{"foo": tree.String("str")}}, n))
}

func TestFromValue_Unsupported(t *testing.T) {
	_, err := tree.FromValue(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ckerrors.ErrUnsupportedLeafType)
	assert.Contains(t, err.Error(), "ch")

	_, err = tree.FromValue(nil)
	assert.ErrorIs(t, err, ckerrors.ErrUnsupportedLeafType)
}

func TestToValue_RoundTrip(t *testing.T) {
	v := map[string]any{
		"a": int64(1),
		"b": []any{"x", 2.5, true},
	}
	n, err := tree.FromValue(v)
	require.NoError(t, err)
	assert.Equal(t, v, tree.ToValue(n))
}

func TestArrayDecoders(t *testing.T) {
	f32 := tree.FromFloat32s([]int{3}, []float32{1, -2, 3.5})
	vals, err := f32.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 3.5}, vals)

	_, err = f32.Int64s()
	assert.Error(t, err)

	i64 := tree.FromInt64s([]int{2}, []int64{-7, 1 << 40})
	ints, err := i64.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{-7, 1 << 40}, ints)

	f64 := tree.FromFloat64s(nil, []float64{math.Pi})
	require.NoError(t, f64.Validate())
	floats, err := f64.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{math.Pi}, floats)
}

func TestParseKindAndDType(t *testing.T) {
	for k := tree.KindMap; k <= tree.KindArray; k++ {
		parsed, err := tree.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := tree.ParseKind("tuple")
	assert.Error(t, err)

	d, err := tree.ParseDType("bfloat16")
	require.NoError(t, err)
	assert.Equal(t, 2, d.ItemSize())
	_, err = tree.ParseDType("float8")
	assert.Error(t, err)
}
