package treeckpt_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/observability"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/retention"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

var quiet = treeckpt.WithLogger(slog.New(slog.DiscardHandler))

func state(step int64) tree.Node {
	return tree.Map{
		"params": tree.Map{
			"w": tree.FromFloat32s([]int{2, 2}, []float32{1, 2, 3, float32(step)}),
			"b": tree.FromFloat32s([]int{2}, []float32{0.5, -0.5}),
		},
		"step": tree.Int(step),
	}
}

func openFS(t *testing.T, cfg treeckpt.Config, opts ...treeckpt.Option) (*treeckpt.Manager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "ckpt")
	cfg.Create = true
	mgr, err := treeckpt.New(root, cfg, append([]treeckpt.Option{quiet}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, root
}

// gatedBackend holds leaf writes until released and can fail them.
type gatedBackend struct {
	storage.Backend
	gate chan struct{}

	mu   sync.Mutex
	fail error
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{Backend: storage.NewMemoryBackend(), gate: make(chan struct{})}
}

func (g *gatedBackend) WriteFile(p string, data []byte) error {
	if strings.HasSuffix(p, ".bin") {
		<-g.gate
		g.mu.Lock()
		err := g.fail
		g.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return g.Backend.WriteFile(p, data)
}

func (g *gatedBackend) release() { close(g.gate) }

func (g *gatedBackend) failWith(err error) {
	g.mu.Lock()
	g.fail = err
	g.mu.Unlock()
}

func TestNew_Root(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := treeckpt.New(missing, treeckpt.Config{}, quiet)
	assert.ErrorIs(t, err, treeckpt.ErrNotFound)

	mgr, err := treeckpt.New(missing, treeckpt.Config{Create: true}, quiet)
	require.NoError(t, err)
	defer mgr.Close()

	info, err := os.Stat(missing)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, missing, mgr.Directory())
	assert.Empty(t, mgr.Steps())
}

func TestNew_InvalidConfig(t *testing.T) {
	for name, cfg := range map[string]treeckpt.Config{
		"mode":        {BestMetricMode: "median"},
		"compression": {Compression: "lz4"},
		"expression":  {ShouldSaveExpr: "step +"},
		"keep period": {KeepPeriod: -1},
	} {
		t.Run(name, func(t *testing.T) {
			cfg.Create = true
			_, err := treeckpt.New(t.TempDir(), cfg, quiet)
			assert.Error(t, err)
		})
	}
}

func TestManager_SaveRestore(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(map[bool]string{false: "sync", true: "async"}[async], func(t *testing.T) {
			mgr, root := openFS(t, treeckpt.Config{Async: async, Compression: codec.CompressionZstd})
			ctx := context.Background()

			require.NoError(t, mgr.Save(ctx, 10, state(10)))
			require.NoError(t, mgr.WaitUntilFinished())
			require.NoError(t, mgr.Save(ctx, 20, state(20)))
			require.NoError(t, mgr.WaitUntilFinished())

			assert.Equal(t, []int64{10, 20}, mgr.Steps())
			latest, ok := mgr.LatestStep()
			require.True(t, ok)
			assert.Equal(t, int64(20), latest)

			out, err := mgr.Restore(ctx, treeckpt.WithTarget(state(0)))
			require.NoError(t, err)
			assert.True(t, tree.Equal(state(20), out))

			out, err = mgr.Restore(ctx, treeckpt.AtStep(10), treeckpt.WithTarget(state(0)))
			require.NoError(t, err)
			assert.True(t, tree.Equal(state(10), out))

			_, err = os.Stat(filepath.Join(root, "20", codec.CommitMarker))
			assert.NoError(t, err)
		})
	}
}

func TestManager_NoTargetRestore(t *testing.T) {
	mgr, _ := openFS(t, treeckpt.Config{})
	ctx := context.Background()

	in := tree.Seq{tree.Int(12), tree.Map{"foo": tree.String("str")}}
	require.NoError(t, mgr.Save(ctx, 1, in))

	out, err := mgr.Restore(ctx)
	require.NoError(t, err)

	want := tree.Map{"0": tree.Int(12), "1": tree.Map{"foo": tree.String("str")}}
	assert.True(t, tree.Equal(want, out))
}

func TestManager_Monotonicity(t *testing.T) {
	mgr, _ := openFS(t, treeckpt.Config{})
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, 5, state(5)))
	assert.ErrorIs(t, mgr.Save(ctx, 5, state(5)), treeckpt.ErrNonMonotonicStep)
	assert.ErrorIs(t, mgr.Save(ctx, 3, state(3)), treeckpt.ErrNonMonotonicStep)
	require.NoError(t, mgr.Save(ctx, 6, state(6)))
	assert.Equal(t, []int64{5, 6}, mgr.Steps())
}

func TestManager_NegativeStepRejected(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	ctx := context.Background()

	err := mgr.Save(ctx, -1, state(-1))
	assert.ErrorIs(t, err, treeckpt.ErrNonMonotonicStep)
	_, statErr := os.Stat(filepath.Join(root, "-1"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, mgr.Steps())

	require.NoError(t, mgr.Save(ctx, 0, state(0)))
	require.NoError(t, mgr.Close())

	// Whatever was accepted is found again after a restart.
	reopened, err := treeckpt.New(root, treeckpt.Config{}, quiet)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []int64{0}, reopened.Steps())
}

func TestManager_SQLiteNonASCIIRoot(t *testing.T) {
	b, err := storage.NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	const root = "/données/ckpt"
	mgr, err := treeckpt.New(root, treeckpt.Config{Create: true, MaxToKeep: 2},
		quiet, treeckpt.WithBackend(b))
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	for step := int64(1); step <= 4; step++ {
		require.NoError(t, mgr.Save(ctx, step, state(step)))
	}
	assert.Equal(t, []int64{3, 4}, mgr.Steps())

	recs, err := treeckpt.List(b, root, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].Step)

	ok, err := storage.Exists(b, root+"/1/"+codec.ManifestFile)
	require.NoError(t, err)
	assert.False(t, ok, "pruned step left files behind")

	out, err := mgr.Restore(ctx, treeckpt.WithTarget(state(0)))
	require.NoError(t, err)
	assert.True(t, tree.Equal(state(4), out))
	require.NoError(t, mgr.Verify(ctx, 3))
}

func TestManager_Retention(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{MaxToKeep: 3, KeepPeriod: 2})
	ctx := context.Background()

	for step := int64(0); step <= 5; step++ {
		require.NoError(t, mgr.Save(ctx, step, state(step)))
	}

	assert.Equal(t, []int64{0, 2, 3, 4, 5}, mgr.Steps())
	_, err := os.Stat(filepath.Join(root, "1"))
	assert.True(t, os.IsNotExist(err))

	_, err = mgr.Restore(ctx, treeckpt.AtStep(1))
	assert.ErrorIs(t, err, treeckpt.ErrNotFound)
}

func TestManager_BestMetricRetention(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{
		MaxToKeep:      1,
		BestMetricKey:  "loss",
		BestMetricMode: retention.ModeMin,
		BestN:          1,
	})
	ctx := context.Background()

	losses := map[int64]float64{1: 0.9, 2: 0.2, 3: 0.5, 4: 0.7}
	for step := int64(1); step <= 4; step++ {
		require.NoError(t, mgr.Save(ctx, step, state(step),
			treeckpt.WithMetrics(map[string]float64{"loss": losses[step]})))
	}

	assert.Equal(t, []int64{2, 4}, mgr.Steps())
	best, ok := mgr.BestStep()
	require.True(t, ok)
	assert.Equal(t, int64(2), best)

	metrics, err := mgr.Metrics(2)
	require.NoError(t, err)
	assert.Equal(t, 0.2, metrics["loss"])

	// Metrics survive a restart through the manifests.
	require.NoError(t, mgr.Close())
	reopened, err := treeckpt.New(root, mgr.Config(), quiet)
	require.NoError(t, err)
	defer reopened.Close()

	best, ok = reopened.BestStep()
	require.True(t, ok)
	assert.Equal(t, int64(2), best)
	recs := reopened.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 0.7, recs[1].Metrics["loss"])
}

func TestManager_ConcurrentSaveRejected(t *testing.T) {
	g := newGatedBackend()
	mgr, err := treeckpt.New("/ckpt", treeckpt.Config{Create: true, Async: true},
		quiet, treeckpt.WithBackend(g))
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, 1, state(1)))
	assert.Equal(t, treeckpt.StateSavePending, mgr.State())

	err = mgr.Save(ctx, 2, state(2))
	assert.ErrorIs(t, err, treeckpt.ErrConcurrentSave)

	g.release()
	require.NoError(t, mgr.WaitUntilFinished())
	assert.Equal(t, treeckpt.StateIdle, mgr.State())
	assert.Equal(t, []int64{1}, mgr.Steps())

	out, err := mgr.Restore(ctx, treeckpt.WithTarget(state(0)))
	require.NoError(t, err)
	assert.True(t, tree.Equal(state(1), out))
}

func TestManager_AsyncErrorBuffered(t *testing.T) {
	g := newGatedBackend()
	g.failWith(errors.New("disk full"))
	mgr, err := treeckpt.New("/ckpt", treeckpt.Config{Create: true, Async: true},
		quiet, treeckpt.WithBackend(g))
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, 1, state(1)))
	g.release()

	err = mgr.WaitUntilFinished()
	assert.ErrorIs(t, err, treeckpt.ErrIOFailure)
	assert.Empty(t, mgr.Steps())

	// The error is reported once; the failed step may be retried.
	require.NoError(t, mgr.WaitUntilFinished())
	g.failWith(nil)
	require.NoError(t, mgr.Save(ctx, 1, state(1)))
	require.NoError(t, mgr.WaitUntilFinished())
	assert.Equal(t, []int64{1}, mgr.Steps())
}

func TestManager_AsyncErrorReturnedBySave(t *testing.T) {
	g := newGatedBackend()
	g.failWith(errors.New("disk full"))
	mgr, err := treeckpt.New("/ckpt", treeckpt.Config{Create: true, Async: true},
		quiet, treeckpt.WithBackend(g))
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, 1, state(1)))
	g.release()
	require.Eventually(t, func() bool { return mgr.State() == treeckpt.StateIdle },
		5*time.Second, 5*time.Millisecond)

	err = mgr.Save(ctx, 2, state(2))
	assert.ErrorIs(t, err, treeckpt.ErrIOFailure)
}

func TestManager_AsyncIdleAcceptsSave(t *testing.T) {
	mgr, _ := openFS(t, treeckpt.Config{Async: true})
	ctx := context.Background()

	for step := int64(1); step <= 50; step++ {
		require.Eventually(t, func() bool { return mgr.State() == treeckpt.StateIdle },
			5*time.Second, time.Millisecond)
		require.NoError(t, mgr.Save(ctx, step, tree.Int(step)), "step %d", step)
	}
	require.NoError(t, mgr.WaitUntilFinished())
	assert.Len(t, mgr.Steps(), 50)
}

func TestManager_Recovery(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ckpt")
	mgr, err := treeckpt.New(root, treeckpt.Config{Create: true}, quiet)
	require.NoError(t, err)
	require.NoError(t, mgr.Save(context.Background(), 1, state(1)))
	require.NoError(t, mgr.Close())

	// Interrupted write: artifacts but no marker.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2", "leaves"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2", "leaves", "0.bin"), []byte("x"), 0o644))
	// Staging directory left by a crash.
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".3.tmp-abc"), 0o755))
	// Marker present but the manifest is garbage.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "4"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "4", codec.CommitMarker), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "4", codec.ManifestFile), []byte("{"), 0o644))
	// Not ours.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))

	reg := prom.NewRegistry()
	mgr, err = treeckpt.New(root, treeckpt.Config{}, quiet,
		treeckpt.WithMetricsRecorder(observability.NewPrometheusRecorder(reg)))
	require.NoError(t, err)
	defer mgr.Close()

	assert.Equal(t, []int64{1}, mgr.Steps())
	for _, name := range []string{"2", ".3.tmp-abc", "4"} {
		_, err := os.Stat(filepath.Join(root, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
	_, err = os.Stat(filepath.Join(root, "notes"))
	assert.NoError(t, err)

	// The recovered step is usable and still bounds monotonicity.
	assert.ErrorIs(t, mgr.Save(context.Background(), 1, state(1)), treeckpt.ErrNonMonotonicStep)
	require.NoError(t, mgr.Save(context.Background(), 2, state(2)))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var recovered float64
	for _, mf := range mfs {
		if mf.GetName() == "treeckpt_recovery_removed_total" {
			recovered = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, recovered)
}

func TestManager_Close(t *testing.T) {
	g := newGatedBackend()
	mgr, err := treeckpt.New("/ckpt", treeckpt.Config{Create: true, Async: true},
		quiet, treeckpt.WithBackend(g))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, 1, state(1)))

	closed := make(chan error, 1)
	go func() { closed <- mgr.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned with a save in flight")
	case <-time.After(20 * time.Millisecond):
	}
	g.release()
	require.NoError(t, <-closed)

	assert.Equal(t, treeckpt.StateClosed, mgr.State())
	assert.Equal(t, []int64{1}, mgr.Steps())

	assert.ErrorIs(t, mgr.Save(ctx, 2, state(2)), treeckpt.ErrManagerClosed)
	_, err = mgr.Restore(ctx)
	assert.ErrorIs(t, err, treeckpt.ErrManagerClosed)
	assert.NoError(t, mgr.Close())
}

func TestManager_RestoreNotFound(t *testing.T) {
	mgr, _ := openFS(t, treeckpt.Config{})
	ctx := context.Background()

	_, err := mgr.Restore(ctx)
	assert.ErrorIs(t, err, treeckpt.ErrNotFound)

	require.NoError(t, mgr.Save(ctx, 1, state(1)))
	_, err = mgr.Restore(ctx, treeckpt.AtStep(7))
	assert.ErrorIs(t, err, treeckpt.ErrNotFound)
}

func TestManager_RestoreMismatch(t *testing.T) {
	mgr, _ := openFS(t, treeckpt.Config{})
	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, 1, state(1)))

	_, err := mgr.Restore(ctx, treeckpt.WithTarget(tree.Map{"step": tree.Int(0)}))
	assert.ErrorIs(t, err, treeckpt.ErrStructureMismatch)
	assert.NotErrorIs(t, err, treeckpt.ErrDTypeMismatch)

	target := state(0).(tree.Map)
	target["step"] = tree.Float(0)
	_, err = mgr.Restore(ctx, treeckpt.WithTarget(target))
	assert.ErrorIs(t, err, treeckpt.ErrDTypeMismatch)
	assert.ErrorIs(t, err, treeckpt.ErrShapeMismatch)
}

func TestManager_UnsupportedLeaf(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	err := mgr.Save(context.Background(), 1, tree.Map{"x": nil})
	assert.ErrorIs(t, err, treeckpt.ErrUnsupportedLeafType)
	assert.Empty(t, mgr.Steps())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_Force(t *testing.T) {
	b := storage.NewMemoryBackend()
	mgr, err := treeckpt.New("/ckpt", treeckpt.Config{Create: true}, quiet, treeckpt.WithBackend(b))
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	// A completed checkpoint the manager does not know about yet.
	other, err := treeckpt.New("/ckpt", treeckpt.Config{}, quiet, treeckpt.WithBackend(b))
	require.NoError(t, err)
	require.NoError(t, other.Save(ctx, 3, state(3)))
	require.NoError(t, other.Close())

	assert.ErrorIs(t, mgr.Save(ctx, 3, state(30)), treeckpt.ErrAlreadyExists)
	require.NoError(t, mgr.Save(ctx, 3, state(30), treeckpt.WithForce()))

	out, err := mgr.Restore(ctx, treeckpt.WithTarget(state(0)))
	require.NoError(t, err)
	assert.True(t, tree.Equal(state(30), out))
}

func TestManager_StepPrefix(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{StepPrefix: "ckpt"})
	require.NoError(t, mgr.Save(context.Background(), 42, state(42)))

	_, err := os.Stat(filepath.Join(root, "ckpt_42", codec.ManifestFile))
	require.NoError(t, err)

	recs := mgr.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, filepath.ToSlash(filepath.Join(root, "ckpt_42")), recs[0].Path)
}

func TestManager_DeleteAndReload(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	ctx := context.Background()
	for step := int64(1); step <= 3; step++ {
		require.NoError(t, mgr.Save(ctx, step, state(step)))
	}

	require.NoError(t, mgr.Delete(2))
	assert.Equal(t, []int64{1, 3}, mgr.Steps())
	assert.ErrorIs(t, mgr.Delete(2), treeckpt.ErrNotFound)

	// Another process removes step 3 behind our back.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "3")))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, []int64{1}, mgr.Steps())
}

func TestManager_ShouldSave(t *testing.T) {
	t.Run("every step by default", func(t *testing.T) {
		mgr, _ := openFS(t, treeckpt.Config{})
		ok, err := mgr.ShouldSave(7)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("interval", func(t *testing.T) {
		mgr, _ := openFS(t, treeckpt.Config{SaveIntervalSteps: 100})
		for step, want := range map[int64]bool{0: true, 50: false, 100: true, 250: false} {
			got, err := mgr.ShouldSave(step)
			require.NoError(t, err)
			assert.Equal(t, want, got, "step %d", step)
		}
	})

	t.Run("expression", func(t *testing.T) {
		mgr, _ := openFS(t, treeckpt.Config{ShouldSaveExpr: "!has_checkpoint || steps_since_save >= 10"})
		ctx := context.Background()

		ok, err := mgr.ShouldSave(3)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, mgr.Save(ctx, 3, state(3)))
		ok, err = mgr.ShouldSave(3)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = mgr.ShouldSave(12)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = mgr.ShouldSave(13)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestWaitForNewCheckpoint(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, mgr.Save(ctx, 1, state(1)))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = mgr.Save(context.Background(), 5, state(5))
	}()

	step, err := treeckpt.WaitForNewCheckpoint(ctx, root, "", 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(5), step)

	// Already satisfied.
	step, err = treeckpt.WaitForNewCheckpoint(ctx, root, "", 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(5), step)

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err = treeckpt.WaitForNewCheckpoint(short, root, "", 5, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Prune(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	ctx := context.Background()
	for step := int64(1); step <= 4; step++ {
		require.NoError(t, mgr.Save(ctx, step, state(step)))
	}
	require.NoError(t, mgr.Close())

	tight, err := treeckpt.New(root, treeckpt.Config{MaxToKeep: 2}, quiet)
	require.NoError(t, err)
	defer tight.Close()
	assert.Equal(t, []int64{1, 2, 3, 4}, tight.Steps(), "opening does not prune")

	deleted, err := tight.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, deleted)
	assert.Equal(t, []int64{3, 4}, tight.Steps())
	_, err = os.Stat(filepath.Join(root, "1"))
	assert.True(t, os.IsNotExist(err))

	deleted, err = tight.Prune(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestManager_InspectVerify(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{})
	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, 1, state(1), treeckpt.WithMetrics(map[string]float64{"loss": 0.5})))

	manifest, descs, err := mgr.Inspect(1)
	require.NoError(t, err)
	assert.Equal(t, 3, manifest.LeafCount)
	assert.Equal(t, 0.5, manifest.Metrics["loss"])
	require.Len(t, descs, 3)

	require.NoError(t, mgr.Verify(ctx, 1))

	// Flip a byte in one artifact.
	bin := filepath.Join(root, "1", "leaves", "0.bin")
	data, err := os.ReadFile(bin)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(bin, data, 0o644))
	assert.ErrorIs(t, mgr.Verify(ctx, 1), treeckpt.ErrCorruptCheckpoint)

	_, _, err = mgr.Inspect(9)
	assert.ErrorIs(t, err, treeckpt.ErrNotFound)
}

func TestList_LeavesIncompleteAlone(t *testing.T) {
	mgr, root := openFS(t, treeckpt.Config{StepPrefix: "s"})
	require.NoError(t, mgr.Save(context.Background(), 1, state(1)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "s_2"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".s_3.tmp-x"), 0o755))

	recs, err := treeckpt.List(storage.NewFSBackend(), root, "s")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].Step)
	assert.False(t, recs[0].Time.IsZero())

	for _, name := range []string{"s_2", ".s_3.tmp-x"} {
		_, err := os.Stat(filepath.Join(root, name))
		assert.NoError(t, err)
	}
}
