package treeckpt

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/checkpointer"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/expr"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/observability"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/retention"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// Manager owns a directory of step-indexed checkpoints.
//
// It is meant for a single logical caller. Restores may run concurrently
// with each other and with an in-flight asynchronous save.
type Manager struct {
	root    string
	cfg     Config
	backend storage.Backend

	ckpt      *checkpointer.Checkpointer
	async     *checkpointer.AsyncCheckpointer
	predicate *expr.Predicate

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	mu       sync.Mutex
	records  []Record
	pending  *pendingSave
	lastSave time.Time
	closed   bool
}

// pendingSave tracks the save in flight.
type pendingSave struct {
	step  int64
	async bool
	start time.Time
	span  trace.Span
}

// New opens the checkpoint root, recovering from any interrupted writes.
//
// When root does not exist, New creates it if cfg.Create is set and fails
// with NotFound otherwise.
func New(root string, cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mc := defaultManagerConfig()
	for _, opt := range opts {
		opt(&mc)
	}
	if mc.backend == nil {
		mc.backend = storage.NewFSBackend()
	}

	exists, err := storage.Exists(mc.backend, root)
	if err != nil {
		return nil, ckerrors.IOFailure("open", root, err)
	}
	if !exists {
		if !cfg.Create {
			return nil, ckerrors.NotFound("open", root)
		}
		if err := mc.backend.MkdirAll(root); err != nil {
			return nil, ckerrors.IOFailure("open", root, err)
		}
	}

	m := &Manager{
		root:    root,
		cfg:     cfg,
		backend: mc.backend,
		logger:  observability.EnrichLogger(mc.logger, root),
		metrics: mc.metrics,
		spans:   mc.spans,
	}
	if cfg.ShouldSaveExpr != "" {
		if m.predicate, err = expr.Compile(cfg.ShouldSaveExpr); err != nil {
			return nil, err
		}
	}

	cd := codec.New(mc.backend, codec.WithCompression(cfg.Compression))
	m.ckpt = checkpointer.New(cd, checkpointer.WithLogger(m.logger))

	records, err := m.scan(context.Background())
	if err != nil {
		return nil, err
	}
	m.records = records

	if cfg.Async {
		m.async = checkpointer.NewAsync(m.ckpt,
			checkpointer.WithCommitHook(m.onCommit),
			checkpointer.WithFailureHook(m.onFailure),
		)
	}
	return m, nil
}

// Directory returns the checkpoint root.
func (m *Manager) Directory() string {
	return m.root
}

// Config returns the configuration the manager was opened with.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) stepPath(step int64) string {
	return stepPath(m.root, m.cfg.StepPrefix, step)
}

// latestLocked returns the greatest committed step. Requires m.mu.
func (m *Manager) latestLocked() (int64, bool) {
	if len(m.records) == 0 {
		return 0, false
	}
	return m.records[len(m.records)-1].Step, true
}

// Save checkpoints n as step.
//
// Checks run in order: ManagerClosed; a buffered failure from the previous
// asynchronous save; ConcurrentSaveInProgress while a save is pending;
// NonMonotonicStep when step is negative or does not exceed every saved
// step.
//
// Synchronous saves return once the checkpoint is committed and retention
// has run. Asynchronous saves return once the write is enqueued; the tree
// is copied first, so the caller may mutate it immediately.
func (m *Manager) Save(ctx context.Context, step int64, n tree.Node, opts ...SaveOption) error {
	var sc saveConfig
	for _, opt := range opts {
		opt(&sc)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ckerrors.New(ckerrors.KindManagerClosed, "save", m.root, nil)
	}
	if m.async != nil {
		if err := m.async.TakeError(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	if m.pending != nil {
		m.mu.Unlock()
		return ckerrors.New(ckerrors.KindConcurrentSave, "save", m.stepPath(step), nil)
	}
	if step < 0 {
		m.mu.Unlock()
		return ckerrors.New(ckerrors.KindNonMonotonicStep, "save", m.stepPath(step),
			fmt.Errorf("step %d is negative", step))
	}
	if latest, ok := m.latestLocked(); ok && step <= latest {
		m.mu.Unlock()
		return ckerrors.New(ckerrors.KindNonMonotonicStep, "save", m.stepPath(step),
			fmt.Errorf("step %d, latest saved step %d", step, latest))
	}

	p := m.stepPath(step)
	ctx, span := m.spans.StartSaveSpan(ctx, m.root, step)
	pending := &pendingSave{step: step, async: m.async != nil, start: time.Now(), span: span}
	observability.LogSaveStart(m.logger, step, p, pending.async)

	copts := []checkpointer.SaveOption{
		checkpointer.WithMetrics(maps.Clone(sc.metrics)),
		checkpointer.WithMetadata(maps.Clone(sc.metadata)),
	}
	if sc.force {
		copts = append(copts, checkpointer.WithForce())
	}

	if m.async != nil {
		// Holding m.mu here keeps the commit hook from running before
		// pending is recorded.
		_, err := m.async.Save(ctx, p, n, copts...)
		if err != nil {
			m.mu.Unlock()
			m.finishFailed(pending, err)
			return err
		}
		m.pending = pending
		m.mu.Unlock()
		m.spans.AddSpanEvent(ctx, "treeckpt.save.enqueued")
		return nil
	}

	m.pending = pending
	m.mu.Unlock()

	res, err := m.ckpt.Save(ctx, p, n, copts...)
	if err != nil {
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
		m.finishFailed(pending, err)
		return err
	}
	m.onCommit(res)
	return nil
}

// onCommit records a committed save and applies retention. It runs on the
// caller for synchronous saves and on the worker for asynchronous ones.
func (m *Manager) onCommit(res checkpointer.Result) {
	now := time.Now()

	m.mu.Lock()
	p := m.pending
	m.pending = nil
	rec := Record{Step: p.step, Path: res.Path, Time: now, Metrics: res.Metrics}
	m.records = append(m.records, rec)
	m.lastSave = now

	deletions := PlanRetention(m.records, m.cfg)
	var pruned []Record
	if len(deletions) > 0 {
		m.records = slices.DeleteFunc(m.records, func(r Record) bool {
			if _, found := slices.BinarySearch(deletions, r.Step); found {
				pruned = append(pruned, r)
				return true
			}
			return false
		})
	}
	m.mu.Unlock()

	ctx := trace.ContextWithSpan(context.Background(), p.span)
	m.prune(ctx, pruned)

	duration := time.Since(p.start)
	observability.LogSaveCommitted(m.logger, p.step, res.Stats.Leaves, res.Stats.Bytes, duration)
	m.metrics.RecordSave(ctx, res.Stats.Bytes, duration, p.async, nil)
	m.spans.EndSpanWithError(p.span, nil)
}

// onFailure clears the failed asynchronous save. The error itself stays
// buffered in the async checkpointer.
func (m *Manager) onFailure(_ string, err error) {
	m.mu.Lock()
	p := m.pending
	m.pending = nil
	m.mu.Unlock()

	if p != nil {
		m.finishFailed(p, err)
	}
}

func (m *Manager) finishFailed(p *pendingSave, err error) {
	observability.LogSaveError(m.logger, p.step, err)
	ctx := trace.ContextWithSpan(context.Background(), p.span)
	m.metrics.RecordSave(ctx, 0, time.Since(p.start), p.async, err)
	m.spans.EndSpanWithError(p.span, err)
}

// prune deletes checkpoints dropped by retention. Failures are logged and
// otherwise ignored.
func (m *Manager) prune(ctx context.Context, records []Record) {
	if len(records) == 0 {
		return
	}
	failed := 0
	for _, r := range records {
		if err := m.backend.RemoveAll(r.Path); err != nil {
			failed++
			observability.LogPruneError(m.logger, r.Step, r.Path, err)
			continue
		}
		observability.LogPruned(m.logger, r.Step, r.Path)
	}
	m.metrics.RecordPrune(ctx, len(records)-failed, failed)
}

// Restore reads a checkpoint, the latest unless AtStep is given.
// It fails with NotFound when there are no checkpoints or the requested
// step does not exist.
func (m *Manager) Restore(ctx context.Context, opts ...RestoreOption) (tree.Node, error) {
	var rc restoreConfig
	for _, opt := range opts {
		opt(&rc)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ckerrors.New(ckerrors.KindManagerClosed, "restore", m.root, nil)
	}
	step, ok := rc.step, rc.hasStep
	if !ok {
		step, ok = m.latestLocked()
	} else {
		_, ok = m.findLocked(step)
	}
	m.mu.Unlock()

	if !ok {
		if rc.hasStep {
			return nil, ckerrors.NotFound("restore", m.stepPath(step))
		}
		return nil, ckerrors.NotFound("restore", m.root)
	}

	ctx, span := m.spans.StartRestoreSpan(ctx, m.root, step)
	start := time.Now()

	var ropts []codec.ReadOption
	if rc.target != nil {
		ropts = append(ropts, codec.WithTarget(rc.target))
	}
	if rc.materialize != nil {
		ropts = append(ropts, codec.WithMaterializer(rc.materialize))
	}
	n, err := m.ckpt.Restore(ctx, m.stepPath(step), ropts...)

	duration := time.Since(start)
	observability.LogRestore(m.logger, step, duration, err)
	m.metrics.RecordRestore(ctx, duration, err)
	m.spans.EndSpanWithError(span, err)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (m *Manager) findLocked(step int64) (int, bool) {
	return slices.BinarySearchFunc(m.records, step, func(r Record, s int64) int {
		switch {
		case r.Step < s:
			return -1
		case r.Step > s:
			return 1
		}
		return 0
	})
}

// WaitUntilFinished blocks until the pending asynchronous save completes
// and returns its failure, if any. It is a no-op when idle.
func (m *Manager) WaitUntilFinished() error {
	if m.async == nil {
		return nil
	}
	return m.async.WaitUntilFinished()
}

// Close waits for the pending save and closes the manager. Later Save and
// Restore calls fail with ManagerClosed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.async != nil {
		return m.async.Close()
	}
	return nil
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return StateClosed
	case m.pending != nil:
		return StateSavePending
	default:
		return StateIdle
	}
}

// LatestStep returns the greatest committed step.
func (m *Manager) LatestStep() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLocked()
}

// Steps returns the committed steps in ascending order.
func (m *Manager) Steps() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := make([]int64, len(m.records))
	for i, r := range m.records {
		steps[i] = r.Step
	}
	return steps
}

// Records returns a copy of the committed records in ascending step order.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.clone()
	}
	return out
}

// Metrics returns the metrics saved with step.
func (m *Manager) Metrics(step int64) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.findLocked(step)
	if !ok {
		return nil, ckerrors.NotFound("metrics", m.stepPath(step))
	}
	return maps.Clone(m.records[i].Metrics), nil
}

// BestStep returns the best step by BestMetricKey, or the latest step when
// no metric is configured.
func (m *Manager) BestStep() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.BestMetricKey == "" {
		return m.latestLocked()
	}
	rc := m.cfg.retention()
	rc.BestN = 1
	best := retention.Best(retentionRecords(m.records), rc)
	if len(best) == 0 {
		return 0, false
	}
	return best[0], true
}

// ShouldSave reports whether step is due for a checkpoint.
//
// Steps at or below the latest saved step never are. Otherwise a step is
// due when it is a multiple of SaveIntervalSteps or ShouldSaveExpr holds.
// With neither configured every new step is due.
func (m *Manager) ShouldSave(step int64) (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ckerrors.New(ckerrors.KindManagerClosed, "should_save", m.root, nil)
	}
	latest, hasLatest := m.latestLocked()
	lastSave := m.lastSave
	m.mu.Unlock()

	if hasLatest && step <= latest {
		return false, nil
	}
	if m.cfg.SaveIntervalSteps <= 0 && m.predicate == nil {
		return true, nil
	}
	if m.cfg.SaveIntervalSteps > 0 && step%m.cfg.SaveIntervalSteps == 0 {
		return true, nil
	}
	if m.predicate == nil {
		return false, nil
	}

	vars := expr.Vars{Step: step, LatestStep: -1, StepsSinceSave: step + 1, HasCheckpoint: hasLatest}
	if hasLatest {
		vars.LatestStep = latest
		vars.StepsSinceSave = step - latest
	}
	if !lastSave.IsZero() {
		vars.SecondsSinceSave = time.Since(lastSave).Seconds()
	}
	return m.predicate.Eval(vars)
}

// Delete removes a committed checkpoint.
func (m *Manager) Delete(step int64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ckerrors.New(ckerrors.KindManagerClosed, "delete", m.root, nil)
	}
	i, ok := m.findLocked(step)
	if !ok {
		m.mu.Unlock()
		return ckerrors.NotFound("delete", m.stepPath(step))
	}
	rec := m.records[i]
	m.records = slices.Delete(m.records, i, i+1)
	m.mu.Unlock()

	if err := m.backend.RemoveAll(rec.Path); err != nil {
		return ckerrors.IOFailure("delete", rec.Path, err)
	}
	observability.LogPruned(m.logger, rec.Step, rec.Path)
	return nil
}

// Reload waits for any pending save, then rescans the root. Use it when
// another process may have written or deleted checkpoints.
func (m *Manager) Reload(ctx context.Context) error {
	if err := m.WaitUntilFinished(); err != nil {
		return err
	}
	records, err := m.scan(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ckerrors.New(ckerrors.KindManagerClosed, "reload", m.root, nil)
	}
	m.records = records
	return nil
}

// Prune applies the retention policy to the current checkpoints and
// returns the steps it deleted. Saves already prune; Prune is for roots
// opened with a tighter policy than they were written with.
func (m *Manager) Prune(ctx context.Context) ([]int64, error) {
	if err := m.WaitUntilFinished(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ckerrors.New(ckerrors.KindManagerClosed, "prune", m.root, nil)
	}
	deletions := PlanRetention(m.records, m.cfg)
	var pruned []Record
	m.records = slices.DeleteFunc(m.records, func(r Record) bool {
		if _, found := slices.BinarySearch(deletions, r.Step); found {
			pruned = append(pruned, r)
			return true
		}
		return false
	})
	m.mu.Unlock()

	m.prune(ctx, pruned)
	return deletions, nil
}

// Inspect returns the manifest and leaf descriptors of a checkpoint
// without reading any leaf data.
func (m *Manager) Inspect(step int64) (*codec.Manifest, []codec.LeafDescriptor, error) {
	p, err := m.committedPath("inspect", step)
	if err != nil {
		return nil, nil, err
	}
	return m.ckpt.Codec().ReadDescriptors(p)
}

// Verify reads every artifact of a checkpoint and checks it against its
// descriptor. It fails with CorruptCheckpoint on the first mismatch.
func (m *Manager) Verify(ctx context.Context, step int64) error {
	p, err := m.committedPath("verify", step)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = m.ckpt.Codec().Verify(p)
	return err
}

func (m *Manager) committedPath(op string, step int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ckerrors.New(ckerrors.KindManagerClosed, op, m.root, nil)
	}
	i, ok := m.findLocked(step)
	if !ok {
		return "", ckerrors.NotFound(op, m.stepPath(step))
	}
	return m.records[i].Path, nil
}
