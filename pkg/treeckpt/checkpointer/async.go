package checkpointer

import (
	"context"
	"log/slog"
	"sync"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// Handle tracks one asynchronous save.
type Handle struct {
	path string
	done chan struct{}
	res  Result
	err  error
}

// Path returns the destination of the save.
func (h *Handle) Path() string {
	return h.path
}

// Done is closed when the save finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the save finishes and returns its outcome.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.res, h.err
}

// CommitHook runs on the worker after a successful write, before the
// handle completes.
type CommitHook func(Result)

// FailureHook runs on the worker after a failed write, before the handle
// completes.
type FailureHook func(path string, err error)

type job struct {
	path   string
	node   tree.Node
	cfg    saveConfig
	handle *Handle
}

// AsyncCheckpointer saves on a single background worker.
//
// A write failure is kept and returned by the next WaitUntilFinished or
// Save call, whichever comes first.
type AsyncCheckpointer struct {
	inner     *Checkpointer
	onCommit  CommitHook
	onFailure FailureHook

	jobs       chan job
	workerDone chan struct{}

	mu sync.Mutex
	// pending blocks new saves; it is released before the hooks run so a
	// hook may unblock the next Save. inflight lasts until the handle
	// completes.
	pending  *Handle
	inflight *Handle
	err      error
	closed   bool
}

// AsyncOption configures an AsyncCheckpointer.
type AsyncOption func(*AsyncCheckpointer)

// WithCommitHook sets a hook run on the worker after every successful write.
func WithCommitHook(hook CommitHook) AsyncOption {
	return func(a *AsyncCheckpointer) {
		a.onCommit = hook
	}
}

// WithFailureHook sets a hook run on the worker after every failed write.
// The failure is still buffered for the next Save or WaitUntilFinished.
func WithFailureHook(hook FailureHook) AsyncOption {
	return func(a *AsyncCheckpointer) {
		a.onFailure = hook
	}
}

// NewAsync starts the background worker. Call Close to stop it.
func NewAsync(inner *Checkpointer, opts ...AsyncOption) *AsyncCheckpointer {
	a := &AsyncCheckpointer{
		inner:      inner,
		jobs:       make(chan job, 1),
		workerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.worker()
	return a
}

// Checkpointer returns the synchronous checkpointer the worker writes with.
func (a *AsyncCheckpointer) Checkpointer() *Checkpointer {
	return a.inner
}

// Save deep-copies n and enqueues the write.
//
// It fails with ConcurrentSaveInProgress while another save is in flight,
// and with AlreadyExists (checked before enqueueing) when p holds a
// completed checkpoint and WithForce is not given. The caller may mutate n
// as soon as Save returns.
func (a *AsyncCheckpointer) Save(ctx context.Context, p string, n tree.Node, opts ...SaveOption) (*Handle, error) {
	cfg := buildSaveConfig(opts)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ckerrors.New(ckerrors.KindManagerClosed, "save", p, nil)
	}
	if err := a.err; err != nil {
		a.err = nil
		return nil, err
	}
	if a.pending != nil {
		return nil, ckerrors.New(ckerrors.KindConcurrentSave, "save", p, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.inner.checkDestination(p, cfg.force); err != nil {
		return nil, err
	}
	if err := tree.Validate(n); err != nil {
		return nil, err
	}

	h := &Handle{path: p, done: make(chan struct{})}
	a.pending = h
	a.inflight = h
	a.jobs <- job{
		path:   p,
		node:   tree.Clone(n),
		cfg:    cfg,
		handle: h,
	}
	return h, nil
}

func (a *AsyncCheckpointer) worker() {
	defer close(a.workerDone)

	for j := range a.jobs {
		res, err := a.inner.write(j.path, j.node, j.cfg)

		a.mu.Lock()
		a.pending = nil
		if err != nil && a.err == nil {
			a.err = err
		}
		a.mu.Unlock()

		if err == nil && a.onCommit != nil {
			a.onCommit(res)
		}
		if err != nil {
			a.inner.logger.Debug("async checkpoint failed",
				slog.String("path", j.path),
				slog.String("error", err.Error()),
			)
			if a.onFailure != nil {
				a.onFailure(j.path, err)
			}
		}

		a.mu.Lock()
		if a.inflight == j.handle {
			a.inflight = nil
		}
		a.mu.Unlock()

		j.handle.res, j.handle.err = res, err
		close(j.handle.done)
	}
}

// Pending reports whether a save is in flight.
func (a *AsyncCheckpointer) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// TakeError returns the buffered failure without waiting, clearing it.
func (a *AsyncCheckpointer) TakeError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.err
	a.err = nil
	return err
}

// WaitUntilFinished blocks until the in-flight save, if any, completes and
// returns the buffered failure, clearing it. It is a no-op when idle.
func (a *AsyncCheckpointer) WaitUntilFinished() error {
	a.mu.Lock()
	h := a.inflight
	a.mu.Unlock()

	if h != nil {
		<-h.done
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.err
	a.err = nil
	return err
}

// Close waits for the in-flight save and stops the worker.
// It returns the buffered failure, if any. Close is idempotent.
func (a *AsyncCheckpointer) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	err := a.WaitUntilFinished()
	close(a.jobs)
	<-a.workerDone
	return err
}
