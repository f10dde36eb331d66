/*
Package treeckpt manages a directory of step-indexed checkpoints of
tree-shaped program state.

# Overview

A Manager owns one checkpoint root. Each save writes a tree (nested maps and
sequences of scalars, strings and typed arrays) into a step directory,
atomically: a checkpoint is either fully present or absent. After every
committed save a retention policy decides which older checkpoints to delete.

Saves may run on a background worker. At most one save is in flight; a
second Save while one is pending fails rather than queueing.

# Basic Usage

	mgr, err := treeckpt.New("/ckpt/run-7", treeckpt.Config{
	    MaxToKeep: 3,
	    Create:    true,
	    Async:     true,
	})
	if err != nil {
	    log.Fatal(err)
	}
	defer mgr.Close()

	state := tree.Map{
	    "params": tree.Map{"w": tree.FromFloat32s([]int{2}, []float32{1, 2})},
	    "step":   tree.Int(100),
	}
	if err := mgr.Save(ctx, 100, state, treeckpt.WithMetrics(map[string]float64{"loss": 0.3})); err != nil {
	    log.Fatal(err)
	}

	restored, err := mgr.Restore(ctx, treeckpt.WithTarget(state))

# Crash Recovery

New scans the root and silently deletes staging directories and step
directories that lack the completion marker or have an unreadable
manifest. Those are leftovers of interrupted writes and never surface as
checkpoints.

# Errors

Every failure carries a kind from the errors subpackage; the sentinels are
re-exported here:

	if errors.Is(err, treeckpt.ErrNonMonotonicStep) {
	    // step already saved
	}

A failed asynchronous save is reported by the next Save or
WaitUntilFinished call.

# Storage

The default backend is the local filesystem. WithBackend accepts any
storage.Backend, including the in-memory and SQLite backends, or one opened
from a URI with storage.Open.

# Tooling

List reads the committed checkpoints under a root without deleting
anything, so it can run next to a live writer. Evaluators follow a run
with WaitForNewCheckpoint. The treeckpt command wraps both, plus Inspect,
Verify and Prune.
*/
package treeckpt
