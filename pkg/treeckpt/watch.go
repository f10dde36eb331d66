package treeckpt

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
)

// DefaultPollInterval is how often WaitForNewCheckpoint rescans the root
// in case a filesystem event was missed.
const DefaultPollInterval = 2 * time.Second

// WaitForNewCheckpoint blocks until a committed checkpoint with a step
// greater than after appears under root, and returns the greatest such
// step. It is meant for evaluator processes that follow a training run.
//
// root must be a local directory. Directory events wake the scan early;
// a periodic rescan covers filesystems that do not deliver events.
func WaitForNewCheckpoint(ctx context.Context, root, prefix string, after int64, pollInterval time.Duration) (int64, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	backend := storage.NewFSBackend()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Clean(root)); err != nil {
		return 0, ckerrors.IOFailure("watch", root, err)
	}

	// Scan after the watch is in place so nothing committed in between is missed.
	if step, ok, err := newestCommitted(backend, root, prefix, after); err != nil || ok {
		return step, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return 0, fmt.Errorf("watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if _, isStep := ParseStepDirName(prefix, filepath.Base(event.Name)); !isStep {
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0, fmt.Errorf("watcher closed")
			}
			return 0, ckerrors.IOFailure("watch", root, err)
		case <-ticker.C:
		}

		step, ok, err := newestCommitted(backend, root, prefix, after)
		if err != nil || ok {
			return step, err
		}
	}
}

// newestCommitted returns the greatest committed step above after.
func newestCommitted(b storage.Backend, root, prefix string, after int64) (int64, bool, error) {
	records, err := List(b, filepath.ToSlash(root), prefix)
	if err != nil {
		return 0, false, err
	}
	if len(records) == 0 || records[len(records)-1].Step <= after {
		return 0, false, nil
	}
	return records[len(records)-1].Step, true, nil
}
