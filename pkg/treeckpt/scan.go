package treeckpt

import (
	"context"
	"path"
	"slices"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/observability"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
)

// List returns the committed checkpoints under root in ascending step
// order. Unlike opening a Manager it never deletes anything, so it is safe
// to run against a root another process is writing to.
func List(backend storage.Backend, root, prefix string) ([]Record, error) {
	return scanRoot(codec.New(backend), root, prefix, nil)
}

// scan lists the committed checkpoints under the root and deletes the
// leftovers of interrupted writes: staging directories, step directories
// without the completion marker, and step directories whose manifest
// cannot be read. Removal failures are logged; they never fail the scan.
func (m *Manager) scan(ctx context.Context) ([]Record, error) {
	removed := 0
	discard := func(p, reason string) {
		if err := m.backend.RemoveAll(p); err != nil {
			m.logger.Warn("could not remove incomplete checkpoint",
				"path", p, "error", err.Error())
			return
		}
		removed++
		observability.LogRecoveryRemoved(m.logger, p, reason)
	}

	records, err := scanRoot(m.ckpt.Codec(), m.root, m.cfg.StepPrefix, discard)
	if err != nil {
		return nil, err
	}

	m.metrics.RecordRecovery(ctx, removed)
	if len(records) > 0 {
		m.mu.Lock()
		if last := records[len(records)-1].Time; last.After(m.lastSave) {
			m.lastSave = last
		}
		m.mu.Unlock()
	}
	return records, nil
}

// scanRoot reads every step directory under root. Anything that is not a
// committed checkpoint goes to discard, when set.
func scanRoot(cd *codec.Codec, root, prefix string, discard func(p, reason string)) ([]Record, error) {
	entries, err := cd.Backend().List(root)
	if err != nil {
		return nil, ckerrors.IOFailure("scan", root, err)
	}
	if discard == nil {
		discard = func(string, string) {}
	}

	var records []Record
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		p := path.Join(root, e.Name)
		if codec.IsStagingName(e.Name) {
			discard(p, "staging directory")
			continue
		}
		step, ok := ParseStepDirName(prefix, e.Name)
		if !ok {
			continue
		}
		committed, err := cd.IsCommitted(p)
		if err != nil {
			return nil, err
		}
		if !committed {
			discard(p, "missing completion marker")
			continue
		}
		manifest, err := cd.ReadManifest(p)
		if err != nil {
			if ckerrors.KindOf(err) == ckerrors.KindIOFailure {
				return nil, err
			}
			discard(p, "unreadable manifest")
			continue
		}
		records = append(records, Record{
			Step:    step,
			Path:    p,
			Time:    manifest.CreatedAt,
			Metrics: manifest.Metrics,
		})
	}

	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Step < b.Step:
			return -1
		case a.Step > b.Step:
			return 1
		}
		return 0
	})
	return records, nil
}
