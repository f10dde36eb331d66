// Package retention decides which checkpoints to delete.
//
// Decide is a pure function over the checkpoint history; the caller owns
// the actual deletion.
package retention

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Mode selects whether lower or higher metric values are better.
type Mode string

const (
	ModeMin Mode = "min"
	ModeMax Mode = "max"
)

// ParseMode parses a mode name. An empty string means ModeMin.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMin:
		return ModeMin, nil
	case ModeMax:
		return ModeMax, nil
	default:
		return "", fmt.Errorf("unknown best metric mode %q (want min or max)", s)
	}
}

// Record is what retention knows about one checkpoint.
type Record struct {
	Step    int64
	Time    time.Time
	Metrics map[string]float64
}

// metric returns the named metric. NaN is reported as absent since it
// has no place in the ordering.
func (r Record) metric(key string) (float64, bool) {
	v, ok := r.Metrics[key]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Config controls which checkpoints survive.
type Config struct {
	// MaxToKeep keeps the most recent checkpoints. Retention is disabled
	// when it is zero or negative.
	MaxToKeep int

	// KeepPeriod additionally keeps every step divisible by it.
	KeepPeriod int64

	// BestMetricKey additionally keeps the BestN best checkpoints by this
	// metric under BestMode.
	BestMetricKey string
	BestMode      Mode

	// BestN defaults to MaxToKeep.
	BestN int

	// KeepCheckpointsWithoutMetrics keeps checkpoints that lack
	// BestMetricKey instead of treating them as deletable.
	KeepCheckpointsWithoutMetrics bool
}

// Enabled reports whether the policy deletes anything at all.
func (c Config) Enabled() bool {
	return c.MaxToKeep > 0
}

// Decide returns the steps to delete, ascending.
//
// A checkpoint survives if any rule keeps it: it is among the MaxToKeep most
// recent, its step is a multiple of KeepPeriod, it is among the BestN best
// by BestMetricKey (ties go to the later step), or it lacks the metric and
// KeepCheckpointsWithoutMetrics is set.
func Decide(history []Record, cfg Config) []int64 {
	if !cfg.Enabled() || len(history) <= cfg.MaxToKeep {
		return nil
	}

	records := slices.Clone(history)
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Step < b.Step:
			return -1
		case a.Step > b.Step:
			return 1
		}
		return 0
	})

	keep := make(map[int64]bool, len(records))
	for _, r := range records[len(records)-cfg.MaxToKeep:] {
		keep[r.Step] = true
	}

	if cfg.KeepPeriod > 0 {
		for _, r := range records {
			if r.Step%cfg.KeepPeriod == 0 {
				keep[r.Step] = true
			}
		}
	}

	if cfg.BestMetricKey != "" {
		for _, step := range Best(records, cfg) {
			keep[step] = true
		}
		if cfg.KeepCheckpointsWithoutMetrics {
			for _, r := range records {
				if _, ok := r.metric(cfg.BestMetricKey); !ok {
					keep[r.Step] = true
				}
			}
		}
	}

	var deletions []int64
	for _, r := range records {
		if !keep[r.Step] {
			deletions = append(deletions, r.Step)
		}
	}
	return deletions
}

// Best returns the steps of the best checkpoints by BestMetricKey, best
// first. It returns at most BestN steps (MaxToKeep when BestN is unset) and
// ignores records without the metric. A NaN value counts as missing.
func Best(history []Record, cfg Config) []int64 {
	if cfg.BestMetricKey == "" {
		return nil
	}
	n := cfg.BestN
	if n <= 0 {
		n = cfg.MaxToKeep
	}

	type scored struct {
		step  int64
		value float64
	}
	var candidates []scored
	for _, r := range history {
		if v, ok := r.metric(cfg.BestMetricKey); ok {
			candidates = append(candidates, scored{step: r.Step, value: v})
		}
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if a.value != b.value {
			better := a.value < b.value
			if cfg.BestMode == ModeMax {
				better = a.value > b.value
			}
			if better {
				return -1
			}
			return 1
		}
		// Equal metric: the later checkpoint wins.
		switch {
		case a.step > b.step:
			return -1
		case a.step < b.step:
			return 1
		}
		return 0
	})

	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	steps := make([]int64, len(candidates))
	for i, c := range candidates {
		steps[i] = c.step
	}
	return steps
}
