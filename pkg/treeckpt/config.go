package treeckpt

import (
	"fmt"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/expr"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/retention"
)

// Config controls a Manager.
type Config struct {
	// MaxToKeep keeps this many most recent checkpoints. Zero or negative
	// keeps everything.
	MaxToKeep int

	// KeepPeriod also keeps every step divisible by it.
	KeepPeriod int64

	// StepPrefix names step directories "<prefix>_<step>". Empty means the
	// bare step number.
	StepPrefix string

	// Create makes the root directory if it does not exist.
	Create bool

	// BestMetricKey also keeps the BestN best checkpoints by this metric.
	BestMetricKey  string
	BestMetricMode retention.Mode

	// BestN defaults to MaxToKeep.
	BestN int

	// KeepCheckpointsWithoutMetrics keeps checkpoints missing BestMetricKey.
	KeepCheckpointsWithoutMetrics bool

	// Async runs saves on a background worker.
	Async bool

	// SaveIntervalSteps makes ShouldSave true for multiples of it.
	SaveIntervalSteps int64

	// ShouldSaveExpr is an expr-lang predicate consulted by ShouldSave.
	// See the expr package for the available variables.
	ShouldSaveExpr string

	// Compression applied to leaf artifacts.
	Compression codec.Compression
}

// Validate checks the config for values that can never work.
func (c Config) Validate() error {
	if c.KeepPeriod < 0 {
		return fmt.Errorf("keep_period must not be negative, got %d", c.KeepPeriod)
	}
	if c.BestN < 0 {
		return fmt.Errorf("best_n must not be negative, got %d", c.BestN)
	}
	if c.SaveIntervalSteps < 0 {
		return fmt.Errorf("save_interval_steps must not be negative, got %d", c.SaveIntervalSteps)
	}
	if _, err := retention.ParseMode(string(c.BestMetricMode)); err != nil {
		return err
	}
	if _, err := codec.ParseCompression(string(c.Compression)); err != nil {
		return err
	}
	if c.ShouldSaveExpr != "" {
		if _, err := expr.Compile(c.ShouldSaveExpr); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) retention() retention.Config {
	mode, _ := retention.ParseMode(string(c.BestMetricMode))
	return retention.Config{
		MaxToKeep:                     c.MaxToKeep,
		KeepPeriod:                    c.KeepPeriod,
		BestMetricKey:                 c.BestMetricKey,
		BestMode:                      mode,
		BestN:                         c.BestN,
		KeepCheckpointsWithoutMetrics: c.KeepCheckpointsWithoutMetrics,
	}
}
