package config

import (
	"fmt"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/retention"
)

// Keys understood by ManagerConfig and Storage.
const (
	KeyMaxToKeep                     = "max_to_keep"
	KeyKeepPeriod                    = "keep_period"
	KeyStepPrefix                    = "step_prefix"
	KeyCreate                        = "create"
	KeyBestMetricKey                 = "best_metric_key"
	KeyBestMetricMode                = "best_metric_mode"
	KeyBestN                         = "best_n"
	KeyKeepCheckpointsWithoutMetrics = "keep_checkpoints_without_metrics"
	KeyAsync                         = "async"
	KeySaveIntervalSteps             = "save_interval_steps"
	KeyShouldSave                    = "should_save"
	KeyCompression                   = "compression"
	KeyStorage                       = "storage"
	KeyRoot                          = "root"
)

var managerKinds = map[string]Kind{
	KeyMaxToKeep:                     KindInt,
	KeyKeepPeriod:                    KindInt,
	KeyStepPrefix:                    KindString,
	KeyCreate:                        KindBool,
	KeyBestMetricKey:                 KindString,
	KeyBestMetricMode:                KindString,
	KeyBestN:                         KindInt,
	KeyKeepCheckpointsWithoutMetrics: KindBool,
	KeyAsync:                         KindBool,
	KeySaveIntervalSteps:             KindInt,
	KeyShouldSave:                    KindString,
	KeyCompression:                   KindString,
	KeyStorage:                       KindString,
	KeyRoot:                          KindString,
}

// ManagerConfig builds a manager configuration. Missing keys keep the
// zero value, except create which defaults to true. A key that is set but
// does not convert fails with ErrInvalidValue. The result is validated.
func ManagerConfig(c Config) (treeckpt.Config, error) {
	if err := c.Check(managerKinds); err != nil {
		return treeckpt.Config{}, err
	}
	mode, err := retention.ParseMode(c.String(KeyBestMetricMode, ""))
	if err != nil {
		return treeckpt.Config{}, fmt.Errorf("%s: %w", KeyBestMetricMode, err)
	}
	compression, err := codec.ParseCompression(c.String(KeyCompression, ""))
	if err != nil {
		return treeckpt.Config{}, fmt.Errorf("%s: %w", KeyCompression, err)
	}

	cfg := treeckpt.Config{
		MaxToKeep:                     c.Int(KeyMaxToKeep, 0),
		KeepPeriod:                    c.Int64(KeyKeepPeriod, 0),
		StepPrefix:                    c.String(KeyStepPrefix, ""),
		Create:                        c.Bool(KeyCreate, true),
		BestMetricKey:                 c.String(KeyBestMetricKey, ""),
		BestMetricMode:                mode,
		BestN:                         c.Int(KeyBestN, 0),
		KeepCheckpointsWithoutMetrics: c.Bool(KeyKeepCheckpointsWithoutMetrics, false),
		Async:                         c.Bool(KeyAsync, false),
		SaveIntervalSteps:             c.Int64(KeySaveIntervalSteps, 0),
		ShouldSaveExpr:                c.String(KeyShouldSave, ""),
		Compression:                   compression,
	}
	if err := cfg.Validate(); err != nil {
		return treeckpt.Config{}, err
	}
	return cfg, nil
}

// Storage returns the backend URI, empty for the local filesystem.
func Storage(c Config) string {
	return c.String(KeyStorage, "")
}

// Root returns the checkpoint root, or defaultVal.
func Root(c Config, defaultVal string) string {
	return c.String(KeyRoot, defaultVal)
}
