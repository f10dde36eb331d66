package treeckpt

import (
	"log/slog"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/observability"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// managerConfig holds the services a Manager uses.
type managerConfig struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	backend storage.Backend
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder. Default: no-op.
//
// Example:
//
//	mgr, err := treeckpt.New(root, cfg,
//	    treeckpt.WithMetricsRecorder(observability.NewMetricsRecorder()))
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *managerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the span manager. Default: no-op.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *managerConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithBackend stores checkpoints on b instead of the local filesystem.
// The caller keeps ownership; Close does not close b.
func WithBackend(b storage.Backend) Option {
	return func(c *managerConfig) {
		c.backend = b
	}
}

// saveConfig holds per-save settings.
type saveConfig struct {
	metrics  map[string]float64
	metadata map[string]string
	force    bool
}

// SaveOption configures a Save.
type SaveOption func(*saveConfig)

// WithMetrics attaches metrics to the checkpoint. They drive best-metric
// retention and BestStep.
func WithMetrics(metrics map[string]float64) SaveOption {
	return func(c *saveConfig) {
		c.metrics = metrics
	}
}

// WithMetadata attaches string metadata to the checkpoint manifest.
func WithMetadata(metadata map[string]string) SaveOption {
	return func(c *saveConfig) {
		c.metadata = metadata
	}
}

// WithForce replaces a completed checkpoint that already occupies the
// step directory.
func WithForce() SaveOption {
	return func(c *saveConfig) {
		c.force = true
	}
}

// restoreConfig holds per-restore settings.
type restoreConfig struct {
	step        int64
	hasStep     bool
	target      tree.Node
	materialize tree.Materializer
}

// RestoreOption configures a Restore.
type RestoreOption func(*restoreConfig)

// AtStep restores a specific step instead of the latest.
func AtStep(step int64) RestoreOption {
	return func(c *restoreConfig) {
		c.step = step
		c.hasStep = true
	}
}

// WithTarget drives reconstruction from a reference tree.
func WithTarget(target tree.Node) RestoreOption {
	return func(c *restoreConfig) {
		c.target = target
	}
}

// WithMaterializer sets how array leaves are allocated on restore.
func WithMaterializer(m tree.Materializer) RestoreOption {
	return func(c *restoreConfig) {
		c.materialize = m
	}
}
