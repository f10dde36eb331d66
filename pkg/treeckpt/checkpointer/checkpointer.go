// Package checkpointer saves and restores single checkpoints.
//
// Checkpointer is synchronous: Save returns once every artifact is durable.
// AsyncCheckpointer runs writes on one background worker and hands back a
// Handle; at most one write may be in flight.
//
// Neither applies any retention policy. See the treeckpt package for a
// step-indexed manager built on top of them.
package checkpointer

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/tree"
)

// saveConfig holds per-save settings.
type saveConfig struct {
	force    bool
	metrics  map[string]float64
	metadata map[string]string
}

// SaveOption configures a save.
type SaveOption func(*saveConfig)

// WithForce replaces a completed checkpoint at the destination.
func WithForce() SaveOption {
	return func(c *saveConfig) {
		c.force = true
	}
}

// WithMetrics stores metrics in the checkpoint manifest.
func WithMetrics(metrics map[string]float64) SaveOption {
	return func(c *saveConfig) {
		c.metrics = metrics
	}
}

// WithMetadata stores string metadata in the checkpoint manifest.
func WithMetadata(metadata map[string]string) SaveOption {
	return func(c *saveConfig) {
		c.metadata = metadata
	}
}

func buildSaveConfig(opts []SaveOption) saveConfig {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Result describes a completed save.
type Result struct {
	Path     string
	Stats    codec.WriteStats
	Metrics  map[string]float64
	Duration time.Duration
}

// Checkpointer is a synchronous single-checkpoint primitive.
type Checkpointer struct {
	codec  *codec.Codec
	logger *slog.Logger
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checkpointer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a checkpointer over a codec.
func New(cd *codec.Codec, opts ...Option) *Checkpointer {
	c := &Checkpointer{
		codec:  cd,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codec returns the underlying codec.
func (c *Checkpointer) Codec() *codec.Codec {
	return c.codec
}

// Save writes n to p and blocks until it is durable.
//
// It fails with AlreadyExists when p holds a completed checkpoint and
// WithForce is not given. An incomplete leftover at p is replaced.
// A cancelled ctx stops the save before it writes anything; once writing
// has started it runs to completion.
func (c *Checkpointer) Save(ctx context.Context, p string, n tree.Node, opts ...SaveOption) (Result, error) {
	cfg := buildSaveConfig(opts)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := c.checkDestination(p, cfg.force); err != nil {
		return Result{}, err
	}
	return c.write(p, n, cfg)
}

func (c *Checkpointer) checkDestination(p string, force bool) error {
	if force {
		return nil
	}
	committed, err := c.codec.IsCommitted(p)
	if err != nil {
		return err
	}
	if committed {
		return ckerrors.New(ckerrors.KindAlreadyExists, "save", p, nil)
	}
	return nil
}

func (c *Checkpointer) write(p string, n tree.Node, cfg saveConfig) (Result, error) {
	start := time.Now()
	stats, err := c.codec.Write(p, n, codec.WriteOptions{
		Overwrite: true,
		Metrics:   cfg.metrics,
		Metadata:  cfg.metadata,
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Path: p, Stats: stats, Metrics: cfg.metrics, Duration: time.Since(start)}
	c.logger.Debug("checkpoint written",
		slog.String("path", p),
		slog.Int("leaves", stats.Leaves),
		slog.Int64("bytes", stats.Bytes),
	)
	return res, nil
}

// Restore reads the checkpoint at p.
// It fails with NotFound when p holds no completed checkpoint.
func (c *Checkpointer) Restore(ctx context.Context, p string, opts ...codec.ReadOption) (tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed, err := c.codec.IsCommitted(p)
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, ckerrors.NotFound("restore", p)
	}
	return c.codec.Read(p, opts...)
}
