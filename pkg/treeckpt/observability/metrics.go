package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records checkpoint metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSave records a finished save with its size, duration and outcome.
	RecordSave(ctx context.Context, sizeBytes int64, duration time.Duration, async bool, err error)

	// RecordRestore records a finished restore.
	RecordRestore(ctx context.Context, duration time.Duration, err error)

	// RecordPrune records one retention pass.
	RecordPrune(ctx context.Context, deleted, failed int)

	// RecordRecovery records directories removed by the startup scan.
	RecordRecovery(ctx context.Context, removed int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saves          metric.Int64Counter
	saveErrors     metric.Int64Counter
	saveLatency    metric.Float64Histogram
	checkpointSize metric.Int64Histogram
	restores       metric.Int64Counter
	restoreErrors  metric.Int64Counter
	restoreLatency metric.Float64Histogram
	pruned         metric.Int64Counter
	pruneErrors    metric.Int64Counter
	recovered      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily builds the metrics on the global meter provider.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("treeckpt")
	m := &otelMetrics{}
	var err error

	if m.saves, err = meter.Int64Counter("treeckpt.save.count",
		metric.WithDescription("Number of checkpoint saves"),
	); err != nil {
		return nil, err
	}
	if m.saveErrors, err = meter.Int64Counter("treeckpt.save.errors",
		metric.WithDescription("Number of failed checkpoint saves"),
	); err != nil {
		return nil, err
	}
	if m.saveLatency, err = meter.Float64Histogram("treeckpt.save.latency_ms",
		metric.WithDescription("Checkpoint save latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("treeckpt.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.restores, err = meter.Int64Counter("treeckpt.restore.count",
		metric.WithDescription("Number of checkpoint restores"),
	); err != nil {
		return nil, err
	}
	if m.restoreErrors, err = meter.Int64Counter("treeckpt.restore.errors",
		metric.WithDescription("Number of failed checkpoint restores"),
	); err != nil {
		return nil, err
	}
	if m.restoreLatency, err = meter.Float64Histogram("treeckpt.restore.latency_ms",
		metric.WithDescription("Checkpoint restore latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.pruned, err = meter.Int64Counter("treeckpt.prune.deleted",
		metric.WithDescription("Number of checkpoints deleted by retention"),
	); err != nil {
		return nil, err
	}
	if m.pruneErrors, err = meter.Int64Counter("treeckpt.prune.errors",
		metric.WithDescription("Number of retention deletions that failed"),
	); err != nil {
		return nil, err
	}
	if m.recovered, err = meter.Int64Counter("treeckpt.recovery.removed",
		metric.WithDescription("Number of incomplete checkpoints removed at startup"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordSave(ctx context.Context, sizeBytes int64, duration time.Duration, async bool, err error) {
	attrs := metric.WithAttributes(attribute.Bool("async", async))
	m.saves.Add(ctx, 1, attrs)
	m.saveLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.saveErrors.Add(ctx, 1, attrs)
		return
	}
	m.checkpointSize.Record(ctx, sizeBytes, attrs)
}

func (m *otelMetrics) RecordRestore(ctx context.Context, duration time.Duration, err error) {
	m.restores.Add(ctx, 1)
	m.restoreLatency.Record(ctx, float64(duration.Milliseconds()))
	if err != nil {
		m.restoreErrors.Add(ctx, 1)
	}
}

func (m *otelMetrics) RecordPrune(ctx context.Context, deleted, failed int) {
	if deleted > 0 {
		m.pruned.Add(ctx, int64(deleted))
	}
	if failed > 0 {
		m.pruneErrors.Add(ctx, int64(failed))
	}
}

func (m *otelMetrics) RecordRecovery(ctx context.Context, removed int) {
	if removed > 0 {
		m.recovered.Add(ctx, int64(removed))
	}
}
