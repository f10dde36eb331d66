package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordSave(context.Context, int64, time.Duration, bool, error) {}
func (NoopMetrics) RecordRestore(context.Context, time.Duration, error)           {}
func (NoopMetrics) RecordPrune(context.Context, int, int)                         {}
func (NoopMetrics) RecordRecovery(context.Context, int)                           {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartSaveSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSaveSpan(ctx context.Context, _ string, _ int64) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartRestoreSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRestoreSpan(ctx context.Context, _ string, _ int64) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
