package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a test meter provider and returns its reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestOtelMetrics(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordSave(ctx, 4096, 20*time.Millisecond, false, nil)
	m.RecordSave(ctx, 0, 5*time.Millisecond, true, errors.New("disk full"))
	m.RecordRestore(ctx, 10*time.Millisecond, nil)
	m.RecordPrune(ctx, 3, 1)
	m.RecordRecovery(ctx, 2)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "treeckpt.save.count"))
	assert.Equal(t, int64(1), sumValue(t, rm, "treeckpt.save.errors"))
	assert.Equal(t, int64(1), sumValue(t, rm, "treeckpt.restore.count"))
	assert.Equal(t, int64(3), sumValue(t, rm, "treeckpt.prune.deleted"))
	assert.Equal(t, int64(1), sumValue(t, rm, "treeckpt.prune.errors"))
	assert.Equal(t, int64(2), sumValue(t, rm, "treeckpt.recovery.removed"))

	size := findMetric(rm, "treeckpt.checkpoint.size_bytes")
	require.NotNil(t, size)
	hist, ok := size.Data.(metricdata.Histogram[int64])
	require.True(t, ok, "Expected Histogram type")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, int64(4096), hist.DataPoints[0].Sum)

	save := findMetric(rm, "treeckpt.save.count")
	sum := save.Data.(metricdata.Sum[int64])
	modes := map[bool]bool{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value("async")
		require.True(t, ok)
		modes[v.AsBool()] = true
	}
	assert.Len(t, modes, 2)
}
