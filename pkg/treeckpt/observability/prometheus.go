package observability

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements MetricsRecorder using Prometheus metrics.
type PrometheusRecorder struct {
	saveDuration    *prom.HistogramVec
	saveResults     *prom.CounterVec
	checkpointBytes prom.Histogram
	restoreDuration prom.Histogram
	restoreResults  *prom.CounterVec
	pruned          *prom.CounterVec
	recovered       prom.Counter
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		saveDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "treeckpt",
			Name:      "save_duration_seconds",
			Help:      "Duration of checkpoint saves",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
		saveResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "treeckpt",
			Name:      "save_results_total",
			Help:      "Checkpoint saves by outcome",
		}, []string{"mode", "result"}),
		checkpointBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "treeckpt",
			Name:      "checkpoint_size_bytes",
			Help:      "Size of committed checkpoints",
			Buckets:   prom.ExponentialBuckets(1<<10, 4, 12),
		}),
		restoreDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "treeckpt",
			Name:      "restore_duration_seconds",
			Help:      "Duration of checkpoint restores",
			Buckets:   prom.DefBuckets,
		}),
		restoreResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "treeckpt",
			Name:      "restore_results_total",
			Help:      "Checkpoint restores by outcome",
		}, []string{"result"}),
		pruned: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "treeckpt",
			Name:      "pruned_total",
			Help:      "Checkpoints deleted by retention, by outcome",
		}, []string{"result"}),
		recovered: prom.NewCounter(prom.CounterOpts{
			Namespace: "treeckpt",
			Name:      "recovery_removed_total",
			Help:      "Incomplete checkpoints removed at startup",
		}),
	}
	reg.MustRegister(pr.saveDuration, pr.saveResults, pr.checkpointBytes,
		pr.restoreDuration, pr.restoreResults, pr.pruned, pr.recovered)
	return pr
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func modeLabel(async bool) string {
	if async {
		return "async"
	}
	return "sync"
}

func (p *PrometheusRecorder) RecordSave(_ context.Context, sizeBytes int64, d time.Duration, async bool, err error) {
	if p == nil {
		return
	}
	mode := modeLabel(async)
	p.saveDuration.WithLabelValues(mode).Observe(d.Seconds())
	p.saveResults.WithLabelValues(mode, resultLabel(err)).Inc()
	if err == nil {
		p.checkpointBytes.Observe(float64(sizeBytes))
	}
}

func (p *PrometheusRecorder) RecordRestore(_ context.Context, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.restoreDuration.Observe(d.Seconds())
	p.restoreResults.WithLabelValues(resultLabel(err)).Inc()
}

func (p *PrometheusRecorder) RecordPrune(_ context.Context, deleted, failed int) {
	if p == nil {
		return
	}
	p.pruned.WithLabelValues("success").Add(float64(deleted))
	p.pruned.WithLabelValues("failed").Add(float64(failed))
}

func (p *PrometheusRecorder) RecordRecovery(_ context.Context, removed int) {
	if p == nil {
		return
	}
	p.recovered.Add(float64(removed))
}
