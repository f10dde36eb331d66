// Package observability provides logging, metrics and tracing for
// checkpoint operations.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds the checkpoint root to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "/ckpt/run-7")
//	enriched.Info("saving") // includes root
func EnrichLogger(logger *slog.Logger, root string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("root", root))
}

// LogSaveStart logs the start of a save.
func LogSaveStart(logger *slog.Logger, step int64, path string, async bool) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint save starting",
		slog.Int64("step", step),
		slog.String("path", path),
		slog.Bool("async", async),
	)
}

// LogSaveCommitted logs a committed checkpoint.
func LogSaveCommitted(logger *slog.Logger, step int64, leaves int, sizeBytes int64, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint committed",
		slog.Int64("step", step),
		slog.Int("leaves", leaves),
		slog.Int64("size_bytes", sizeBytes),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
}

// LogSaveError logs a failed save.
func LogSaveError(logger *slog.Logger, step int64, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint save failed",
		slog.Int64("step", step),
		slog.String("error", err.Error()),
	)
}

// LogRestore logs a restore.
func LogRestore(logger *slog.Logger, step int64, duration time.Duration, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("checkpoint restore failed",
			slog.Int64("step", step),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("checkpoint restored",
		slog.Int64("step", step),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
}

// LogPruned logs a checkpoint removed by retention.
func LogPruned(logger *slog.Logger, step int64, path string) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint pruned",
		slog.Int64("step", step),
		slog.String("path", path),
	)
}

// LogPruneError logs a retention deletion that failed. The save it
// followed still succeeds.
func LogPruneError(logger *slog.Logger, step int64, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint prune failed",
		slog.Int64("step", step),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// LogRecoveryRemoved logs a directory deleted by the startup scan.
func LogRecoveryRemoved(logger *slog.Logger, path, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("removed incomplete checkpoint",
		slog.String("path", path),
		slog.String("reason", reason),
	)
}
