// Package observability provides logging, metrics and tracing helpers for
// claimgraph runs.
//
// Logging uses slog. Metrics and tracing use the global OpenTelemetry
// providers. Every helper tolerates a nil logger, and no-op recorders are
// provided for when metrics or tracing are disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, subjects, maxRetries int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run starting",
		slog.String("run_id", runID),
		slog.Int("subjects", subjects),
		slog.Int("max_retries", maxRetries),
	)
}

// LogRunComplete logs a run that terminated without error.
// passed is the final audit verdict; a run may complete with a failing audit.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stages, retries int, passed bool) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("stages_executed", stages),
		slog.Int("retry_count", retries),
		slog.Bool("audit_passed", passed),
	)
}

// LogRunError logs a run that terminated with an error.
func LogRunError(logger *slog.Logger, runID, errMsg string, durationMs float64, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("pipeline run failed",
		slog.String("run_id", runID),
		slog.String("error", errMsg),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_stage", lastStage),
	)
}

// LogStageStart logs the start of a stage.
func LogStageStart(logger *slog.Logger, stage string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage", stage),
		slog.Int("attempt", attempt),
	)
}

// LogStageComplete logs a stage that returned an update.
func LogStageComplete(logger *slog.Logger, stage string, durationMs float64, next string) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
		slog.String("next_action", next),
	)
}

// LogStageFailure logs a stage whose update carried an error.
func LogStageFailure(logger *slog.Logger, stage, errMsg string) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("error", errMsg),
	)
}

// LogRetry logs a failed audit that sends the run back to coding.
func LogRetry(logger *slog.Logger, retry, maxRetries int) {
	if logger == nil {
		return
	}
	logger.Warn("audit failed, retry scheduled",
		slog.Int("retry", retry),
		slog.Int("max_retries", maxRetries),
	)
}

// LogDefect logs a broken orchestration invariant: an illegal routing
// signal, a precondition breach, a panic or a rejected merge.
// These point at a bug, not at bad input.
func LogDefect(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Error("pipeline invariant violated",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs a saved snapshot.
func LogCheckpoint(logger *slog.Logger, stage string, sequence, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("stage", stage),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure that did not stop the run.
func LogCheckpointError(logger *slog.Logger, stage, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("stage", stage),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the elapsed milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
