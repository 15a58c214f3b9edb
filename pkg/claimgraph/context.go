package claimgraph

import (
	"context"
	"log/slog"
)

// Context is handed to every stage.
// It extends context.Context with the run's logger and metadata.
type Context interface {
	context.Context

	// Logger returns a logger enriched with run_id, stage and attempt.
	// Never nil.
	Logger() *slog.Logger

	// RunID identifies the current run.
	RunID() string

	// Stage is the stage being executed.
	Stage() Stage

	// Attempt is the coding pass number, starting at 1.
	Attempt() int
}

type stageContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	stage   Stage
	attempt int
}

func (c *stageContext) Logger() *slog.Logger { return c.logger }
func (c *stageContext) RunID() string        { return c.runID }
func (c *stageContext) Stage() Stage         { return c.stage }
func (c *stageContext) Attempt() int         { return c.attempt }

// newStageContext derives the per-stage context used by the orchestrator.
func newStageContext(ctx context.Context, logger *slog.Logger, runID string, stage Stage, attempt int) *stageContext {
	return &stageContext{
		Context: ctx,
		logger:  logger.With("run_id", runID, "stage", stage.String(), "attempt", attempt),
		runID:   runID,
		stage:   stage,
		attempt: attempt,
	}
}

// NewContext wraps ctx for calling a stage function directly, outside an
// orchestrated run. Useful in tests and tools.
func NewContext(ctx context.Context, runID string, stage Stage, attempt int) Context {
	return newStageContext(ctx, slog.Default(), runID, stage, attempt)
}
