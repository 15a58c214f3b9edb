package claimgraph

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
)

// config holds orchestrator-wide settings.
type config struct {
	logger         *slog.Logger
	metricsEnabled bool
	tracingEnabled bool
	records        RecordSource
	stageTimeout   time.Duration
	overrides      map[Stage]StageFunc
}

func defaultConfig() config {
	return config{
		logger:         slog.Default(),
		metricsEnabled: true,
		tracingEnabled: true,
	}
}

// Option configures an Orchestrator.
type Option func(*config)

// WithLogger sets the logger used for run and stage events.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables or disables OpenTelemetry metrics. Default: enabled.
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = enabled
	}
}

// WithTracing enables or disables OpenTelemetry spans. Default: enabled.
func WithTracing(enabled bool) Option {
	return func(c *config) {
		c.tracingEnabled = enabled
	}
}

// WithRecordSource lets the extractor load raw records before inference.
func WithRecordSource(src RecordSource) Option {
	return func(c *config) {
		c.records = src
	}
}

// WithStageTimeout bounds each stage invocation. Zero means no bound.
//
// The timeout applies to the context handed to the stage; the run context
// is unaffected, so an expired stage surfaces as a collaborator error.
func WithStageTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.stageTimeout = d
		}
	}
}

// WithStage replaces the built-in function for a stage.
// Intended for tests and custom pipelines.
//
// Example:
//
//	orch := claimgraph.New(inf, claimgraph.WithStage(claimgraph.StageAudit, myAuditor))
func WithStage(stage Stage, fn StageFunc) Option {
	return func(c *config) {
		if fn == nil || stage == StageTerminate {
			return
		}
		if c.overrides == nil {
			c.overrides = make(map[Stage]StageFunc)
		}
		c.overrides[stage] = fn
	}
}

// runConfig holds per-run settings.
type runConfig struct {
	runID                  string
	checkpointStore        checkpoint.Store
	checkpointFailureFatal bool

	// sequence counts stage invocations so far; resumed runs start above zero.
	sequence int
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithRunID sets the run identifier. Default: a random UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithCheckpointing saves a snapshot of the state after every stage.
// Checkpoint failures are logged and ignored unless
// WithCheckpointFailureFatal is also given.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal makes a failed checkpoint end the run with a
// CheckpointError.
func WithCheckpointFailureFatal() RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = true
	}
}
