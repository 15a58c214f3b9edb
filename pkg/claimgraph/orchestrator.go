package claimgraph

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/observability"
)

// Orchestrator drives runs through the Extract -> Code -> Audit pipeline.
//
// An Orchestrator is immutable after New and safe for concurrent use.
// Each Run owns its own State.
type Orchestrator struct {
	cfg     config
	stages  map[Stage]StageFunc
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New builds an orchestrator around an inference collaborator.
func New(inf Inferencer, opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Orchestrator{
		cfg: cfg,
		stages: map[Stage]StageFunc{
			StageExtract: NewExtractor(inf, cfg.records),
			StageCode:    NewCoder(inf),
			StageAudit:   NewAuditor(inf),
		},
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for stage, fn := range cfg.overrides {
		o.stages[stage] = fn
	}
	if cfg.metricsEnabled {
		o.metrics = observability.NewMetricsRecorder()
	}
	if cfg.tracingEnabled {
		o.spans = observability.NewSpanManager()
	}
	return o
}

// MaxInvocations is the hard cap on stage invocations for a run:
// one extraction plus a Code/Audit pair for the first pass and every retry.
func MaxInvocations(maxRetries int) int {
	return 1 + 2*(maxRetries+1)
}

// Run executes a full pipeline run and returns the terminal state.
//
// Run never returns an error. Failures of any kind (collaborators,
// preconditions, panics, cancellation, the invocation cap) are recorded in
// State.Error, and the returned state reflects everything that completed
// before the failure.
//
// Example:
//
//	final := orch.Run(ctx, []string{"condition-1a2b3c4d"}, 3)
//	if final.Failed() {
//	    log.Printf("run failed: %s", final.Error)
//	}
func (o *Orchestrator) Run(ctx context.Context, subjectIDs []string, maxRetries int, opts ...RunOption) State {
	rc := newRunConfig(opts)

	state := NewState(subjectIDs, maxRetries)
	if maxRetries < 0 {
		state.fail(ErrNegativeRetries)
		state.Next = ActionEnd
		observability.LogRunError(o.cfg.logger, rc.runID, state.Error, 0, "")
		o.metrics.RecordRun(ctx, observability.OutcomeError, 0)
		return state
	}

	return o.execute(ctx, state, &rc)
}

func newRunConfig(opts []RunOption) runConfig {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.runID == "" {
		rc.runID = uuid.NewString()
	}
	return rc
}

// execute is the loop shared by Run and Resume.
func (o *Orchestrator) execute(ctx context.Context, state State, rc *runConfig) State {
	logger := o.cfg.logger.With("run_id", rc.runID)
	startTime := time.Now()
	startSeq := rc.sequence

	observability.LogRunStart(o.cfg.logger, rc.runID, len(state.SubjectIDs), state.MaxRetries)

	ctx, runSpan := o.spans.StartRunSpan(ctx, rc.runID, len(state.SubjectIDs), state.MaxRetries)

	limit := MaxInvocations(state.MaxRetries)
	lastStage := ""

	for {
		stage := Route(state)
		if stage == StageTerminate {
			if state.Error == "" && !state.Next.Valid() {
				err := &IllegalActionError{Action: state.Next}
				observability.LogDefect(logger, lastStage, err)
				state.fail(err)
				state.Next = ActionEnd
			}
			break
		}

		if rc.sequence >= limit {
			state.fail(&MaxIterationsError{Max: limit, Stage: stage})
			state.Next = ActionEnd
			break
		}

		// Check for cancellation before executing the stage
		if err := ctx.Err(); err != nil {
			state.fail(&CancellationError{Stage: stage, Cause: err})
			state.Next = ActionEnd
			break
		}

		state = o.step(ctx, logger, state, stage, rc)
		rc.sequence++
		lastStage = stage.String()

		if rc.checkpointStore != nil {
			if err := o.saveCheckpoint(ctx, logger, rc, stage, state); err != nil {
				state.fail(err)
				state.Next = ActionEnd
			}
		}
	}

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	outcome := observability.OutcomeFailed
	switch {
	case state.Failed():
		outcome = observability.OutcomeError
	case state.Passed():
		outcome = observability.OutcomePassed
	}
	o.metrics.RecordRun(ctx, outcome, duration)
	o.spans.EndSpan(runSpan, state.Error)

	if state.Failed() {
		observability.LogRunError(o.cfg.logger, rc.runID, state.Error, durationMs, lastStage)
	} else {
		observability.LogRunComplete(o.cfg.logger, rc.runID, durationMs, rc.sequence-startSeq, state.RetryCount, state.Passed())
	}
	return state
}

// step runs one stage and merges its update into state.
func (o *Orchestrator) step(ctx context.Context, logger *slog.Logger, state State, stage Stage, rc *runConfig) State {
	attempt := state.RetryCount + 1
	observability.LogStageStart(logger, stage.String(), attempt)

	stageCtx, span := o.spans.StartStageSpan(ctx, stage.String(), attempt)
	if o.cfg.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, o.cfg.stageTimeout)
		defer cancel()
	}
	sc := newStageContext(stageCtx, o.cfg.logger, rc.runID, stage, attempt)

	began := time.Now()
	update := o.invoke(sc, stage, state.Clone())
	duration := time.Since(began)

	prevRetries := state.RetryCount
	errMsg := update.Error
	if err := state.Apply(update); err != nil {
		observability.LogDefect(logger, stage.String(), err)
		state.fail(err)
		state.Next = ActionEnd
		if errMsg == "" {
			errMsg = err.Error()
		}
	}

	o.metrics.RecordStage(ctx, stage.String(), duration, errMsg != "")
	o.spans.EndSpan(span, errMsg)

	if errMsg != "" {
		observability.LogStageFailure(logger, stage.String(), errMsg)
	} else {
		observability.LogStageComplete(logger, stage.String(), float64(duration.Milliseconds()), state.Next.String())
	}

	if state.RetryCount > prevRetries {
		o.metrics.RecordRetry(ctx)
		observability.LogRetry(logger, state.RetryCount, state.MaxRetries)
	}
	return state
}

// invoke calls the stage function, converting a panic into a failing update.
func (o *Orchestrator) invoke(ctx *stageContext, stage Stage, s State) (u Update) {
	defer func() {
		if r := recover(); r != nil {
			u = Fail(&PanicError{
				Stage: stage,
				Value: r,
				Stack: string(debug.Stack()),
			})
		}
	}()

	fn, ok := o.stages[stage]
	if !ok || fn == nil {
		return Fail(&CollaboratorError{Stage: stage, Op: "lookup", Err: ErrNilInferencer})
	}
	return fn(ctx, s)
}

// saveCheckpoint persists the state after a stage. Errors are returned
// only when checkpoint failures are fatal for this run.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, logger *slog.Logger, rc *runConfig, stage Stage, state State) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return o.checkpointFailure(logger, rc, stage, "serialize", err)
	}

	data, err := checkpoint.New(rc.runID, rc.sequence, stage.String(), stateBytes).Marshal()
	if err != nil {
		return o.checkpointFailure(logger, rc, stage, "marshal", err)
	}

	if err := rc.checkpointStore.Save(rc.runID, rc.sequence, data); err != nil {
		return o.checkpointFailure(logger, rc, stage, "save", err)
	}

	observability.LogCheckpoint(logger, stage.String(), rc.sequence, len(data))
	o.metrics.RecordCheckpoint(ctx, stage.String(), int64(len(data)))
	return nil
}

func (o *Orchestrator) checkpointFailure(logger *slog.Logger, rc *runConfig, stage Stage, op string, err error) error {
	if rc.checkpointFailureFatal {
		return &CheckpointError{Stage: stage, Op: op, Err: err}
	}
	observability.LogCheckpointError(logger, stage.String(), op, err)
	return nil
}
