package claimgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for run setup and state merging.
var (
	// ErrNegativeRetries indicates Run was called with maxRetries < 0.
	ErrNegativeRetries = errors.New("max retries must not be negative")

	// ErrAlreadyExtracted indicates a second extraction in the same run.
	ErrAlreadyExtracted = errors.New("findings already extracted for this run")

	// ErrRetryOverflow indicates a retry counter outside [current, MaxRetries].
	ErrRetryOverflow = errors.New("retry counter out of range")

	// ErrIllegalAction indicates a routing signal outside the declared set.
	ErrIllegalAction = errors.New("illegal next action")
)

// Sentinel errors for stage preconditions.
var (
	// ErrMissingExtracted indicates the coder ran before extraction.
	ErrMissingExtracted = errors.New("no extracted data available for coding")

	// ErrMissingCoded indicates the auditor ran before coding.
	ErrMissingCoded = errors.New("no coded data available for audit")
)

// Sentinel errors for execution.
var (
	// ErrMaxIterations indicates the stage loop hit its hard cap.
	ErrMaxIterations = errors.New("exceeded maximum stage invocations")

	// ErrNilInferencer indicates a stage was built without a collaborator.
	ErrNilInferencer = errors.New("inference collaborator not configured")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrNoCheckpoints indicates no snapshot exists for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrCheckpointVersionMismatch indicates a snapshot written by an incompatible version.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// PreconditionError reports a stage invoked without its required input.
// It means the router or orchestrator broke an invariant.
type PreconditionError struct {
	Stage Stage
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("stage %s precondition: %v", e.Stage, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// CollaboratorError wraps a failure of the inference or persistence collaborator.
type CollaboratorError struct {
	// Stage is the stage that made the call.
	Stage Stage
	// Op names the call ("infer", "load records").
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a stage.
type PanicError struct {
	Stage Stage
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Value)
}

// CancellationError records that the run context ended before a stage.
type CancellationError struct {
	// Stage is the stage that was about to run.
	Stage Stage
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before stage %s: %v", e.Stage, e.Cause)
}

func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// MaxIterationsError reports that the loop cap was reached.
type MaxIterationsError struct {
	Max   int
	Stage Stage
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum stage invocations (%d) at stage %s", e.Max, e.Stage)
}

func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// IllegalActionError reports a routing signal outside the Action enum.
type IllegalActionError struct {
	Action Action
}

func (e *IllegalActionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrIllegalAction, e.Action)
}

func (e *IllegalActionError) Unwrap() error {
	return ErrIllegalAction
}

// CheckpointError wraps a failed checkpoint operation.
type CheckpointError struct {
	Stage Stage
	// Op is "marshal" or "save".
	Op  string
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s after stage %s: %v", e.Op, e.Stage, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
