package claimgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
)

// Resume continues a run from its latest checkpoint.
//
// The returned error covers only loading the snapshot (missing, corrupt or
// written by an incompatible version). Once the run continues, failures are
// reported through State.Error exactly as in Run. A snapshot of a finished
// run is returned unchanged.
//
// Snapshots keep being written to store under the same run ID.
//
// Example:
//
//	// The process died after the coder ran; pick up at the auditor.
//	final, err := orch.Resume(ctx, store, "run-123")
func (o *Orchestrator) Resume(ctx context.Context, store checkpoint.Store, runID string, opts ...RunOption) (State, error) {
	state, seq, err := LoadCheckpoint(store, runID)
	if err != nil {
		return State{}, err
	}

	rc := newRunConfig(opts)
	rc.runID = runID
	rc.checkpointStore = store
	rc.sequence = seq

	return o.execute(ctx, state, &rc), nil
}

// LoadCheckpoint reads the latest snapshot of a run and returns its state
// together with the number of stages already executed.
func LoadCheckpoint(store checkpoint.Store, runID string) (State, int, error) {
	data, _, err := store.Latest(runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return State{}, 0, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	if err != nil {
		return State{}, 0, fmt.Errorf("load checkpoint: %w", err)
	}

	snap, err := checkpoint.Unmarshal(data)
	if err != nil {
		return State{}, 0, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Version != checkpoint.Version {
		return State{}, 0, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, snap.Version, checkpoint.Version)
	}

	var state State
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return State{}, 0, fmt.Errorf("decode state: %w", err)
	}
	return state, snap.Sequence, nil
}
