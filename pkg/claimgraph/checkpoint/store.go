// Package checkpoint persists per-stage run snapshots so an interrupted run
// can be resumed.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a snapshot under (runID, sequence).
	// Saving the same key twice overwrites the earlier snapshot.
	Save(runID string, sequence int, data []byte) error

	// Load retrieves one snapshot. Returns ErrNotFound if absent.
	Load(runID string, sequence int) ([]byte, error)

	// Latest retrieves the snapshot with the highest sequence for a run.
	// Returns ErrNotFound if the run has none.
	Latest(runID string) ([]byte, Info, error)

	// List returns snapshot metadata for a run ordered by sequence.
	// Returns an empty slice (not an error) for unknown runs.
	List(runID string) ([]Info, error)

	// DeleteRun removes every snapshot of a run.
	DeleteRun(runID string) error

	// Close releases resources. Further calls return ErrStoreClosed.
	Close() error
}

// Info describes a snapshot without its payload.
type Info struct {
	RunID     string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
