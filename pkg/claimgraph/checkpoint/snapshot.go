package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the snapshot format version.
const Version = 1

// Snapshot is the persisted state of a run after one stage.
type Snapshot struct {
	Version   int             `json:"version"`
	RunID     string          `json:"run_id"`
	Sequence  int             `json:"sequence"`
	Stage     string          `json:"stage"`
	Timestamp time.Time       `json:"timestamp"`
	State     json.RawMessage `json:"state"`
}

// New creates a snapshot. state must already be JSON encoded.
func New(runID string, sequence int, stage string, state []byte) *Snapshot {
	return &Snapshot{
		Version:   Version,
		RunID:     runID,
		Sequence:  sequence,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// Marshal encodes the snapshot as JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
