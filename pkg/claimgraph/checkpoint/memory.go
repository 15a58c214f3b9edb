package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in memory. Data is lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[int]stored
	closed bool
}

type stored struct {
	data      []byte
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]stored)}
}

// Save implements Store.
func (m *MemoryStore) Save(runID string, sequence int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.runs[runID] == nil {
		m.runs[runID] = make(map[int]stored)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.runs[runID][sequence] = stored{data: buf, timestamp: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID string, sequence int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	s, ok := m.runs[runID][sequence]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(runID string) ([]byte, Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, Info{}, ErrStoreClosed
	}
	run := m.runs[runID]
	if len(run) == 0 {
		return nil, Info{}, ErrNotFound
	}

	best := -1
	for seq := range run {
		if seq > best {
			best = seq
		}
	}
	s := run[best]
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, Info{RunID: runID, Sequence: best, Timestamp: s.timestamp, Size: int64(len(s.data))}, nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	run := m.runs[runID]
	infos := make([]Info, 0, len(run))
	for seq, s := range run {
		infos = append(infos, Info{
			RunID:     runID,
			Sequence:  seq,
			Timestamp: s.timestamp,
			Size:      int64(len(s.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the number of snapshots across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, run := range m.runs {
		n += len(run)
	}
	return n
}
