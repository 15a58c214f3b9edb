package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]claimgraph.Record
	analyses []Analysis
	closed   bool
	now      func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: map[string]claimgraph.Record{}, now: time.Now}
}

// SaveRecord implements Store.
func (m *Memory) SaveRecord(_ context.Context, rec claimgraph.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	rec.Data = slices.Clone(rec.Data)
	m.records[rec.ID] = rec
	return nil
}

// Records implements claimgraph.RecordSource. Unknown IDs are skipped.
func (m *Memory) Records(_ context.Context, ids []string) ([]claimgraph.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []claimgraph.Record
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			rec.Data = slices.Clone(rec.Data)
			out = append(out, rec)
		}
	}
	return out, nil
}

// SaveAnalysis implements Store.
func (m *Memory) SaveAnalysis(_ context.Context, a *Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	a.ID = int64(len(m.analyses) + 1)
	a.CreatedAt = m.now().UTC()
	m.analyses = append(m.analyses, *a)
	return nil
}

// LatestAnalysis implements Store.
func (m *Memory) LatestAnalysis(context.Context) (*Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.analyses) == 0 {
		return nil, ErrNotFound
	}
	a := m.analyses[len(m.analyses)-1]
	return &a, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
