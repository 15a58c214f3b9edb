// Package store persists ingested clinical records and analysis results.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store is closed")
)

// Storage types accepted by Open.
const (
	TypeSQLite = "sqlite"
	TypeMemory = "memory"
)

// Analysis is a stored pipeline result.
type Analysis struct {
	ID          int64                `json:"id"`
	RunID       string               `json:"run_id"`
	ResourceIDs []string             `json:"resource_ids"`
	Extracted   claimgraph.Extracted `json:"extracted_data"`
	Coded       claimgraph.Coded     `json:"coded_data"`
	Audit       claimgraph.Audit     `json:"audit_result"`
	RetryCount  int                  `json:"retry_count"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AnalysisFromState builds an Analysis from a finished run. It returns
// false unless extraction, coding and audit all produced a result.
func AnalysisFromState(runID string, s claimgraph.State) (*Analysis, bool) {
	if s.Extracted == nil || s.Coded == nil || s.Audit == nil {
		return nil, false
	}
	return &Analysis{
		RunID:       runID,
		ResourceIDs: append([]string(nil), s.SubjectIDs...),
		Extracted:   *s.Extracted,
		Coded:       *s.Coded,
		Audit:       *s.Audit,
		RetryCount:  s.RetryCount,
	}, true
}

// Store is the persistence boundary used by the transport layers.
// Implementations are safe for concurrent use.
type Store interface {
	claimgraph.RecordSource

	// SaveRecord inserts or replaces a record by its ID.
	SaveRecord(ctx context.Context, rec claimgraph.Record) error
	// SaveAnalysis stores a result and fills in its ID and CreatedAt.
	SaveAnalysis(ctx context.Context, a *Analysis) error
	// LatestAnalysis returns the most recently saved result or ErrNotFound.
	LatestAnalysis(ctx context.Context) (*Analysis, error)
	Close() error
}

// Open returns a store of the given type. path is only used by sqlite.
func Open(ctx context.Context, typ, path string) (Store, error) {
	switch typ {
	case TypeMemory:
		return NewMemory(), nil
	case TypeSQLite, "":
		return NewSQLite(ctx, path)
	}
	return nil, fmt.Errorf("unknown storage type %q", typ)
}
