package claimgraph

import (
	"context"
	"encoding/json"
)

// Kind names the inference call a stage makes.
type Kind string

// Inference kinds, one per stage.
const (
	KindExtract Kind = "extract"
	KindCode    Kind = "code"
	KindAudit   Kind = "audit"
)

// Record is a raw clinical record as stored by the persistence layer.
type Record struct {
	ID   string          `json:"resource_id"`
	Type string          `json:"resource_type"`
	Data json.RawMessage `json:"data"`
}

// ExtractInput is the context for an extraction call.
type ExtractInput struct {
	SubjectIDs []string
	// Records holds the raw records for SubjectIDs when a RecordSource is
	// configured. Identifiers with no stored record are simply absent.
	Records []Record
}

// CodeInput is the context for a coding call.
type CodeInput struct {
	Extracted Extracted
	// Attempt is 1 on the first pass and grows with each retry.
	Attempt int
	// Feedback is the failing audit that triggered this retry, nil on the
	// first pass.
	Feedback *Audit
	// Previous is the coding that failed that audit, nil on the first pass.
	Previous *Coded
}

// AuditInput is the context for an audit call.
type AuditInput struct {
	Extracted Extracted
	Coded     Coded
	Attempt   int
}

// Inferencer performs the work behind each stage. Implementations may be
// canned, rule based or backed by a model; the orchestrator does not care.
//
// Failures are returned as errors and never panic. Implementations must be
// safe for concurrent use by independent runs.
type Inferencer interface {
	Extract(ctx context.Context, in ExtractInput) (Extracted, error)
	Code(ctx context.Context, in CodeInput) (Coded, error)
	Audit(ctx context.Context, in AuditInput) (Audit, error)
}

// RecordSource loads raw records by identifier.
type RecordSource interface {
	Records(ctx context.Context, ids []string) ([]Record, error)
}
