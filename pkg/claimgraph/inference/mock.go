package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
)

// Mock answers every call with the canned demo data. Audit outcomes can
// be scripted per attempt and any call can be made to fail.
type Mock struct {
	verdicts []bool
	failures map[claimgraph.Kind]error

	mu    sync.Mutex
	calls []claimgraph.Kind
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithVerdicts scripts audit outcomes: verdicts[i] is the result of attempt
// i+1 and the last entry repeats.
func WithVerdicts(verdicts ...bool) MockOption {
	return func(m *Mock) {
		if len(verdicts) > 0 {
			m.verdicts = verdicts
		}
	}
}

// WithFailure makes every call of kind fail with err.
func WithFailure(kind claimgraph.Kind, err error) MockOption {
	return func(m *Mock) { m.failures[kind] = err }
}

// NewMock returns a Mock whose audits pass.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{verdicts: []bool{true}, failures: map[claimgraph.Kind]error{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// openMock reads "failing_audits": the number of attempts whose audit fails
// before one passes.
func openMock(s Settings) (claimgraph.Inferencer, error) {
	n := s.Int("failing_audits", 0)
	if n < 0 {
		return nil, fmt.Errorf("failing_audits: must not be negative, got %d", n)
	}
	verdicts := make([]bool, 0, n+1)
	for range n {
		verdicts = append(verdicts, false)
	}
	return NewMock(WithVerdicts(append(verdicts, true)...)), nil
}

// Calls returns the kinds of call received so far.
func (m *Mock) Calls() []claimgraph.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]claimgraph.Kind(nil), m.calls...)
}

func (m *Mock) record(kind claimgraph.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, kind)
	return m.failures[kind]
}

// Extract implements claimgraph.Inferencer.
func (m *Mock) Extract(ctx context.Context, in claimgraph.ExtractInput) (claimgraph.Extracted, error) {
	if err := m.record(claimgraph.KindExtract); err != nil {
		return claimgraph.Extracted{}, err
	}
	if err := ctx.Err(); err != nil {
		return claimgraph.Extracted{}, err
	}
	subject := "patient-123"
	if len(in.SubjectIDs) > 0 && len(in.Records) == 0 {
		subject = in.SubjectIDs[0]
	}
	return claimgraph.Extracted{
		Diagnoses:    []string{"Type 2 Diabetes Mellitus", "Hypertension"},
		Procedures:   []string{"Blood glucose monitoring", "Blood pressure check"},
		Observations: []string{"HbA1c elevated at 7.8%", "BP 140/90 mmHg"},
		SubjectID:    subject,
	}, nil
}

// Code implements claimgraph.Inferencer.
func (m *Mock) Code(ctx context.Context, in claimgraph.CodeInput) (claimgraph.Coded, error) {
	if err := m.record(claimgraph.KindCode); err != nil {
		return claimgraph.Coded{}, err
	}
	if err := ctx.Err(); err != nil {
		return claimgraph.Coded{}, err
	}
	icd := "E11.9"
	if in.Feedback != nil {
		icd = "E11.65"
	}
	return claimgraph.Coded{
		ICD10: []string{icd, "I10"},
		CPT:   []string{"82947", "99213"},
		LOINC: []string{"4548-4"},
	}, nil
}

// Audit implements claimgraph.Inferencer.
func (m *Mock) Audit(ctx context.Context, in claimgraph.AuditInput) (claimgraph.Audit, error) {
	if err := m.record(claimgraph.KindAudit); err != nil {
		return claimgraph.Audit{}, err
	}
	if err := ctx.Err(); err != nil {
		return claimgraph.Audit{}, err
	}
	idx := max(in.Attempt-1, 0)
	if idx >= len(m.verdicts) {
		idx = len(m.verdicts) - 1
	}
	if m.verdicts[idx] {
		return claimgraph.Audit{
			Passed:          true,
			Issues:          []string{},
			Severity:        claimgraph.SeverityLow,
			Recommendations: []string{"Coding is accurate and complete"},
		}, nil
	}
	return claimgraph.Audit{
		Passed:          false,
		Issues:          []string{"E11.9 is unspecified while HbA1c is documented as elevated"},
		Severity:        claimgraph.SeverityMedium,
		Recommendations: []string{"Consider E11.65 (Type 2 diabetes mellitus with hyperglycemia)"},
	}, nil
}
