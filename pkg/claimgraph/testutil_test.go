package claimgraph

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Test fixtures used across tests

func sampleExtracted() Extracted {
	return Extracted{
		Diagnoses:    []string{"Type 2 Diabetes Mellitus", "Hypertension"},
		Procedures:   []string{"Blood glucose monitoring", "Blood pressure check"},
		Observations: []string{"HbA1c elevated at 7.8%", "BP 140/90 mmHg"},
		SubjectID:    "patient-123",
	}
}

func sampleCoded() Coded {
	return Coded{
		ICD10: []string{"E11.9", "I10"},
		CPT:   []string{"82947", "99213"},
		LOINC: []string{"4548-4"},
	}
}

// fakeInferencer is a scripted Inferencer.
// verdicts[i] is the audit outcome of attempt i+1; the last entry repeats.
type fakeInferencer struct {
	mu sync.Mutex

	verdicts   []bool
	extractErr error
	codeErr    error
	auditErr   error

	calls      []Kind
	extractIn  []ExtractInput
	codeInputs []CodeInput
}

func alwaysPass() *fakeInferencer { return &fakeInferencer{verdicts: []bool{true}} }
func alwaysFail() *fakeInferencer { return &fakeInferencer{verdicts: []bool{false}} }

func (f *fakeInferencer) Extract(_ context.Context, in ExtractInput) (Extracted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, KindExtract)
	f.extractIn = append(f.extractIn, in)
	if f.extractErr != nil {
		return Extracted{}, f.extractErr
	}
	return sampleExtracted(), nil
}

func (f *fakeInferencer) Code(_ context.Context, in CodeInput) (Coded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, KindCode)
	f.codeInputs = append(f.codeInputs, in)
	if f.codeErr != nil {
		return Coded{}, f.codeErr
	}
	return sampleCoded(), nil
}

func (f *fakeInferencer) Audit(_ context.Context, in AuditInput) (Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, KindAudit)
	if f.auditErr != nil {
		return Audit{}, f.auditErr
	}

	passed := true
	if len(f.verdicts) > 0 {
		idx := min(in.Attempt-1, len(f.verdicts)-1)
		passed = f.verdicts[idx]
	}
	if passed {
		return Audit{Passed: true, Issues: []string{}, Severity: SeverityLow,
			Recommendations: []string{"Consider follow-up in 3 months"}}, nil
	}
	return Audit{
		Passed:          false,
		Issues:          []string{"unspecified diagnosis code"},
		Severity:        SeverityMedium,
		Recommendations: []string{"use a more specific code"},
	}, nil
}

func (f *fakeInferencer) callLog() []Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Kind, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeRecords is a RecordSource backed by a map.
type fakeRecords struct {
	records map[string]Record
	err     error
}

func (f *fakeRecords) Records(_ context.Context, ids []string) ([]Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Record
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestOrchestrator builds an orchestrator with observability off.
func newTestOrchestrator(inf Inferencer, opts ...Option) *Orchestrator {
	base := []Option{WithLogger(discardLogger()), WithMetrics(false), WithTracing(false)}
	return New(inf, append(base, opts...)...)
}

// testCtx creates a stage context for calling stage functions directly.
func testCtx() Context {
	return newStageContext(context.Background(), discardLogger(), "test-run", StageExtract, 1)
}

// countingStage wraps fn and counts invocations.
func countingStage(fn StageFunc, n *int) StageFunc {
	return func(ctx Context, s State) Update {
		*n++
		return fn(ctx, s)
	}
}
