package inference

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

func TestDefaultRules_Valid(t *testing.T) {
	rs := DefaultRules()
	require.NoError(t, rs.Validate())
	assert.NotEmpty(t, rs.Diagnoses)
	assert.NotEmpty(t, rs.Refinements)
}

func TestParseRules_Invalid(t *testing.T) {
	_, err := ParseRules([]byte("diagnoses: [oops"))
	assert.Error(t, err)

	_, err = ParseRules([]byte(`
diagnoses:
  - keywords: [asthma]
refinements:
  - code: E11.9
    severity: catastrophic
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnoses[0]: missing code")
	assert.Contains(t, err.Error(), "invalid severity")
	assert.Contains(t, err.Error(), "code and replacement are required")
}

func TestRules_ExtractFromRecords(t *testing.T) {
	records := recordsFrom(t, fhir.SampleDataset("", fixedNow))

	ext, err := NewRules(nil).Extract(context.Background(), claimgraph.ExtractInput{
		SubjectIDs: []string{"condition-1"},
		Records:    records,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Type 2 Diabetes Mellitus", "Essential Hypertension", "Type 2 Diabetes with hyperglycemia"}, ext.Diagnoses)
	assert.Equal(t, []string{"Blood glucose monitoring", "Blood pressure measurement", "Hemoglobin A1c measurement"}, ext.Procedures)
	assert.Equal(t, []string{
		"Hemoglobin A1c 7.8%",
		"Blood pressure 140/90 mmHg",
		"Glucose [Mass/volume] in Serum or Plasma 145 mg/dL",
	}, ext.Observations)
	assert.Equal(t, "patient-123", ext.SubjectID)
}

func TestRules_ExtractNoRecords(t *testing.T) {
	ext, err := NewRules(nil).Extract(context.Background(), claimgraph.ExtractInput{SubjectIDs: []string{"gone"}})
	require.NoError(t, err)
	assert.Empty(t, ext.Diagnoses)
	assert.NotNil(t, ext.Diagnoses)
}

func TestRules_ExtractBadRecord(t *testing.T) {
	_, err := NewRules(nil).Extract(context.Background(), claimgraph.ExtractInput{
		SubjectIDs: []string{"x"},
		Records:    []claimgraph.Record{{ID: "x", Type: "Encounter", Data: []byte(`{}`)}},
	})
	assert.ErrorIs(t, err, fhir.ErrUnknownResourceType)
}

func TestRules_CodeFirstPass(t *testing.T) {
	coded, err := NewRules(nil).Code(context.Background(), claimgraph.CodeInput{Extracted: demoExtracted(), Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"E11.9", "I10"}, coded.ICD10)
	assert.Equal(t, []string{"82947", "99213"}, coded.CPT)
	assert.Equal(t, []string{"4548-4", "85354-9"}, coded.LOINC)
}

func TestRules_AuditFlagsUnspecifiedCode(t *testing.T) {
	r := NewRules(nil)
	ext := demoExtracted()
	coded, err := r.Code(context.Background(), claimgraph.CodeInput{Extracted: ext, Attempt: 1})
	require.NoError(t, err)

	audit, err := r.Audit(context.Background(), claimgraph.AuditInput{Extracted: ext, Coded: coded, Attempt: 1})
	require.NoError(t, err)

	assert.False(t, audit.Passed)
	assert.Equal(t, claimgraph.SeverityMedium, audit.Severity)
	assert.Equal(t, []string{"E11.9 (unspecified) while hyperglycemia is documented"}, audit.Issues)
	assert.Equal(t, []string{"Replace E11.9 with E11.65"}, audit.Recommendations)
}

func TestRules_RetryAppliesRefinement(t *testing.T) {
	r := NewRules(nil)
	ext := demoExtracted()
	feedback := claimgraph.Audit{Passed: false}

	coded, err := r.Code(context.Background(), claimgraph.CodeInput{Extracted: ext, Attempt: 2, Feedback: &feedback})
	require.NoError(t, err)
	assert.Equal(t, []string{"E11.65", "I10"}, coded.ICD10)

	audit, err := r.Audit(context.Background(), claimgraph.AuditInput{Extracted: ext, Coded: coded, Attempt: 2})
	require.NoError(t, err)
	assert.True(t, audit.Passed)
	assert.Equal(t, claimgraph.SeverityLow, audit.Severity)
	assert.Empty(t, audit.Issues)
}

func TestRules_AuditNoCodes(t *testing.T) {
	audit, err := NewRules(nil).Audit(context.Background(), claimgraph.AuditInput{})
	require.NoError(t, err)
	assert.False(t, audit.Passed)
	assert.Equal(t, claimgraph.SeverityHigh, audit.Severity)
	assert.Equal(t, []string{"no billing codes assigned"}, audit.Issues)
}

func TestRules_AuditUnmappedDiagnosis(t *testing.T) {
	ext := claimgraph.Extracted{Diagnoses: []string{"Hypertension", "Chronic wanderlust"}}
	audit, err := NewRules(nil).Audit(context.Background(), claimgraph.AuditInput{
		Extracted: ext,
		Coded:     claimgraph.Coded{ICD10: []string{"I10"}},
	})
	require.NoError(t, err)
	assert.False(t, audit.Passed)
	assert.Equal(t, claimgraph.SeverityHigh, audit.Severity)
	assert.Equal(t, []string{`no ICD-10 code for diagnosis "Chronic wanderlust"`}, audit.Issues)
}

func TestRules_AuditProceduresWithoutDiagnosis(t *testing.T) {
	audit, err := NewRules(nil).Audit(context.Background(), claimgraph.AuditInput{
		Extracted: claimgraph.Extracted{Procedures: []string{"Blood glucose monitoring"}},
		Coded:     claimgraph.Coded{CPT: []string{"82947"}},
	})
	require.NoError(t, err)
	assert.False(t, audit.Passed)
	assert.Equal(t, claimgraph.SeverityMedium, audit.Severity)
}

// The sample dataset fails its first audit and passes after one retry.
func TestRules_PipelineSampleDataset(t *testing.T) {
	src, ids := sourceFrom(t, fhir.SampleDataset("", fixedNow))
	orch := claimgraph.New(NewRules(nil),
		claimgraph.WithRecordSource(src),
		claimgraph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		claimgraph.WithMetrics(false),
		claimgraph.WithTracing(false),
	)

	final := orch.Run(context.Background(), ids, 3)

	require.Empty(t, final.Error)
	assert.Equal(t, 1, final.RetryCount)
	require.NotNil(t, final.Audit)
	assert.True(t, final.Audit.Passed)
	require.NotNil(t, final.Coded)
	assert.Equal(t, []string{"E11.65", "I10"}, final.Coded.ICD10)
	assert.Equal(t, []string{"82947", "99213", "83036"}, final.Coded.CPT)
	assert.Equal(t, []string{"4548-4", "85354-9", "2345-7"}, final.Coded.LOINC)
}

func TestRules_PipelineMinimalDataset(t *testing.T) {
	src, ids := sourceFrom(t, fhir.MinimalDataset("", fixedNow))
	orch := claimgraph.New(NewRules(nil),
		claimgraph.WithRecordSource(src),
		claimgraph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		claimgraph.WithMetrics(false),
		claimgraph.WithTracing(false),
	)

	final := orch.Run(context.Background(), ids, 3)

	require.Empty(t, final.Error)
	assert.Equal(t, 0, final.RetryCount)
	assert.True(t, final.Passed())
	assert.Equal(t, []string{"E11.9"}, final.Coded.ICD10)
}
