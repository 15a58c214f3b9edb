package inference

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// recordsFrom stores a bundle the way the persistence layer does.
func recordsFrom(t *testing.T, b fhir.Bundle) []claimgraph.Record {
	t.Helper()
	var out []claimgraph.Record
	for _, r := range b.Resources() {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		out = append(out, claimgraph.Record{ID: r.ResourceID(), Type: r.ResourceType(), Data: data})
	}
	return out
}

// recordMap is an in-memory RecordSource.
type recordMap map[string]claimgraph.Record

func (m recordMap) Records(_ context.Context, ids []string) ([]claimgraph.Record, error) {
	var out []claimgraph.Record
	for _, id := range ids {
		if r, ok := m[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func sourceFrom(t *testing.T, b fhir.Bundle) (recordMap, []string) {
	t.Helper()
	m := recordMap{}
	var ids []string
	for _, r := range recordsFrom(t, b) {
		m[r.ID] = r
		ids = append(ids, r.ID)
	}
	return m, ids
}

func demoExtracted() claimgraph.Extracted {
	return claimgraph.Extracted{
		Diagnoses:    []string{"Type 2 Diabetes Mellitus", "Hypertension"},
		Procedures:   []string{"Blood glucose monitoring", "Blood pressure check"},
		Observations: []string{"HbA1c elevated at 7.8%", "BP 140/90 mmHg"},
		SubjectID:    "patient-123",
	}
}
