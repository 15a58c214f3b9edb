package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

// SaveBundle stores every resource in b as a record and returns their IDs
// in ingestion order. b should already be normalized and validated.
func SaveBundle(ctx context.Context, s Store, b *fhir.Bundle) ([]string, error) {
	ids := make([]string, 0, b.Len())
	for _, res := range b.Resources() {
		data, err := json.Marshal(res)
		if err != nil {
			return ids, fmt.Errorf("encode %s: %w", res.ResourceID(), err)
		}
		rec := claimgraph.Record{ID: res.ResourceID(), Type: res.ResourceType(), Data: data}
		if err := s.SaveRecord(ctx, rec); err != nil {
			return ids, fmt.Errorf("save %s: %w", rec.ID, err)
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
