package fhir

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Bundle is a batch of resources submitted for ingestion.
type Bundle struct {
	Conditions   []Condition   `json:"conditions"`
	Procedures   []Procedure   `json:"procedures"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of resources in the bundle.
func (b *Bundle) Len() int {
	return len(b.Conditions) + len(b.Procedures) + len(b.Observations)
}

// Resources returns every resource in ingestion order: conditions,
// procedures, then observations.
func (b *Bundle) Resources() []Resource {
	out := make([]Resource, 0, b.Len())
	for i := range b.Conditions {
		out = append(out, &b.Conditions[i])
	}
	for i := range b.Procedures {
		out = append(out, &b.Procedures[i])
	}
	for i := range b.Observations {
		out = append(out, &b.Observations[i])
	}
	return out
}

// Normalize fills resourceType and assigns "<type>-<8 hex>" identifiers to
// resources submitted without one.
func (b *Bundle) Normalize() {
	for i := range b.Conditions {
		c := &b.Conditions[i]
		c.Type = TypeCondition
		if c.ID == "" {
			c.ID = NewID("condition")
		}
	}
	for i := range b.Procedures {
		p := &b.Procedures[i]
		p.Type = TypeProcedure
		if p.ID == "" {
			p.ID = NewID("procedure")
		}
	}
	for i := range b.Observations {
		o := &b.Observations[i]
		o.Type = TypeObservation
		if o.ID == "" {
			o.ID = NewID("observation")
		}
	}
}

// Validate checks every resource and joins the failures.
func (b *Bundle) Validate() error {
	var errs []error
	for i, r := range b.Resources() {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("resource %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// NewID returns prefix-<8 hex chars>.
func NewID(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%x", prefix, id[:4])
}
