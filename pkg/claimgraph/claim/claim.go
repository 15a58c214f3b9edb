// Package claim turns a finished coding pass into a FHIR-style billing
// claim.
package claim

import (
	"errors"
	"time"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

// ErrNoAnalysis is returned when there is no coding to bill.
var ErrNoAnalysis = errors.New("no analysis found")

// DefaultCurrency is used unless WithCurrency says otherwise.
const DefaultCurrency = "USD"

// Money is an amount in a currency.
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Diagnosis is one coded diagnosis on the claim.
type Diagnosis struct {
	Sequence                 int                  `json:"sequence"`
	DiagnosisCodeableConcept fhir.CodeableConcept `json:"diagnosisCodeableConcept"`
}

// Item is one billed service line.
type Item struct {
	Sequence         int                  `json:"sequence"`
	ProductOrService fhir.CodeableConcept `json:"productOrService"`
	ServicedDate     string               `json:"servicedDate,omitempty"`
	UnitPrice        *Money               `json:"unitPrice,omitempty"`
	Net              *Money               `json:"net,omitempty"`
}

// Claim is the assembled billing claim.
type Claim struct {
	ID           string               `json:"id"`
	ResourceType string               `json:"resourceType"`
	Status       string               `json:"status"`
	Type         fhir.CodeableConcept `json:"type"`
	Patient      fhir.Reference       `json:"patient"`
	Created      time.Time            `json:"created"`
	Provider     *fhir.Reference      `json:"provider,omitempty"`
	Diagnosis    []Diagnosis          `json:"diagnosis"`
	Item         []Item               `json:"item"`
	Total        *Money               `json:"total,omitempty"`
}

// Request names the parties on the claim.
type Request struct {
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`
}

// Pricing prices the service line at index (0-based) for code.
type Pricing interface {
	Price(index int, code string) float64
}

// LinearPricing charges Base for the first line and Increment more for
// each line after it.
type LinearPricing struct {
	Base      float64
	Increment float64
}

// DefaultPricing is LinearPricing{Base: 100, Increment: 50}.
var DefaultPricing = LinearPricing{Base: 100, Increment: 50}

// Price implements Pricing.
func (p LinearPricing) Price(index int, _ string) float64 {
	return p.Base + float64(index)*p.Increment
}

// PriceTable charges a fixed price per code and Fallback for anything else.
type PriceTable struct {
	Prices   map[string]float64
	Fallback Pricing
}

// Price implements Pricing.
func (t PriceTable) Price(index int, code string) float64 {
	if v, ok := t.Prices[code]; ok {
		return v
	}
	if t.Fallback != nil {
		return t.Fallback.Price(index, code)
	}
	return 0
}

type options struct {
	pricing  Pricing
	currency string
	now      func() time.Time
}

// Option configures Assemble.
type Option func(*options)

// WithPricing replaces DefaultPricing. A nil p is ignored.
func WithPricing(p Pricing) Option {
	return func(o *options) {
		if p != nil {
			o.pricing = p
		}
	}
}

// WithCurrency sets the currency of every amount.
func WithCurrency(c string) Option {
	return func(o *options) { o.currency = c }
}

// WithClock fixes the creation and service timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Assemble builds a claim from coded: one diagnosis per ICD-10 code and one
// priced service line per CPT code. The total is the sum of line nets and
// is omitted when zero.
func Assemble(coded *claimgraph.Coded, req Request, opts ...Option) (*Claim, error) {
	if coded == nil {
		return nil, ErrNoAnalysis
	}
	o := options{pricing: DefaultPricing, currency: DefaultCurrency, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	now := o.now()
	patientID := req.PatientID
	if patientID == "" {
		patientID = fhir.DefaultPatientID
	}

	c := &Claim{
		ID:           "claim-" + now.Format("20060102150405"),
		ResourceType: "Claim",
		Status:       "active",
		Type:         fhir.CodeableConcept{Coding: []fhir.Coding{{System: fhir.SystemClaimType, Code: "institutional", Display: "Institutional"}}},
		Patient:      fhir.Reference{Reference: "Patient/" + patientID, Display: "Patient " + patientID},
		Created:      now,
		Diagnosis:    make([]Diagnosis, 0, len(coded.ICD10)),
		Item:         make([]Item, 0, len(coded.CPT)),
	}
	if req.ProviderID != "" {
		c.Provider = &fhir.Reference{Reference: "Organization/" + req.ProviderID, Display: "Provider " + req.ProviderID}
	}

	for i, code := range coded.ICD10 {
		c.Diagnosis = append(c.Diagnosis, Diagnosis{
			Sequence:                 i + 1,
			DiagnosisCodeableConcept: fhir.CodeableConcept{Coding: []fhir.Coding{{System: fhir.SystemICD10, Code: code}}},
		})
	}

	var total float64
	served := now.Format(time.RFC3339)
	for i, code := range coded.CPT {
		price := o.pricing.Price(i, code)
		total += price
		c.Item = append(c.Item, Item{
			Sequence:         i + 1,
			ProductOrService: fhir.CodeableConcept{Coding: []fhir.Coding{{System: fhir.SystemCPT, Code: code}}},
			ServicedDate:     served,
			UnitPrice:        &Money{Value: price, Currency: o.currency},
			Net:              &Money{Value: price, Currency: o.currency},
		})
	}
	if total > 0 {
		c.Total = &Money{Value: total, Currency: o.currency}
	}
	return c, nil
}
