// Package fhir models the FHIR-like clinical resources accepted for
// ingestion: conditions, procedures and observations.
package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Code systems used by the bundled data and claim assembly.
const (
	SystemSNOMED            = "http://snomed.info/sct"
	SystemLOINC             = "http://loinc.org"
	SystemICD10             = "http://hl7.org/fhir/sid/icd-10"
	SystemCPT               = "http://www.ama-assn.org/go/cpt"
	SystemConditionClinical = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemClaimType         = "http://terminology.hl7.org/CodeSystem/claim-type"
)

// Resource types.
const (
	TypeCondition   = "Condition"
	TypeProcedure   = "Procedure"
	TypeObservation = "Observation"
)

// ErrUnknownResourceType indicates a record whose type is not supported.
var ErrUnknownResourceType = errors.New("unknown resource type")

// Coding is a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a concept defined by codes and/or text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Label returns the human-readable name of the concept: the text if set,
// otherwise the first coding display, otherwise the first code.
func (c CodeableConcept) Label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, cd := range c.Coding {
		if cd.Display != "" {
			return cd.Display
		}
	}
	for _, cd := range c.Coding {
		if cd.Code != "" {
			return cd.Code
		}
	}
	return ""
}

// Empty reports whether the concept carries neither text nor codes.
func (c CodeableConcept) Empty() bool {
	return c.Label() == ""
}

// Concept builds a single-coding concept whose text is the display.
func Concept(system, code, display string) CodeableConcept {
	return CodeableConcept{
		Coding: []Coding{{System: system, Code: code, Display: display}},
		Text:   display,
	}
}

// Reference points at another resource, e.g. "Patient/123".
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// ID returns the identifier part of a "Type/id" reference.
func (r Reference) ID() string {
	if _, id, ok := strings.Cut(r.Reference, "/"); ok {
		return id
	}
	return r.Reference
}

// PatientRef builds a reference to a patient.
func PatientRef(id string) Reference {
	return Reference{Reference: "Patient/" + id, Display: "Test Patient " + id}
}

// Quantity is a measured amount.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'f', -1, 64)
	if q.Unit == "" {
		return v
	}
	return v + " " + q.Unit
}

// Resource is implemented by every ingestible resource.
type Resource interface {
	ResourceID() string
	ResourceType() string
	// Summary is the finding text handed to extraction.
	Summary() string
	Validate() error
}

// Condition is a diagnosis or problem.
type Condition struct {
	ID             string           `json:"id,omitempty"`
	Type           string           `json:"resourceType"`
	Code           CodeableConcept  `json:"code"`
	Subject        Reference        `json:"subject"`
	RecordedDate   *time.Time       `json:"recordedDate,omitempty"`
	Severity       *CodeableConcept `json:"severity,omitempty"`
	ClinicalStatus *CodeableConcept `json:"clinicalStatus,omitempty"`
}

func (c *Condition) ResourceID() string   { return c.ID }
func (c *Condition) ResourceType() string { return TypeCondition }
func (c *Condition) Summary() string      { return c.Code.Label() }

// Validate checks the fields required for analysis.
func (c *Condition) Validate() error {
	return validate(TypeCondition, c.Type, c.Code, c.Subject)
}

// Procedure is an action performed on a patient.
type Procedure struct {
	ID                string          `json:"id,omitempty"`
	Type              string          `json:"resourceType"`
	Code              CodeableConcept `json:"code"`
	Subject           Reference       `json:"subject"`
	PerformedDateTime *time.Time      `json:"performedDateTime,omitempty"`
	Status            string          `json:"status,omitempty"`
}

func (p *Procedure) ResourceID() string   { return p.ID }
func (p *Procedure) ResourceType() string { return TypeProcedure }
func (p *Procedure) Summary() string      { return p.Code.Label() }

// Validate checks the fields required for analysis.
func (p *Procedure) Validate() error {
	return validate(TypeProcedure, p.Type, p.Code, p.Subject)
}

// Observation is a measurement or finding.
type Observation struct {
	ID                string          `json:"id,omitempty"`
	Type              string          `json:"resourceType"`
	Code              CodeableConcept `json:"code"`
	Subject           Reference       `json:"subject"`
	ValueString       string          `json:"valueString,omitempty"`
	ValueQuantity     *Quantity       `json:"valueQuantity,omitempty"`
	EffectiveDateTime *time.Time      `json:"effectiveDateTime,omitempty"`
	Status            string          `json:"status,omitempty"`
}

func (o *Observation) ResourceID() string   { return o.ID }
func (o *Observation) ResourceType() string { return TypeObservation }

// Summary combines the observed concept with its value, e.g.
// "Hemoglobin A1c 7.8%".
func (o *Observation) Summary() string {
	label := o.Code.Label()
	switch {
	case o.ValueString != "":
		return label + " " + o.ValueString
	case o.ValueQuantity != nil:
		return label + " " + o.ValueQuantity.String()
	}
	return label
}

// Validate checks the fields required for analysis.
func (o *Observation) Validate() error {
	return validate(TypeObservation, o.Type, o.Code, o.Subject)
}

// ValidationError lists the problems found in one resource.
type ValidationError struct {
	ResourceType string
	Problems     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.ResourceType, strings.Join(e.Problems, "; "))
}

func validate(want, got string, code CodeableConcept, subject Reference) error {
	var problems []string
	if got != "" && got != want {
		problems = append(problems, fmt.Sprintf("resourceType must be %q, got %q", want, got))
	}
	if code.Empty() {
		problems = append(problems, "code must have text or a coding")
	}
	if subject.Reference == "" {
		problems = append(problems, "subject.reference is required")
	}
	if len(problems) > 0 {
		return &ValidationError{ResourceType: want, Problems: problems}
	}
	return nil
}

// Decode parses a stored record of the given type.
func Decode(resourceType string, data []byte) (Resource, error) {
	var r Resource
	switch resourceType {
	case TypeCondition:
		r = &Condition{}
	case TypeProcedure:
		r = &Procedure{}
	case TypeObservation:
		r = &Observation{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, resourceType)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resourceType, err)
	}
	return r, nil
}

// SubjectID returns the patient identifier a resource refers to.
func SubjectID(r Resource) string {
	switch v := r.(type) {
	case *Condition:
		return v.Subject.ID()
	case *Procedure:
		return v.Subject.ID()
	case *Observation:
		return v.Subject.ID()
	}
	return ""
}
