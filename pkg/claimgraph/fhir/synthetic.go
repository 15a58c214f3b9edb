package fhir

import (
	"fmt"
	"time"
)

// DefaultPatientID is the subject of the synthetic datasets.
const DefaultPatientID = "patient-123"

type conceptSpec struct {
	code, display string
}

var (
	sampleConditions = []conceptSpec{
		{"73211009", "Type 2 Diabetes Mellitus"},
		{"38341003", "Essential Hypertension"},
		{"44054006", "Type 2 Diabetes with hyperglycemia"},
	}
	sampleProcedures = []conceptSpec{
		{"33747003", "Blood glucose monitoring"},
		{"250424006", "Blood pressure measurement"},
		{"269868009", "Hemoglobin A1c measurement"},
	}
)

// SampleDataset returns three conditions, three procedures and three
// observations for one patient. Dates are offsets from now.
func SampleDataset(patientID string, now time.Time) Bundle {
	if patientID == "" {
		patientID = DefaultPatientID
	}
	subject := PatientRef(patientID)
	active := Concept(SystemConditionClinical, "active", "Active")

	var b Bundle
	for i, spec := range sampleConditions {
		recorded := now.AddDate(0, 0, -(30 + 60*i))
		b.Conditions = append(b.Conditions, Condition{
			ID:             fmt.Sprintf("condition-%d", i+1),
			Type:           TypeCondition,
			Code:           Concept(SystemSNOMED, spec.code, spec.display),
			Subject:        subject,
			RecordedDate:   &recorded,
			ClinicalStatus: &active,
		})
	}
	for i, spec := range sampleProcedures {
		performed := now.AddDate(0, 0, -(1 + 7*i))
		b.Procedures = append(b.Procedures, Procedure{
			ID:                fmt.Sprintf("procedure-%d", i+1),
			Type:              TypeProcedure,
			Code:              Concept(SystemSNOMED, spec.code, spec.display),
			Subject:           subject,
			PerformedDateTime: &performed,
			Status:            "completed",
		})
	}

	d7, d3, d1 := now.AddDate(0, 0, -7), now.AddDate(0, 0, -3), now.AddDate(0, 0, -1)
	b.Observations = []Observation{
		{
			ID:                "observation-1",
			Type:              TypeObservation,
			Code:              Concept(SystemLOINC, "4548-4", "Hemoglobin A1c"),
			Subject:           subject,
			ValueString:       "7.8%",
			EffectiveDateTime: &d7,
			Status:            "final",
		},
		{
			ID:                "observation-2",
			Type:              TypeObservation,
			Code:              Concept(SystemLOINC, "85354-9", "Blood pressure"),
			Subject:           subject,
			ValueString:       "140/90 mmHg",
			EffectiveDateTime: &d3,
			Status:            "final",
		},
		{
			ID:                "observation-3",
			Type:              TypeObservation,
			Code:              Concept(SystemLOINC, "2345-7", "Glucose [Mass/volume] in Serum or Plasma"),
			Subject:           subject,
			ValueQuantity:     &Quantity{Value: 145, Unit: "mg/dL"},
			EffectiveDateTime: &d1,
			Status:            "final",
		},
	}
	return b
}

// MinimalDataset returns the first condition, procedure and observation of
// SampleDataset.
func MinimalDataset(patientID string, now time.Time) Bundle {
	full := SampleDataset(patientID, now)
	return Bundle{
		Conditions:   full.Conditions[:1],
		Procedures:   full.Procedures[:1],
		Observations: full.Observations[:1],
	}
}
