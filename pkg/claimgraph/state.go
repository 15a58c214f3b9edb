package claimgraph

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Action is the routing signal a stage leaves for the router.
// The zero value ActionUnset means the run has not started yet.
type Action int

// Routing signals.
const (
	ActionUnset Action = iota
	ActionCode
	ActionAudit
	ActionRetryCode
	ActionEnd
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionUnset:
		return ""
	case ActionCode:
		return "code"
	case ActionAudit:
		return "audit"
	case ActionRetryCode:
		return "retry_code"
	case ActionEnd:
		return "end"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is one of the declared actions.
func (a Action) Valid() bool {
	return a >= ActionUnset && a <= ActionEnd
}

// ParseAction converts a wire name into an Action.
// The empty string maps to ActionUnset.
func ParseAction(s string) (Action, error) {
	switch s {
	case "":
		return ActionUnset, nil
	case "code":
		return ActionCode, nil
	case "audit":
		return ActionAudit, nil
	case "retry_code":
		return ActionRetryCode, nil
	case "end":
		return ActionEnd, nil
	}
	return ActionUnset, fmt.Errorf("%w: %q", ErrIllegalAction, s)
}

// MarshalJSON encodes ActionUnset as null and everything else by name.
func (a Action) MarshalJSON() ([]byte, error) {
	if a == ActionUnset {
		return []byte("null"), nil
	}
	if !a.Valid() {
		return nil, &IllegalActionError{Action: a}
	}
	return json.Marshal(a.String())
}

// UnmarshalJSON rejects names outside the declared set.
func (a *Action) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ActionUnset
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Severity grades audit findings.
type Severity string

// Audit severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Extracted holds the clinical findings pulled out of the raw records.
type Extracted struct {
	Diagnoses    []string `json:"diagnoses"`
	Procedures   []string `json:"procedures"`
	Observations []string `json:"observations"`
	SubjectID    string   `json:"patient_id,omitempty"`
}

// Coded holds the billing codes assigned to the extracted findings.
type Coded struct {
	ICD10 []string `json:"icd10_codes"`
	CPT   []string `json:"cpt_codes"`
	LOINC []string `json:"loinc_codes"`
}

// Empty reports whether no code of any kind was assigned.
func (c Coded) Empty() bool {
	return len(c.ICD10) == 0 && len(c.CPT) == 0 && len(c.LOINC) == 0
}

// Audit is the verdict on one coding pass.
type Audit struct {
	Passed          bool     `json:"passed"`
	Issues          []string `json:"issues"`
	Severity        Severity `json:"severity"`
	Recommendations []string `json:"recommendations"`
}

// State is threaded through every stage of a run.
//
// The orchestrator owns it for the duration of the run. Stages receive a
// copy and describe their changes with an Update.
type State struct {
	SubjectIDs []string   `json:"resource_ids"`
	Extracted  *Extracted `json:"extracted_data"`
	Coded      *Coded     `json:"coded_data"`
	Audit      *Audit     `json:"audit_result"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	Next       Action     `json:"next_action"`
	Error      string     `json:"error,omitempty"`
}

// NewState returns the initial state of a run.
func NewState(subjectIDs []string, maxRetries int) State {
	return State{
		SubjectIDs: slices.Clone(subjectIDs),
		MaxRetries: maxRetries,
	}
}

// Failed reports whether the run ended with an error.
func (s State) Failed() bool {
	return s.Error != ""
}

// Passed reports whether the last audit passed.
func (s State) Passed() bool {
	return s.Audit != nil && s.Audit.Passed
}

// Update is a sparse change returned by a stage.
// Nil pointers, ActionUnset and an empty Error leave the state untouched.
type Update struct {
	Extracted  *Extracted
	Coded      *Coded
	Audit      *Audit
	RetryCount *int
	Next       Action
	Error      string
}

// Fail builds an update that records err and ends the run.
func Fail(err error) Update {
	return Update{Error: err.Error(), Next: ActionEnd}
}

// Apply merges u into s.
//
// The merge enforces the run invariants: findings are written once,
// the retry counter stays within MaxRetries, and an error once set is
// never replaced. A violation leaves s unchanged and is returned.
func (s *State) Apply(u Update) error {
	if u.Extracted != nil && s.Extracted != nil {
		return ErrAlreadyExtracted
	}
	if u.RetryCount != nil {
		if *u.RetryCount > s.MaxRetries {
			return fmt.Errorf("%w: %d > %d", ErrRetryOverflow, *u.RetryCount, s.MaxRetries)
		}
		if *u.RetryCount < s.RetryCount {
			return fmt.Errorf("%w: counter went back from %d to %d", ErrRetryOverflow, s.RetryCount, *u.RetryCount)
		}
	}

	if u.Extracted != nil {
		s.Extracted = u.Extracted
	}
	if u.Coded != nil {
		s.Coded = u.Coded
	}
	if u.Audit != nil {
		s.Audit = u.Audit
	}
	if u.RetryCount != nil {
		s.RetryCount = *u.RetryCount
	}
	if u.Next != ActionUnset {
		s.Next = u.Next
	}
	if u.Error != "" && s.Error == "" {
		s.Error = u.Error
	}
	return nil
}

// fail records err unless an earlier error is already present.
func (s *State) fail(err error) {
	if s.Error == "" {
		s.Error = err.Error()
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.SubjectIDs = slices.Clone(s.SubjectIDs)
	if s.Extracted != nil {
		e := *s.Extracted
		e.Diagnoses = slices.Clone(e.Diagnoses)
		e.Procedures = slices.Clone(e.Procedures)
		e.Observations = slices.Clone(e.Observations)
		out.Extracted = &e
	}
	if s.Coded != nil {
		c := *s.Coded
		c.ICD10 = slices.Clone(c.ICD10)
		c.CPT = slices.Clone(c.CPT)
		c.LOINC = slices.Clone(c.LOINC)
		out.Coded = &c
	}
	if s.Audit != nil {
		a := *s.Audit
		a.Issues = slices.Clone(a.Issues)
		a.Recommendations = slices.Clone(a.Recommendations)
		out.Audit = &a
	}
	return out
}
