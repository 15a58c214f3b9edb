package inference

import (
	"fmt"
	"regexp"
	"strings"
)

// varPattern matches ${name} placeholders.
var varPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// UndefinedVariableError lists placeholders with no value.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return "undefined prompt variable: " + e.Names[0]
	}
	return "undefined prompt variables: " + strings.Join(e.Names, ", ")
}

// render substitutes ${name} placeholders. Every placeholder must have a
// value; literal braces elsewhere in the template are left alone.
func render(tmpl string, vars map[string]any) (string, error) {
	var missing []string
	out := varPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := vars[name]; ok {
			return fmt.Sprint(v)
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return out, &UndefinedVariableError{Names: missing}
	}
	return out, nil
}

// Prompts are the templates used by the LLM backend.
//
// Extract sees ${subject_ids} and ${records}. Code sees ${extracted},
// ${attempt}, ${feedback} and ${previous}. Audit sees ${extracted} and
// ${coded}.
type Prompts struct {
	System  string
	Extract string
	Code    string
	Audit   string
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		System: "You are a medical coding assistant. Answer with a single JSON object and nothing else.",
		Extract: `Extract the clinical findings for patients ${subject_ids} from these records:

${records}

Respond with JSON: {"diagnoses": [...], "procedures": [...], "observations": [...], "patient_id": "..."}`,
		Code: `Assign billing codes to these clinical findings (attempt ${attempt}):

${extracted}

Previous coding: ${previous}
Audit feedback: ${feedback}

Use ICD-10 for diagnoses, CPT for procedures and LOINC for observations.
Respond with JSON: {"icd10_codes": [...], "cpt_codes": [...], "loinc_codes": [...]}`,
		Audit: `Audit this coding for accuracy and completeness.

Findings:
${extracted}

Codes:
${coded}

Respond with JSON: {"passed": true|false, "issues": [...], "severity": "low"|"medium"|"high", "recommendations": [...]}`,
	}
}

// withOverrides replaces any template set in s.
func (p Prompts) withOverrides(s Settings) Prompts {
	p.System = s.String("system", p.System)
	p.Extract = s.String("extract", p.Extract)
	p.Code = s.String("code", p.Code)
	p.Audit = s.String("audit", p.Audit)
	return p
}
