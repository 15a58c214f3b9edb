package inference

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule maps findings containing any keyword to a code.
type Rule struct {
	Code     string   `yaml:"code"`
	Keywords []string `yaml:"keywords"`
}

func (r Rule) matches(finding string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(finding, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Refinement flags an unspecified code when the findings support a more
// specific replacement.
type Refinement struct {
	Code        string              `yaml:"code"`
	Replacement string              `yaml:"replacement"`
	Severity    claimgraph.Severity `yaml:"severity"`
	Evidence    []string            `yaml:"evidence"`
	Issue       string              `yaml:"issue"`
}

// RuleSet is a parsed rule table.
type RuleSet struct {
	Diagnoses    []Rule       `yaml:"diagnoses"`
	Procedures   []Rule       `yaml:"procedures"`
	Observations []Rule       `yaml:"observations"`
	Refinements  []Refinement `yaml:"refinements"`
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRules reads a rule table from path.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

var defaultRules = sync.OnceValues(func() (*RuleSet, error) {
	return ParseRules(defaultRulesYAML)
})

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleSet {
	rs, err := defaultRules()
	if err != nil {
		panic(fmt.Sprintf("inference: built-in rules: %v", err))
	}
	return rs
}

// Validate checks that every rule has a code and at least one keyword.
func (rs *RuleSet) Validate() error {
	var errs []error
	check := func(section string, rules []Rule) {
		for i, r := range rules {
			if r.Code == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: missing code", section, i))
			}
			if len(r.Keywords) == 0 {
				errs = append(errs, fmt.Errorf("%s[%d]: no keywords", section, i))
			}
		}
	}
	check("diagnoses", rs.Diagnoses)
	check("procedures", rs.Procedures)
	check("observations", rs.Observations)
	for i, ref := range rs.Refinements {
		if ref.Code == "" || ref.Replacement == "" {
			errs = append(errs, fmt.Errorf("refinements[%d]: code and replacement are required", i))
		}
		if !ref.Severity.Valid() {
			errs = append(errs, fmt.Errorf("refinements[%d]: invalid severity %q", i, ref.Severity))
		}
		if len(ref.Evidence) == 0 {
			errs = append(errs, fmt.Errorf("refinements[%d]: no evidence keywords", i))
		}
	}
	return errors.Join(errs...)
}

// Rules is a deterministic backend driven by a RuleSet. Extraction reads
// stored clinical records; coding is keyword lookup; audit checks coverage
// and specificity.
type Rules struct {
	set *RuleSet
}

// NewRules returns a backend over rs, or the built-in table when rs is nil.
func NewRules(rs *RuleSet) *Rules {
	if rs == nil {
		rs = DefaultRules()
	}
	return &Rules{set: rs}
}

// openRules reads an optional "rules_file".
func openRules(s Settings) (claimgraph.Inferencer, error) {
	path := s.String("rules_file", "")
	if path == "" {
		return NewRules(nil), nil
	}
	rs, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewRules(rs), nil
}

// Extract implements claimgraph.Inferencer.
func (r *Rules) Extract(ctx context.Context, in claimgraph.ExtractInput) (claimgraph.Extracted, error) {
	if err := ctx.Err(); err != nil {
		return claimgraph.Extracted{}, err
	}
	out := claimgraph.Extracted{
		Diagnoses:    []string{},
		Procedures:   []string{},
		Observations: []string{},
	}
	for _, rec := range in.Records {
		res, err := fhir.Decode(rec.Type, rec.Data)
		if err != nil {
			return claimgraph.Extracted{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		switch res.ResourceType() {
		case fhir.TypeCondition:
			out.Diagnoses = append(out.Diagnoses, res.Summary())
		case fhir.TypeProcedure:
			out.Procedures = append(out.Procedures, res.Summary())
		case fhir.TypeObservation:
			out.Observations = append(out.Observations, res.Summary())
		}
		if out.SubjectID == "" {
			out.SubjectID = fhir.SubjectID(res)
		}
	}
	return out, nil
}

// Code implements claimgraph.Inferencer. Retries apply every refinement the
// findings support.
func (r *Rules) Code(ctx context.Context, in claimgraph.CodeInput) (claimgraph.Coded, error) {
	if err := ctx.Err(); err != nil {
		return claimgraph.Coded{}, err
	}
	out := claimgraph.Coded{
		ICD10: lookup(r.set.Diagnoses, in.Extracted.Diagnoses),
		CPT:   lookup(r.set.Procedures, in.Extracted.Procedures),
		LOINC: lookup(r.set.Observations, in.Extracted.Observations),
	}
	if in.Feedback == nil {
		return out, nil
	}

	corpus := findingsText(in.Extracted)
	icd := make([]string, 0, len(out.ICD10))
	for _, code := range out.ICD10 {
		if ref, ok := r.refinementFor(code, corpus); ok {
			code = ref.Replacement
		}
		if !slices.Contains(icd, code) {
			icd = append(icd, code)
		}
	}
	out.ICD10 = icd
	return out, nil
}

// Audit implements claimgraph.Inferencer.
func (r *Rules) Audit(ctx context.Context, in claimgraph.AuditInput) (claimgraph.Audit, error) {
	if err := ctx.Err(); err != nil {
		return claimgraph.Audit{}, err
	}
	var a auditBuilder

	if in.Coded.Empty() {
		a.flag(claimgraph.SeverityHigh, "no billing codes assigned", "Review the extracted findings and assign codes")
		return a.result(), nil
	}
	for _, d := range in.Extracted.Diagnoses {
		if _, ok := match(r.set.Diagnoses, d); !ok {
			a.flag(claimgraph.SeverityHigh,
				fmt.Sprintf("no ICD-10 code for diagnosis %q", d),
				"Add a diagnosis rule or code it manually")
		}
	}
	if len(in.Coded.CPT) > 0 && len(in.Coded.ICD10) == 0 {
		a.flag(claimgraph.SeverityMedium,
			"procedures billed without a supporting diagnosis",
			"Assign at least one ICD-10 code")
	}

	corpus := findingsText(in.Extracted)
	for _, code := range in.Coded.ICD10 {
		if ref, ok := r.refinementFor(code, corpus); ok {
			issue := ref.Issue
			if issue == "" {
				issue = fmt.Sprintf("%s is less specific than the findings support", ref.Code)
			}
			a.flag(ref.Severity, issue, fmt.Sprintf("Replace %s with %s", ref.Code, ref.Replacement))
		}
	}
	return a.result(), nil
}

func (r *Rules) refinementFor(code, corpus string) (Refinement, bool) {
	for _, ref := range r.set.Refinements {
		if ref.Code != code {
			continue
		}
		for _, ev := range ref.Evidence {
			if strings.Contains(corpus, strings.ToLower(ev)) {
				return ref, true
			}
		}
	}
	return Refinement{}, false
}

func match(rules []Rule, finding string) (string, bool) {
	finding = strings.ToLower(finding)
	for _, r := range rules {
		if r.matches(finding) {
			return r.Code, true
		}
	}
	return "", false
}

// lookup codes each finding, dropping unmatched ones and duplicates.
func lookup(rules []Rule, findings []string) []string {
	out := []string{}
	for _, f := range findings {
		code, ok := match(rules, f)
		if ok && !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out
}

func findingsText(e claimgraph.Extracted) string {
	parts := slices.Concat(e.Diagnoses, e.Procedures, e.Observations)
	return strings.ToLower(strings.Join(parts, "\n"))
}

type auditBuilder struct {
	issues   []string
	recs     []string
	severity claimgraph.Severity
}

var severityRank = map[claimgraph.Severity]int{
	claimgraph.SeverityLow:    1,
	claimgraph.SeverityMedium: 2,
	claimgraph.SeverityHigh:   3,
}

func (b *auditBuilder) flag(sev claimgraph.Severity, issue, rec string) {
	b.issues = append(b.issues, issue)
	if !slices.Contains(b.recs, rec) {
		b.recs = append(b.recs, rec)
	}
	if severityRank[sev] > severityRank[b.severity] {
		b.severity = sev
	}
}

func (b *auditBuilder) result() claimgraph.Audit {
	if len(b.issues) == 0 {
		return claimgraph.Audit{
			Passed:          true,
			Issues:          []string{},
			Severity:        claimgraph.SeverityLow,
			Recommendations: []string{},
		}
	}
	return claimgraph.Audit{
		Passed:          false,
		Issues:          b.issues,
		Severity:        b.severity,
		Recommendations: b.recs,
	}
}
