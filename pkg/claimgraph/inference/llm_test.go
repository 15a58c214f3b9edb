package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/llm"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/retry"
)

func newTestLLM(t *testing.T, client llm.Completer, opts ...LLMOption) *LLM {
	t.Helper()
	l, err := NewLLM(client, opts...)
	require.NoError(t, err)
	return l
}

func TestNewLLM_NilClient(t *testing.T) {
	_, err := NewLLM(nil)
	assert.Error(t, err)
}

func TestLLM_Extract(t *testing.T) {
	client := llm.NewMockClient("Here you go:\n```json\n" +
		`{"diagnoses":["Hypertension"],"procedures":[],"patient_id":"patient-123"}` + "\n```")
	l := newTestLLM(t, client)

	records := recordsFrom(t, fhir.MinimalDataset("", fixedNow))
	ext, err := l.Extract(context.Background(), claimgraph.ExtractInput{SubjectIDs: []string{"patient-123"}, Records: records})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hypertension"}, ext.Diagnoses)
	assert.NotNil(t, ext.Observations, "missing lists become empty")
	assert.Equal(t, "patient-123", ext.SubjectID)

	calls := client.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Messages[0].Content
	assert.Contains(t, prompt, "[Condition condition-1] Type 2 Diabetes Mellitus")
	assert.Contains(t, prompt, "[Observation observation-1] Hemoglobin A1c 7.8%")
	assert.Equal(t, DefaultPrompts().System, calls[0].SystemPrompt)
}

func TestLLM_CodeCarriesFeedback(t *testing.T) {
	client := llm.NewMockClient(`{"icd10_codes":["E11.65"],"cpt_codes":["82947"]}`)
	l := newTestLLM(t, client, WithLLMModel("haiku"))

	prev := claimgraph.Coded{ICD10: []string{"E11.9"}}
	coded, err := l.Code(context.Background(), claimgraph.CodeInput{
		Extracted: demoExtracted(),
		Attempt:   2,
		Feedback: &claimgraph.Audit{
			Severity:        claimgraph.SeverityMedium,
			Issues:          []string{"unspecified diabetes"},
			Recommendations: []string{"use E11.65"},
		},
		Previous: &prev,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"E11.65"}, coded.ICD10)
	assert.Equal(t, []string{}, coded.LOINC)

	req := client.Calls()[0]
	assert.Equal(t, "haiku", req.Model)
	assert.Contains(t, req.Messages[0].Content, "attempt 2")
	assert.Contains(t, req.Messages[0].Content, "issues: unspecified diabetes; recommendations: use E11.65")
	assert.Contains(t, req.Messages[0].Content, `"E11.9"`)
}

func TestLLM_CodeFirstPassSaysNone(t *testing.T) {
	client := llm.NewMockClient(`{"icd10_codes":[]}`)
	l := newTestLLM(t, client)

	_, err := l.Code(context.Background(), claimgraph.CodeInput{Extracted: demoExtracted(), Attempt: 1})
	require.NoError(t, err)
	assert.Contains(t, client.Calls()[0].Messages[0].Content, "Audit feedback: none")
}

func TestLLM_Audit(t *testing.T) {
	client := llm.NewMockClient(`{"passed":false,"issues":["x"],"severity":"high"}`)
	a, err := newTestLLM(t, client).Audit(context.Background(), claimgraph.AuditInput{})
	require.NoError(t, err)
	assert.False(t, a.Passed)
	assert.Equal(t, claimgraph.SeverityHigh, a.Severity)
	assert.Equal(t, []string{}, a.Recommendations)
}

func TestLLM_AuditUnknownSeverity(t *testing.T) {
	client := llm.NewMockClient(`{"passed":true,"severity":"apocalyptic"}`)
	_, err := newTestLLM(t, client).Audit(context.Background(), claimgraph.AuditInput{})

	var outErr *retry.OutputError
	require.True(t, errors.As(err, &outErr))
	assert.Equal(t, "audit", outErr.Kind)
	assert.Equal(t, retry.CategoryInvalidOutput, retry.Categorize(err))
}

func TestLLM_InvalidJSON(t *testing.T) {
	for name, content := range map[string]string{
		"no object": "I cannot help with that.",
		"malformed": `{"icd10_codes": [E11.9]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newTestLLM(t, llm.NewMockClient(content)).Code(context.Background(), claimgraph.CodeInput{})

			var outErr *retry.OutputError
			require.True(t, errors.As(err, &outErr))
			assert.Equal(t, "code", outErr.Kind)
			assert.Equal(t, content, outErr.Output)
		})
	}
}

func TestLLM_TokenBudget(t *testing.T) {
	client := llm.NewMockClient(`{}`)
	l := newTestLLM(t, client, WithTokenBudget(10))

	_, err := l.Audit(context.Background(), claimgraph.AuditInput{Extracted: demoExtracted()})

	assert.ErrorIs(t, err, ErrPromptTooLarge)
	var sizeErr *PromptTooLargeError
	require.True(t, errors.As(err, &sizeErr))
	assert.Greater(t, sizeErr.Tokens, 10)
	assert.Empty(t, client.Calls(), "oversized prompts are never sent")
	assert.False(t, retry.IsRetryable(err))
}

func TestLLM_CountTokens(t *testing.T) {
	l := newTestLLM(t, llm.NewMockClient())
	assert.Equal(t, 0, l.CountTokens(""))
	assert.Greater(t, l.CountTokens("Type 2 diabetes mellitus with hyperglycemia"), 3)
}

func TestLLM_ClientError(t *testing.T) {
	boom := llm.NewError("complete", errors.New("rate limited"), true)
	_, err := newTestLLM(t, llm.NewMockClient().WithError(boom)).Extract(context.Background(), claimgraph.ExtractInput{SubjectIDs: []string{"p"}})

	assert.ErrorIs(t, err, boom)
	assert.True(t, retry.IsRetryable(err))
}

func TestLLM_UndefinedPromptVariable(t *testing.T) {
	p := DefaultPrompts()
	p.Audit = "Check ${coded} against ${policy}"
	client := llm.NewMockClient(`{}`)

	_, err := newTestLLM(t, client, WithPrompts(p)).Audit(context.Background(), claimgraph.AuditInput{})

	var undef *UndefinedVariableError
	require.True(t, errors.As(err, &undef))
	assert.Equal(t, []string{"policy"}, undef.Names)
	assert.Empty(t, client.Calls())
}

func TestRender(t *testing.T) {
	out, err := render(`{"a": "${x}"} ${y}$z`, map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	assert.Equal(t, `{"a": "1"} two$z`, out)

	_, err = render("${a} ${b}", nil)
	assert.EqualError(t, err, "undefined prompt variables: a, b")
}

// meteredClient reports fixed token usage on every call.
type meteredClient struct {
	content string
	usage   llm.TokenUsage
}

func (m meteredClient) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: m.content, Usage: m.usage}, nil
}

func TestLLM_UsageAccumulates(t *testing.T) {
	client := meteredClient{
		content: `{"icd10_codes":["I10"],"cpt_codes":[],"loinc_codes":[]}`,
		usage:   llm.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}
	l := newTestLLM(t, client)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := l.Code(context.Background(), claimgraph.CodeInput{Extracted: demoExtracted(), Attempt: attempt})
		require.NoError(t, err)
	}

	assert.Equal(t, llm.TokenUsage{InputTokens: 200, OutputTokens: 40, TotalTokens: 240}, l.Usage())
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes, so the limit falls inside a rune.
	s := strings.Repeat("a", maxEchoedOutput-1) + strings.Repeat("é", 10)

	got := truncate(s)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxEchoedOutput-1)+"...", got)
	assert.Equal(t, "short", truncate("short"))
}
