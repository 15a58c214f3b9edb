package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/llm"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/retry"
)

// DefaultTokenBudget caps the rendered prompt size.
const DefaultTokenBudget = 8000

// maxEchoedOutput bounds the response text kept in an OutputError.
const maxEchoedOutput = 512

// ErrPromptTooLarge is returned when a rendered prompt exceeds the budget.
var ErrPromptTooLarge = errors.New("prompt exceeds token budget")

// PromptTooLargeError reports the size of an oversized prompt.
type PromptTooLargeError struct {
	Kind   claimgraph.Kind
	Tokens int
	Budget int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("%s prompt: %d tokens, budget %d", e.Kind, e.Tokens, e.Budget)
}

func (e *PromptTooLargeError) Unwrap() error { return ErrPromptTooLarge }

// LLM asks a language model to do each stage's work and parses its JSON
// answers.
type LLM struct {
	client    llm.Completer
	prompts   Prompts
	model     string
	maxTokens int
	budget    int
	codec     tokenizer.Codec

	mu    sync.Mutex
	usage llm.TokenUsage
}

// LLMOption configures an LLM backend.
type LLMOption func(*LLM)

// WithPrompts replaces the prompt templates.
func WithPrompts(p Prompts) LLMOption {
	return func(l *LLM) { l.prompts = p }
}

// WithLLMModel sets the model named in each request.
func WithLLMModel(model string) LLMOption {
	return func(l *LLM) { l.model = model }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) LLMOption {
	return func(l *LLM) { l.maxTokens = n }
}

// WithTokenBudget caps the prompt size. Zero or less disables the check.
func WithTokenBudget(n int) LLMOption {
	return func(l *LLM) { l.budget = n }
}

// NewLLM returns a backend that sends prompts to client.
func NewLLM(client llm.Completer, opts ...LLMOption) (*LLM, error) {
	if client == nil {
		return nil, errors.New("nil completer")
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	l := &LLM{
		client:  client,
		prompts: DefaultPrompts(),
		budget:  DefaultTokenBudget,
		codec:   codec,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// openLLM builds a backend over the claude CLI.
func openLLM(s Settings) (claimgraph.Inferencer, error) {
	var cliOpts []llm.ClaudeOption
	if path := s.String("claude_path", ""); path != "" {
		cliOpts = append(cliOpts, llm.WithClaudePath(path))
	}
	if dir := s.String("workdir", ""); dir != "" {
		cliOpts = append(cliOpts, llm.WithWorkdir(dir))
	}
	if s.Has("timeout") {
		cliOpts = append(cliOpts, llm.WithTimeout(s.Duration("timeout", 0)))
	}
	model := s.String("model", "")
	if model != "" {
		cliOpts = append(cliOpts, llm.WithModel(model))
	}

	return NewLLM(llm.NewClaudeCLI(cliOpts...),
		WithLLMModel(model),
		WithMaxTokens(s.Int("max_tokens", 0)),
		WithTokenBudget(s.Int("token_budget", DefaultTokenBudget)),
		WithPrompts(DefaultPrompts().withOverrides(s.Sub("prompts"))),
	)
}

// CountTokens returns the cl100k token count of text.
func (l *LLM) CountTokens(text string) int {
	ids, _, err := l.codec.Encode(text)
	if err != nil {
		// Rough fallback: four bytes per token.
		return len(text) / 4
	}
	return len(ids)
}

// Extract implements claimgraph.Inferencer.
func (l *LLM) Extract(ctx context.Context, in claimgraph.ExtractInput) (claimgraph.Extracted, error) {
	content, err := l.complete(ctx, claimgraph.KindExtract, l.prompts.Extract, map[string]any{
		"subject_ids": strings.Join(in.SubjectIDs, ", "),
		"records":     describeRecords(in.Records),
	})
	if err != nil {
		return claimgraph.Extracted{}, err
	}
	out, err := decodeJSON[claimgraph.Extracted](claimgraph.KindExtract, content)
	if err != nil {
		return claimgraph.Extracted{}, err
	}
	out.Diagnoses = orEmpty(out.Diagnoses)
	out.Procedures = orEmpty(out.Procedures)
	out.Observations = orEmpty(out.Observations)
	return out, nil
}

// Code implements claimgraph.Inferencer.
func (l *LLM) Code(ctx context.Context, in claimgraph.CodeInput) (claimgraph.Coded, error) {
	feedback, previous := "none", "none"
	if in.Feedback != nil {
		feedback = fmt.Sprintf("severity %s; issues: %s; recommendations: %s",
			in.Feedback.Severity,
			strings.Join(in.Feedback.Issues, "; "),
			strings.Join(in.Feedback.Recommendations, "; "))
	}
	if in.Previous != nil {
		previous = toJSON(in.Previous)
	}
	content, err := l.complete(ctx, claimgraph.KindCode, l.prompts.Code, map[string]any{
		"extracted": toJSON(in.Extracted),
		"attempt":   in.Attempt,
		"feedback":  feedback,
		"previous":  previous,
	})
	if err != nil {
		return claimgraph.Coded{}, err
	}
	out, err := decodeJSON[claimgraph.Coded](claimgraph.KindCode, content)
	if err != nil {
		return claimgraph.Coded{}, err
	}
	out.ICD10 = orEmpty(out.ICD10)
	out.CPT = orEmpty(out.CPT)
	out.LOINC = orEmpty(out.LOINC)
	return out, nil
}

// Audit implements claimgraph.Inferencer.
func (l *LLM) Audit(ctx context.Context, in claimgraph.AuditInput) (claimgraph.Audit, error) {
	content, err := l.complete(ctx, claimgraph.KindAudit, l.prompts.Audit, map[string]any{
		"extracted": toJSON(in.Extracted),
		"coded":     toJSON(in.Coded),
	})
	if err != nil {
		return claimgraph.Audit{}, err
	}
	out, err := decodeJSON[claimgraph.Audit](claimgraph.KindAudit, content)
	if err != nil {
		return claimgraph.Audit{}, err
	}
	if out.Severity != "" && !out.Severity.Valid() {
		return claimgraph.Audit{}, &retry.OutputError{
			Kind:    string(claimgraph.KindAudit),
			Message: fmt.Sprintf("unknown severity %q", out.Severity),
			Output:  truncate(content),
		}
	}
	out.Issues = orEmpty(out.Issues)
	out.Recommendations = orEmpty(out.Recommendations)
	return out, nil
}

func (l *LLM) complete(ctx context.Context, kind claimgraph.Kind, tmpl string, vars map[string]any) (string, error) {
	prompt, err := render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt: %w", kind, err)
	}
	if l.budget > 0 {
		if n := l.CountTokens(l.prompts.System) + l.CountTokens(prompt); n > l.budget {
			return "", &PromptTooLargeError{Kind: kind, Tokens: n, Budget: l.budget}
		}
	}
	resp, err := l.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: l.prompts.System,
		Messages:     []llm.Message{llm.UserMessage(prompt)},
		Model:        l.model,
		MaxTokens:    l.maxTokens,
	})
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	l.usage.Add(resp.Usage)
	l.mu.Unlock()
	return resp.Content, nil
}

// Usage returns the tokens reported by the model across all calls so far.
func (l *LLM) Usage() llm.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// decodeJSON parses the first JSON object in content, tolerating code
// fences and surrounding prose.
func decodeJSON[T any](kind claimgraph.Kind, content string) (T, error) {
	var out T
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return out, &retry.OutputError{Kind: string(kind), Message: "no JSON object in response", Output: truncate(content)}
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return out, &retry.OutputError{Kind: string(kind), Message: err.Error(), Output: truncate(content)}
	}
	return out, nil
}

func describeRecords(records []claimgraph.Record) string {
	if len(records) == 0 {
		return "(no stored records)"
	}
	var b strings.Builder
	for _, rec := range records {
		summary := string(rec.Data)
		if res, err := fhir.Decode(rec.Type, rec.Data); err == nil {
			summary = res.Summary()
		}
		fmt.Fprintf(&b, "- [%s %s] %s\n", rec.Type, rec.ID, summary)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string) string {
	if len(s) <= maxEchoedOutput {
		return s
	}
	cut := maxEchoedOutput
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
