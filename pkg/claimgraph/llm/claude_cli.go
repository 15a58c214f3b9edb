package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ClaudeCLI implements Completer by running the claude binary in print
// mode. The prompt goes over stdin, so large record dumps are not bound
// by argv limits.
type ClaudeCLI struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI returns a client for "claude" on PATH unless WithClaudePath
// says otherwise. Calls time out after two minutes by default.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{path: "claude", timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// Complete implements Completer.
func (c *ClaudeCLI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	prompt := promptText(req.Messages)
	if prompt == "" {
		return nil, NewError("complete", ErrEmptyPrompt, false)
	}
	args := c.args(req)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Dir = c.workdir
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Deadlines are worth another try, cancellation is not.
			return nil, NewError("complete", ctxErr, errors.Is(ctxErr, context.DeadlineExceeded))
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, NewError("complete", fmt.Errorf("%w: %s", err, msg), transientMessage(msg))
	}

	resp, err := c.decode(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

// args builds the command line. The prompt itself is not included.
func (c *ClaudeCLI) args(req CompletionRequest) []string {
	args := []string{"--print", "--output-format", "json"}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(req.MaxTokens))
	}
	return args
}

// promptText flattens a conversation into the single prompt the CLI takes.
// Earlier assistant turns are quoted so the model sees the exchange.
func promptText(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == RoleAssistant {
			b.WriteString("Assistant: ")
		}
		b.WriteString(content)
	}
	return b.String()
}

// envelope is the --output-format json result object.
type envelope struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// decode reads the result envelope. Output that is not an envelope is
// returned as plain text.
func (c *ClaudeCLI) decode(out []byte) (*CompletionResponse, error) {
	resp := &CompletionResponse{Model: c.model, FinishReason: "stop"}

	var env envelope
	if err := json.Unmarshal(out, &env); err != nil || env.Type != "result" {
		resp.Content = strings.TrimSpace(string(out))
		return resp, nil
	}
	if env.IsError {
		return nil, NewError("complete", errors.New(env.Result), transientMessage(env.Result))
	}
	resp.Content = strings.TrimSpace(env.Result)
	resp.Usage = TokenUsage{
		InputTokens:  env.Usage.InputTokens,
		OutputTokens: env.Usage.OutputTokens,
		TotalTokens:  env.Usage.InputTokens + env.Usage.OutputTokens,
	}
	return resp, nil
}

var transientMarkers = []string{"rate limit", "timeout", "timed out", "overloaded", "503", "529"}

// transientMessage reports whether an error message looks like load or
// throttling on the provider side.
func transientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
