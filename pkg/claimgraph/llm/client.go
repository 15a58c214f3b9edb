// Package llm provides the language-model client used by the model-backed
// inference backend.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Completer sends a prompt to a model and returns its answer.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ErrEmptyPrompt indicates a request with no user content.
var ErrEmptyPrompt = errors.New("empty prompt")

// Error is a failed client operation.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError wraps err for operation op.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the call may succeed.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}
