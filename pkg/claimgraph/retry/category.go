// Package retry classifies collaborator failures and retries the transient
// ones with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, timeouts, a busy model process.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: missing binary, authentication failures, cancellation.
	CategoryPermanent

	// CategoryInvalidOutput indicates the collaborator answered with
	// something unusable, such as malformed JSON.
	CategoryInvalidOutput
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryInvalidOutput:
		return "invalid_output"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks err as not worth retrying.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// OutputError reports a collaborator response that could not be used.
type OutputError struct {
	// Kind is the call that produced the output ("extract", "code", "audit").
	Kind    string
	Message string
	// Output is the offending response, possibly truncated.
	Output string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("invalid %s output: %s", e.Kind, e.Message)
}

// retryable is implemented by errors that know whether they are transient.
type retryable interface {
	IsRetryable() bool
}

// Categorize determines how an error should be handled.
// Unknown errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var outErr *OutputError
	if errors.As(err, &outErr) {
		return CategoryInvalidOutput
	}

	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var r retryable
	if errors.As(err, &r) {
		if r.IsRetryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
