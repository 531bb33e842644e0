package engine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine failure for retry decisions.
type Kind int

const (
	// KindTransient failures are worth one retry with backoff.
	KindTransient Kind = iota

	// KindFatal failures indicate misconfiguration or an unavailable
	// engine; retrying the same call will not help.
	KindFatal
)

// Error wraps an engine failure with provider context and a retry class.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("engine [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WrapTransient wraps err as a retryable engine error.
func WrapTransient(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: provider, Kind: KindTransient, Err: err}
}

// WrapFatal wraps err as a non-retryable engine error.
func WrapFatal(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: provider, Kind: KindFatal, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors
// default to transient so one retry is attempted; context cancellation is
// never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return true
}

// classifyStatus maps an HTTP status code to an error kind.
// Rate limits and server errors are transient; client errors are fatal.
func classifyStatus(status int) Kind {
	if status == 429 || status >= 500 {
		return KindTransient
	}
	return KindFatal
}
