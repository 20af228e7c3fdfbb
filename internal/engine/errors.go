package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an execution attempt failed. Kinds end up
// on the execution record's error message, so users can tell a bad
// token pair from a flaky quote API.
type ErrorKind string

const (
	// ErrorKindUnsupportedToken: token pair outside the configured
	// set. Fatal for the cycle, never retried.
	ErrorKindUnsupportedToken ErrorKind = "UnsupportedToken"
	// ErrorKindQuoteUnavailable: quote API errors or timeouts after
	// all retry attempts were exhausted.
	ErrorKindQuoteUnavailable ErrorKind = "QuoteUnavailable"
	// ErrorKindSubmissionFailed: transaction submission errors or
	// timeouts after all retry attempts were exhausted.
	ErrorKindSubmissionFailed ErrorKind = "SubmissionFailed"
)

// ErrRunInProgress is returned by Run when another engine instance
// holds the run lease. The caller treats it as a no-op, not a fault.
var ErrRunInProgress = errors.New("another engine instance holds the run lease")

// ExecutionError is a terminal per-cycle failure carrying its kind.
type ExecutionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
