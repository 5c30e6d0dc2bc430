package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means the completion service or a tool failed or timed out.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrMalformedResponse means a reply could not be parsed per the stage contract.
	ErrMalformedResponse = errors.New("malformed response")
)

// CompletionError carries the failure kind plus the underlying cause.
type CompletionError struct {
	Kind error
	Err  error
}

func (e *CompletionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Unavailable wraps err as a ServiceUnavailable failure.
func Unavailable(err error) error {
	return &CompletionError{Kind: ErrServiceUnavailable, Err: err}
}

// Malformed wraps err as a MalformedResponse failure.
func Malformed(err error) error {
	return &CompletionError{Kind: ErrMalformedResponse, Err: err}
}

// FailureKind classifies an error returned by a Completer. Deadline and
// cancellation errors count as ServiceUnavailable.
func FailureKind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformedResponse):
		return ErrMalformedResponse
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrServiceUnavailable
	default:
		return ErrServiceUnavailable
	}
}

// ProcessingError is the only error surfaced by Pipeline.Process. It holds the
// partial state accumulated before the fault.
type ProcessingError struct {
	State   *State
	Stage   string
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pipeline stage %s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("pipeline stage %s: %s", e.Stage, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// UserMessage is shown to end users when a run fails.
const UserMessage = "We could not fully process your message. Please retry in a moment."
