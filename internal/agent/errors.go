package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

var (
	// ErrSessionBusy is returned when a session already has an active run.
	ErrSessionBusy = errors.New("session already has an active run")
	// ErrNothingToResume is returned when no task is given and the
	// session has no interrupted run.
	ErrNothingToResume = errors.New("no task given and nothing to resume")
	// ErrUnconsumedOutput is returned by the worker when the newest
	// message is its own output that nothing has answered yet.
	ErrUnconsumedOutput = errors.New("last message is unconsumed assistant output")
	// ErrShuttingDown is returned by the runner after Shutdown.
	ErrShuttingDown = errors.New("runner is shutting down")
)

// ErrorKind classifies a FAILED run.
type ErrorKind string

const (
	ErrorModelTimeout        ErrorKind = "model_timeout"
	ErrorModelRateLimit      ErrorKind = "model_rate_limit"
	ErrorModelInvalidOutput  ErrorKind = "model_invalid_output"
	ErrorModel               ErrorKind = "model_error"
	ErrorResourceAcquisition ErrorKind = "resource_acquisition"
	ErrorCancelled           ErrorKind = "cancelled"
	ErrorPersistence         ErrorKind = "persistence"
)

// ModelCallError wraps a failed worker or evaluator call.
type ModelCallError struct {
	Kind llm.ErrorKind
	Err  error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Kind, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

func modelCallError(err error) *ModelCallError {
	return &ModelCallError{Kind: llm.KindOf(err), Err: err}
}

// ToolExecutionError is a tool failure reported back to the model.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// ResourceAcquisitionError means a shared resource could not be started.
// It ends the run.
type ResourceAcquisitionError struct {
	Resource string
	Err      error
}

func (e *ResourceAcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Resource, e.Err)
}

func (e *ResourceAcquisitionError) Unwrap() error { return e.Err }

// kindOf maps a run-ending error to its FAILED kind.
func kindOf(err error) ErrorKind {
	var mce *ModelCallError
	var rae *ResourceAcquisitionError
	switch {
	case errors.As(err, &rae):
		return ErrorResourceAcquisition
	case errors.As(err, &mce):
		switch mce.Kind {
		case llm.ErrorKindTimeout:
			return ErrorModelTimeout
		case llm.ErrorKindRateLimit:
			return ErrorModelRateLimit
		case llm.ErrorKindInvalidOutput:
			return ErrorModelInvalidOutput
		}
		return ErrorModel
	case errors.Is(err, context.Canceled):
		return ErrorCancelled
	}
	return ErrorModel
}
