package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. The model asked for something that
// does not exist; this is reported back to it, not retried.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// ResourceError is returned by a tool whose backing resource (the
// browser) could not be acquired. Unlike ordinary tool failures it ends
// the run, since every later call would fail the same way.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
