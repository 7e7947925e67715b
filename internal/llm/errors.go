package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a model call failure.
type ErrorKind string

const (
	// ErrorKindTimeout covers request deadlines and provider 408/504s.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindRateLimit covers 429 responses and quota throttling.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindInvalidOutput means the model answered but the answer
	// could not be used (malformed JSON, empty reply, bad tool call).
	ErrorKindInvalidOutput ErrorKind = "invalid_output"
	// ErrorKindAuth covers 401/403.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindProvider is anything else the provider returned.
	ErrorKindProvider ErrorKind = "provider"
)

// ModelError is the typed error returned by every Client.
type ModelError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ModelError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		fmt.Fprintf(&b, "%s ", e.Provider)
	}
	fmt.Fprintf(&b, "model error (%s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", status %d", e.StatusCode)
	}
	b.WriteString(")")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ModelError) Unwrap() error { return e.Err }

// InvalidOutput builds a non-retryable invalid_output error.
func InvalidOutput(provider, format string, args ...any) *ModelError {
	return &ModelError{Kind: ErrorKindInvalidOutput, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// ErrorFromStatus maps an HTTP status code and body to a ModelError.
// retryAfter is the raw Retry-After header value, possibly empty.
func ErrorFromStatus(provider string, status int, body, retryAfter string) *ModelError {
	e := &ModelError{Provider: provider, StatusCode: status, Message: body}
	switch {
	case status == 401 || status == 403:
		e.Kind = ErrorKindAuth
	case status == 408 || status == 504:
		e.Kind = ErrorKindTimeout
		e.Retryable = true
	case status == 429:
		e.Kind = ErrorKindRateLimit
		e.Retryable = true
		e.RetryAfter = parseRetryAfter(retryAfter)
	case status == 400 || status == 404 || status == 413 || status == 422:
		e.Kind = ErrorKindProvider
	case status >= 500:
		e.Kind = ErrorKindProvider
		e.Retryable = true
	default:
		e.Kind = ErrorKindProvider
	}
	return e
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// WrapTransport converts a transport-level failure (no HTTP status) into
// a ModelError. Deadline and network timeouts become ErrorKindTimeout.
func WrapTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}
	e := &ModelError{Kind: ErrorKindProvider, Provider: provider, Err: err, Retryable: true}
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Retryable = false
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = ErrorKindTimeout
		e.Retryable = false
	case errors.As(err, &ne) && ne.Timeout():
		e.Kind = ErrorKindTimeout
	}
	return e
}

// KindOf returns the ErrorKind of err, treating untyped errors as
// provider errors and bare deadlines as timeouts.
func KindOf(err error) ErrorKind {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindProvider
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}
