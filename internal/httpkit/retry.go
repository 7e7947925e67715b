package httpkit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"syscall"
	"time"
)

// retryTransport retries requests whose connection attempt failed with
// an error in isRetryableError. Requests with a body are retried only
// when GetBody can replay it.
type retryTransport struct {
	base   http.RoundTripper
	count  int
	delay  time.Duration
	logger *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	resp, err := t.base.RoundTrip(req)
	for attempt := 1; attempt <= t.count && isRetryableError(err) && replayable; attempt++ {
		t.debug("retrying request after connection failure", req, attempt, err)

		timer := time.NewTimer(t.delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("retry: rewind body: %w", bodyErr)
			}
			next.Body = body
		}
		resp, err = t.base.RoundTrip(next)
		if err == nil {
			t.debug("request recovered", req, attempt, nil)
		}
	}
	return resp, err
}

func (t *retryTransport) debug(msg string, req *http.Request, attempt int, err error) {
	if t.logger == nil {
		return
	}
	args := []any{"method", req.Method, "host", req.URL.Host, "attempt", attempt, "max_retries", t.count}
	if err != nil {
		args = append(args, "error", err)
	}
	t.logger.Debug(msg, args...)
}

// isRetryableError reports dial failures that happen before any bytes
// reach the server: no route, network unreachable and connection
// refused. A reset connection is not retried because the server may
// already have acted on the request.
func isRetryableError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
