package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts, not counting the first call
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // ceiling for any single delay
	BackoffMultiplier float64
	Jitter            bool // +/- 50%
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if ceiling := float64(p.MaxDelay); p.MaxDelay > 0 && d > ceiling {
		d = ceiling
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy is spent. A RetryAfter hint longer than MaxDelay ends retrying.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := range policy.MaxRetries {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		var me *ModelError
		if errors.As(err, &me) && me.RetryAfter > 0 {
			if policy.MaxDelay > 0 && me.RetryAfter > policy.MaxDelay {
				return zero, err
			}
			delay = me.RetryAfter
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, WrapTransport("", ctx.Err())
		case <-timer.C:
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}
	return zero, err
}

// RetryClient wraps a Client and retries retryable failures of Chat.
// Ping is passed through untouched.
type RetryClient struct {
	Client
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryClient wraps c with policy.
func NewRetryClient(c Client, policy RetryPolicy, logger *slog.Logger) *RetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &RetryClient{Client: c, policy: policy, logger: logger}
	if rc.policy.OnRetry == nil {
		rc.policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			rc.logger.Warn("retrying model call",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}
	return rc
}

// Chat retries the wrapped Chat.
func (r *RetryClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	return Retry(ctx, r.policy, func(ctx context.Context) (*ChatResponse, error) {
		return r.Client.Chat(ctx, model, messages, tools)
	})
}
