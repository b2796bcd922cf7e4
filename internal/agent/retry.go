package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the backoff behavior for transient backend failures.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts, including the first (minimum 1)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the computed delay
	Base         float64       // exponential multiplier, e.g. 2.0
}

// DefaultRetryPolicy mirrors the backend defaults: three attempts, one second
// initial delay doubling up to 32 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     32 * time.Second,
		Base:         2.0,
	}
}

// delay computes the backoff for the given zero-based attempt number:
// min(initial * base^attempt, max), scaled by a uniform jitter factor in
// [0.5, 1.0) so concurrent agents do not retry in lockstep.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Base, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	d *= 0.5 + rand.Float64()*0.5
	return time.Duration(d)
}

// retryableFunc is one attempt of a retryable operation.
type retryableFunc[T any] func(ctx context.Context) (T, error)

// retryWithPolicy runs fn until it succeeds, fails fatally, or the policy's
// attempts are exhausted. Retryable failures sleep the computed backoff
// (honoring a server-provided Retry-After when present) between attempts.
// Exhaustion returns a RetryExhaustedError carrying the attempt count and the
// last underlying error.
func retryWithPolicy[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn retryableFunc[T]) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("cancelled during attempt %d: %w", attempt+1, ctx.Err())
		}
		if classifyBackendError(err) == classFatal {
			return zero, err
		}
		if attempt+1 >= policy.MaxAttempts {
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt + 1}
		}

		delay := policy.delay(attempt)
		if ra := extractRetryAfter(err); ra > 0 {
			delay = ra
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		logger.Warn("backend call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("cancelled during retry backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}
