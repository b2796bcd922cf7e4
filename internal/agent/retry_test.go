package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Base:         2.0,
	}
}

func TestClassifyBackendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retryClass
	}{
		{"nil", nil, classFatal},
		{"context cancelled", context.Canceled, classFatal},
		{"deadline exceeded", context.DeadlineExceeded, classFatal},
		{"structured 429", NewBackendError(errors.New("slow down"), 429, ""), classRetryable},
		{"structured 500", NewBackendError(errors.New("boom"), 500, ""), classRetryable},
		{"structured 503", NewBackendError(errors.New("overloaded"), 503, ""), classRetryable},
		{"structured 401", NewBackendError(errors.New("bad key"), 401, ""), classFatal},
		{"structured 400", NewBackendError(errors.New("bad request"), 400, ""), classFatal},
		{"structured 404", NewBackendError(errors.New("no such model"), 404, ""), classFatal},
		{"text rate limit", errors.New("429 Too Many Requests"), classRetryable},
		{"text overloaded", errors.New("api_error: Overloaded"), classRetryable},
		{"text bad gateway", errors.New("502 Bad Gateway"), classRetryable},
		{"text unauthorized", errors.New("401 Unauthorized: invalid api key"), classFatal},
		{"text validation", errors.New("validation failed: missing field"), classFatal},
		{"text connection reset", errors.New("read tcp: connection reset by peer"), classRetryable},
		{"text no such host", errors.New("dial tcp: lookup api.example.com: no such host"), classRetryable},
		{"unknown text", errors.New("something odd happened"), classFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBackendError(tt.err); got != tt.want {
				t.Errorf("classifyBackendError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := retryWithPolicy(context.Background(), fastPolicy(3), testLogger(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewBackendError(errors.New("overloaded"), 529, "")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustion(t *testing.T) {
	attempts := 0
	underlying := NewBackendError(errors.New("still overloaded"), 503, "")
	_, err := retryWithPolicy(context.Background(), fastPolicy(2), testLogger(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, underlying
	})
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	var re *RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RetryExhaustedError", err)
	}
	if re.Attempts != 2 {
		t.Errorf("RetryExhaustedError.Attempts = %d, want 2", re.Attempts)
	}
	if !errors.Is(err, underlying) {
		t.Errorf("exhaustion error does not wrap the last failure: %v", err)
	}
}

func TestRetryStopsOnFatalError(t *testing.T) {
	attempts := 0
	fatal := NewBackendError(errors.New("invalid api key"), 401, "")
	_, err := retryWithPolicy(context.Background(), fastPolicy(5), testLogger(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fatal
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1: non-retryable failures must fail on the first attempt", attempts)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("error = %v, want the fatal failure unchanged", err)
	}
	if IsRetryExhausted(err) {
		t.Errorf("fatal failure must not be reported as exhaustion")
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Base:         2.0,
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := retryWithPolicy(ctx, policy, testLogger(), func(ctx context.Context) (int, error) {
			return 0, NewBackendError(errors.New("overloaded"), 503, "")
		})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation during backoff")
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	attempts := 0
	start := time.Now()
	_, err := retryWithPolicy(context.Background(), fastPolicy(2), testLogger(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			// Retry-After beyond MaxDelay must be capped at MaxDelay.
			return 0, NewBackendError(errors.New("rate limit"), 429, "3600")
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("backoff took %v, want Retry-After capped at MaxDelay", elapsed)
	}
}

func TestDelayBounds(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Base:         2.0,
	}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		raw := float64(p.InitialDelay) * pow(p.Base, attempt)
		if raw > float64(p.MaxDelay) {
			raw = float64(p.MaxDelay)
		}
		lo := time.Duration(raw * 0.5)
		hi := time.Duration(raw)
		if d < lo || d > hi {
			t.Errorf("delay(%d) = %v, want within [%v, %v]", attempt, d, lo, hi)
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"plain error", errors.New("429"), 0},
		{"no header", NewBackendError(errors.New("429"), 429, ""), 0},
		{"seconds", NewBackendError(errors.New("429"), 429, "7"), 7 * time.Second},
		{"garbage", NewBackendError(errors.New("429"), 429, "soon"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRetryAfter(tt.err); got != tt.want {
				t.Errorf("extractRetryAfter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackendErrorMessage(t *testing.T) {
	err := NewBackendError(fmt.Errorf("boom"), 500, "")
	if got := err.Error(); got != "backend error (status 500): boom" {
		t.Errorf("Error() = %q", got)
	}
	bare := NewBackendError(fmt.Errorf("boom"), 0, "")
	if got := bare.Error(); got != "backend error: boom" {
		t.Errorf("Error() = %q", got)
	}
}
