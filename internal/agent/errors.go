// Package agent implements the conversational-agent runtime: the turn state
// machine, the tool-invocation coordinator, the retry/backoff policy for
// transient backend failures, and the event-subscription bus.
//
// This file defines the error taxonomy and backend failure classification.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// InvalidStateError reports caller misuse of the control surface, such as
// prompting while a turn is already active. State is left unchanged.
type InvalidStateError struct {
	Op    string
	Phase Phase
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while turn is %s", e.Op, e.Phase)
}

// UnknownToolError reports a tool-call request naming a tool that is not
// registered. Recovered locally as an error tool-result, never fatal to the
// turn.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// FieldError describes one schema violation in a tool call's arguments.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationError reports malformed tool arguments. The tool's capability is
// never invoked; the error is recovered as a tool-result describing every
// field-level violation.
type ValidationError struct {
	Tool   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("tool %s validation failed: %s", e.Tool, strings.Join(msgs, "; "))
}

// ToolExecutionError wraps a failure raised by a tool's capability. Captured
// per call and isolated from the rest of the batch.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// BackendError wraps a backend failure with its structured status signal when
// the provider adapter could extract one. Status 0 means no structured signal
// was available and classification falls back to text heuristics.
type BackendError struct {
	Err        error
	Status     int
	RetryAfter string // raw Retry-After value, seconds or HTTP date
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("backend error: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err with status metadata.
func NewBackendError(err error, status int, retryAfter string) *BackendError {
	return &BackendError{Err: err, Status: status, RetryAfter: retryAfter}
}

// RetryExhaustedError is the terminal failure after all retry attempts are
// spent. It carries the attempt count and the last underlying error, and is
// fatal to the turn.
type RetryExhaustedError struct {
	Err      error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted reports whether err is a retry exhaustion failure.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// retryClass is the retryability classification of a backend failure.
type retryClass int

const (
	classRetryable retryClass = iota
	classFatal
)

// classifyBackendError decides whether a backend failure is worth retrying.
// A structured status carried by a BackendError is the primary signal;
// matching status-code substrings in the error text is a degraded last-resort
// path for errors that carry no status.
func classifyBackendError(err error) retryClass {
	if err == nil {
		return classFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classFatal
	}

	var be *BackendError
	if errors.As(err, &be) && be.Status > 0 {
		return classifyStatus(be.Status)
	}

	return classifyBackendText(err.Error())
}

func classifyStatus(status int) retryClass {
	switch {
	case status == http.StatusTooManyRequests:
		return classRetryable
	case status >= 500:
		return classRetryable
	case status >= 400:
		return classFatal
	default:
		return classRetryable
	}
}

// classifyBackendText is the heuristic fallback when no structured status is
// available.
func classifyBackendText(msg string) retryClass {
	s := strings.ToLower(msg)

	// Rate limits and server errors are retryable.
	if strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") {
		return classRetryable
	}
	if strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "504") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "bad gateway") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "gateway timeout") ||
		strings.Contains(s, "overloaded") {
		return classRetryable
	}

	// Auth, quota and malformed-request failures never resolve on their own.
	if strings.Contains(s, "401") ||
		strings.Contains(s, "403") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "forbidden") ||
		strings.Contains(s, "invalid api key") ||
		strings.Contains(s, "authentication") {
		return classFatal
	}
	if strings.Contains(s, "404") || strings.Contains(s, "not found") {
		return classFatal
	}
	if strings.Contains(s, "400") ||
		strings.Contains(s, "422") ||
		strings.Contains(s, "bad request") ||
		strings.Contains(s, "invalid request") ||
		strings.Contains(s, "malformed") ||
		strings.Contains(s, "validation") {
		return classFatal
	}
	if strings.Contains(s, "402") ||
		strings.Contains(s, "quota") ||
		strings.Contains(s, "billing") {
		return classFatal
	}

	// Network-level trouble is transient.
	if strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "network") ||
		strings.Contains(s, "temporary failure") ||
		strings.Contains(s, "eof") {
		return classRetryable
	}

	return classFatal
}

// extractRetryAfter reads a server-suggested retry delay from the error, or 0
// if none is present.
func extractRetryAfter(err error) time.Duration {
	var be *BackendError
	if !errors.As(err, &be) || be.RetryAfter == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(be.RetryAfter, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, be.RetryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
