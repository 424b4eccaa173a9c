// Package domain provides domain-specific error definitions and utilities.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Queue item errors.
var (
	ErrItemNotFound      = errors.New("queue item not found")
	ErrItemAlreadyExists = errors.New("queue item already exists")
	ErrItemNotClaimed    = errors.New("queue item is not claimed by this worker")
)

// Worker errors.
var (
	ErrWorkerNotFound = errors.New("worker not found")
)

// General domain errors.
var (
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports bad enqueue input. Items failing validation are
// rejected synchronously and never queued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitedError reports provider throttling. It carries the provider's
// retry-after hint when one was supplied; zero means no hint.
type RateLimitedError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// HasHint returns true if the provider supplied a retry-after hint.
func (e *RateLimitedError) HasHint() bool {
	return e.RetryAfter > 0
}

// TimeoutError reports an item whose embedding call exceeded its processing
// deadline. Timeouts are retryable and count against the retry budget.
type TimeoutError struct {
	Operation string
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Elapsed)
}

// NetworkError reports a transport-level failure reaching the provider.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// CircuitOpenError is returned when the circuit breaker rejects a call
// without invoking the provider.
type CircuitOpenError struct {
	Name     string
	OpenedAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open", e.Name)
}

// DeadLetterError marks an item whose retry budget is exhausted. The item is
// terminal and retained for inspection, never retried.
type DeadLetterError struct {
	ItemID   string
	Attempts int
	Cause    error
}

func (e *DeadLetterError) Error() string {
	return fmt.Sprintf("item %s dead-lettered after %d attempts: %v", e.ItemID, e.Attempts, e.Cause)
}

func (e *DeadLetterError) Unwrap() error {
	return e.Cause
}

// AlreadyRunningError is returned when a worker start is requested while the
// worker is not in the stopped state.
type AlreadyRunningError struct {
	WorkerID string
	Status   string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("worker %s is already %s", e.WorkerID, e.Status)
}
