package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the transport and retry policy.
var (
	// ErrRetriesExhausted is returned when rate-limit retries are exhausted.
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// pacing or backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError represents a provider error with status context.
type APIError struct {
	StatusCode int
	Class      OutcomeClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
