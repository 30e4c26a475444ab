package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want []string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				StatusCode: 404,
				Class:      OutcomeHardError,
				Message:    "404 Not Found",
			},
			want: []string{"hard_error", "404", "Not Found"},
		},
		{
			name: "with wrapped error",
			err: &APIError{
				StatusCode: 500,
				Class:      OutcomeHardError,
				Message:    "500 Internal Server Error",
				Err:        errors.New("upstream unavailable"),
			},
			want: []string{"hard_error", "500", "upstream unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, substr := range tt.want {
				if !strings.Contains(msg, substr) {
					t.Errorf("Error() = %q, want it to contain %q", msg, substr)
				}
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner failure")
	apiErr := &APIError{
		StatusCode: 500,
		Class:      OutcomeHardError,
		Message:    "500 Internal Server Error",
		Err:        inner,
	}

	if !errors.Is(apiErr, inner) {
		t.Error("errors.Is failed to find the wrapped error")
	}

	wrapped := fmt.Errorf("fetch bitcoin: %w", apiErr)
	var target *APIError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to find *APIError in wrapped chain")
	}
	if target.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", target.StatusCode)
	}
}

func TestSentinelErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w after 3 attempts", ErrRetriesExhausted)
	if !errors.Is(wrapped, ErrRetriesExhausted) {
		t.Error("wrapped exhaustion error must match ErrRetriesExhausted")
	}

	cancelled := fmt.Errorf("%w: deadline exceeded", ErrContextCancelled)
	if !errors.Is(cancelled, ErrContextCancelled) {
		t.Error("wrapped cancellation must match ErrContextCancelled")
	}
}
