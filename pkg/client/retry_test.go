package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(20 * time.Second)

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := backoff(tt.retry); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetryPolicy_SuccessFirstAttempt(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 2,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	calls := 0
	res, err := policy.Do(context.Background(), func() Result {
		calls++
		return Result{Class: OutcomeSuccess, StatusCode: 200}
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if res.Class != OutcomeSuccess {
		t.Errorf("Class = %v, want success", res.Class)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_RateLimitedThenSuccess(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 2,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	outcomes := []OutcomeClass{OutcomeRateLimited, OutcomeRateLimited, OutcomeSuccess}
	calls := 0
	res, err := policy.Do(context.Background(), func() Result {
		class := outcomes[calls]
		calls++
		return Result{Class: class}
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if res.Class != OutcomeSuccess {
		t.Errorf("Class = %v, want success", res.Class)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 2,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	calls := 0
	res, err := policy.Do(context.Background(), func() Result {
		calls++
		return Result{Class: OutcomeRateLimited, StatusCode: 429}
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if res.Class != OutcomeRateLimited {
		t.Errorf("Class = %v, want rate_limited result on exhaustion", res.Class)
	}
	// MaxRetries additional attempts after the first request.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_HardErrorNotRetried(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 5,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	calls := 0
	res, err := policy.Do(context.Background(), func() Result {
		calls++
		return Result{Class: OutcomeHardError, StatusCode: 404}
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil (hard errors are the caller's problem)", err)
	}
	if res.Class != OutcomeHardError {
		t.Errorf("Class = %v, want hard_error", res.Class)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_TransportErrorNotRetried(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 5,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	calls := 0
	res, err := policy.Do(context.Background(), func() Result {
		calls++
		return Result{Class: OutcomeTransportError, Err: errors.New("connection reset")}
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if res.Class != OutcomeTransportError {
		t.Errorf("Class = %v, want transport_error", res.Class)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "listing",
		MaxRetries: 0,
		Backoff:    LinearBackoff(time.Millisecond),
	}

	calls := 0
	_, err := policy.Do(context.Background(), func() Result {
		calls++
		return Result{Class: OutcomeRateLimited}
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	policy := RetryPolicy{
		Kind:       "detail",
		MaxRetries: 3,
		Backoff:    LinearBackoff(time.Minute),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := policy.Do(ctx, func() Result {
		calls++
		return Result{Class: OutcomeRateLimited}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("Do() error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
}
