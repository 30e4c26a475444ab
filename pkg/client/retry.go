package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_retries_total",
		Help: "Total number of rate-limit retry attempts by endpoint kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketsync_retry_backoff_seconds",
		Help:    "Backoff duration for rate-limit retries by endpoint kind",
		Buckets: []float64{1, 5, 20, 40, 60, 120},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_retry_exhausted_total",
		Help: "Total number of times rate-limit retries were exhausted by endpoint kind",
	}, []string{"kind"})
)

// BackoffFunc maps a retry ordinal (1, 2, ...) to a sleep duration.
type BackoffFunc func(retry int) time.Duration

// LinearBackoff returns a backoff of base * retry ordinal, the cadence the
// free API tier expects after a 429.
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(retry int) time.Duration {
		return base * time.Duration(retry)
	}
}

// RetryPolicy re-runs a request while it keeps being rate limited. Listing
// and detail call sites carry different budgets, so each constructs its own
// policy.
type RetryPolicy struct {
	// Kind labels metrics and logs (e.g. "listing", "detail").
	Kind string

	// MaxRetries is the number of additional attempts after the first
	// request. A fetch therefore issues at most MaxRetries+1 requests.
	MaxRetries int

	// Backoff computes the sleep before each retry.
	Backoff BackoffFunc
}

// Do executes fn until it returns an outcome other than RateLimited or the
// retry budget is spent. On exhaustion it returns the last rate-limited
// Result together with ErrRetriesExhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() Result) (Result, error) {
	var res Result
	for attempt := 0; ; attempt++ {
		res = fn()
		if res.Class != OutcomeRateLimited {
			return res, nil
		}

		if attempt >= p.MaxRetries {
			retryExhaustedTotal.WithLabelValues(p.Kind).Inc()
			log.Warn().
				Str("kind", p.Kind).
				Int("attempts", attempt+1).
				Msg("Rate-limit retries exhausted")
			return res, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt+1)
		}

		wait := p.Backoff(attempt + 1)
		retriesTotal.WithLabelValues(p.Kind).Inc()
		retryBackoffSeconds.WithLabelValues(p.Kind).Observe(wait.Seconds())

		log.Debug().
			Str("kind", p.Kind).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Rate limited, backing off")

		select {
		case <-ctx.Done():
			return res, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}
	}
}
