// Package ratelimit enforces the outbound request pacing contract: one
// request at a time, with a minimum interval between consecutive calls
// regardless of outcome.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pacing.
var (
	paceWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_pace_waits_total",
		Help: "Requests that had to wait for the inter-request interval",
	})

	paceWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketsync_pace_wait_seconds",
		Help:    "Time spent waiting for the inter-request interval",
		Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1, 2},
	})
)

// Pacer spaces calls a fixed minimum interval apart. It holds no state
// beyond the last-call timestamp and is not safe for concurrent use; the
// engine is strictly sequential by design.
type Pacer struct {
	interval time.Duration
	lastCall time.Time
}

// New creates a pacer. A non-positive interval disables pacing.
func New(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until the interval has elapsed since the previous completed
// call, or the context is cancelled. The first call never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 || p.lastCall.IsZero() {
		return nil
	}
	wait := p.interval - time.Since(p.lastCall)
	if wait <= 0 {
		return nil
	}

	paceWaitsTotal.Inc()
	paceWaitSeconds.Observe(wait.Seconds())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Done marks the completion of a call, restarting the interval.
func (p *Pacer) Done() {
	p.lastCall = time.Now()
}

// Interval returns the configured minimum interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}
