// Package client provides the rate-limited HTTP transport used to talk to
// the CoinGecko API, with request pacing, outcome classification, and
// retry support.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinpulse/marketsync/pkg/ratelimit"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketsync_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_outcomes_total",
		Help: "Total request outcomes by class",
	}, []string{"class"})
)

// OutcomeClass classifies the result of one provider request.
type OutcomeClass string

const (
	// OutcomeSuccess is a 200 response with a readable body.
	OutcomeSuccess OutcomeClass = "success"

	// OutcomeRateLimited is a 429 response; the caller decides retry policy.
	OutcomeRateLimited OutcomeClass = "rate_limited"

	// OutcomeHardError is any other HTTP status.
	OutcomeHardError OutcomeClass = "hard_error"

	// OutcomeTransportError is a connection, DNS, or timeout failure.
	OutcomeTransportError OutcomeClass = "transport_error"
)

// Result is the classified outcome of one request.
type Result struct {
	Class      OutcomeClass
	StatusCode int
	Body       []byte
	Err        error
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL of the provider API, without trailing slash.
	BaseURL string

	// APIKey is sent as the x-cg-api-key header when non-empty.
	APIKey string

	// UserAgent header sent with every request.
	UserAgent string

	// MinInterval is the minimum delay enforced between consecutive
	// requests, regardless of outcome.
	MinInterval time.Duration

	// Timeout per request.
	Timeout time.Duration
}

// DefaultConfig returns a configuration suitable for the free API tier.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.coingecko.com/api/v3",
		UserAgent:   "Mozilla/5.0 TinPulseBot/1.0",
		MinInterval: 300 * time.Millisecond,
		Timeout:     30 * time.Second,
	}
}

// Client is a sequential, paced HTTP transport. It holds no cross-call
// state beyond the pacer's last-call timestamp, so a single instance must
// not be shared between goroutines.
type Client struct {
	httpClient *http.Client
	config     Config
	pacer      *ratelimit.Pacer
	logger     zerolog.Logger
}

// New creates a new transport.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "transport").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		pacer:  ratelimit.New(cfg.MinInterval),
		logger: logger,
	}, nil
}

// Get performs a paced GET request against an API endpoint path and
// classifies the response. It never retries; retry policy belongs to the
// caller.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) Result {
	if err := c.pacer.Wait(ctx); err != nil {
		return Result{Class: OutcomeTransportError, Err: fmt.Errorf("%w: %v", ErrContextCancelled, err)}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	u := c.config.BaseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{Class: OutcomeTransportError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-cg-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	c.pacer.Done()
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Request failed")
		outcomesTotal.WithLabelValues(string(OutcomeTransportError)).Inc()
		requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return Result{Class: OutcomeTransportError, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Debug().Str("endpoint", endpoint).Msg("Rate limited")
		outcomesTotal.WithLabelValues(string(OutcomeRateLimited)).Inc()
		return Result{Class: OutcomeRateLimited, StatusCode: resp.StatusCode}

	case resp.StatusCode != http.StatusOK:
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Unexpected provider status")
		outcomesTotal.WithLabelValues(string(OutcomeHardError)).Inc()
		return Result{
			Class:      OutcomeHardError,
			StatusCode: resp.StatusCode,
			Err:        &APIError{StatusCode: resp.StatusCode, Class: OutcomeHardError, Message: resp.Status},
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Reading response body failed")
		outcomesTotal.WithLabelValues(string(OutcomeTransportError)).Inc()
		return Result{Class: OutcomeTransportError, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	outcomesTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
	return Result{Class: OutcomeSuccess, StatusCode: resp.StatusCode, Body: body}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
