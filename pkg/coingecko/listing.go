package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinpulse/marketsync/pkg/client"
	"github.com/tinpulse/marketsync/pkg/pagination"
)

// ErrMalformedPayload indicates a response body that did not decode into
// the expected shape.
var ErrMalformedPayload = errors.New("malformed payload")

// marketsEndpoint is the paginated listing of all coins by market cap.
const marketsEndpoint = "coins/markets"

// ListerConfig holds the listing fetch configuration.
type ListerConfig struct {
	// PageSize per listing page; a shorter page ends pagination.
	PageSize int

	// MaxPageRetries bounds 429 retries of a single page before the whole
	// listing fetch is abandoned.
	MaxPageRetries int

	// BackoffBase scales the linear 429 backoff.
	BackoffBase time.Duration
}

// DefaultListerConfig returns the free-tier listing configuration.
func DefaultListerConfig() ListerConfig {
	return ListerConfig{
		PageSize:       250,
		MaxPageRetries: 5,
		BackoffBase:    20 * time.Second,
	}
}

// Lister retrieves the complete market listing. The listing is
// all-or-nothing: downstream eligibility decisions need the full ranked
// universe, so any page failure aborts the fetch.
type Lister struct {
	client *client.Client
	config ListerConfig
	policy client.RetryPolicy
	logger zerolog.Logger
}

// NewLister creates a listing fetcher.
func NewLister(c *client.Client, cfg ListerConfig) *Lister {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	return &Lister{
		client: c,
		config: cfg,
		policy: client.RetryPolicy{
			Kind:       "listing",
			MaxRetries: cfg.MaxPageRetries,
			Backoff:    client.LinearBackoff(cfg.BackoffBase),
		},
		logger: log.With().Str("component", "lister").Logger(),
	}
}

// FetchAll walks the listing from page 1 until an empty or short page.
func (l *Lister) FetchAll(ctx context.Context) ([]MarketRow, error) {
	start := time.Now()
	var rows []MarketRow

	err := pagination.Walk(ctx, l.config.PageSize, func(page int) (int, error) {
		res, err := l.policy.Do(ctx, func() client.Result {
			return l.client.Get(ctx, marketsEndpoint, l.pageQuery(page))
		})
		if err != nil {
			return 0, fmt.Errorf("listing page %d: %w", page, err)
		}
		if res.Class != client.OutcomeSuccess {
			if res.Err != nil {
				return 0, fmt.Errorf("listing page %d: %w", page, res.Err)
			}
			return 0, fmt.Errorf("listing page %d: %s outcome", page, res.Class)
		}

		var chunk []MarketRow
		if err := json.Unmarshal(res.Body, &chunk); err != nil {
			return 0, fmt.Errorf("listing page %d: %w: %v", page, ErrMalformedPayload, err)
		}
		rows = append(rows, chunk...)

		l.logger.Debug().
			Int("page", page).
			Int("rows", len(rows)).
			Msg("Listing page fetched")
		return len(chunk), nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Listing fetch complete")
	return rows, nil
}

// pageQuery builds the listing query for one page.
func (l *Lister) pageQuery(page int) url.Values {
	return url.Values{
		"vs_currency":             {"usd"},
		"order":                   {"market_cap_desc"},
		"per_page":                {strconv.Itoa(l.config.PageSize)},
		"page":                    {strconv.Itoa(page)},
		"sparkline":               {"false"},
		"price_change_percentage": {"24h,7d,1y"},
	}
}
