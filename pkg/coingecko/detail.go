package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinpulse/marketsync/pkg/cache"
	"github.com/tinpulse/marketsync/pkg/client"
	"github.com/tinpulse/marketsync/pkg/pagination"
	"github.com/tinpulse/marketsync/pkg/store"
)

// Meta column names written by the meta fetcher.
var MetaColumns = []string{
	"ath_price", "ath_date", "change_30d_pct", "chains",
	"explorer_url", "contract_address", "telegram_url",
	"reddit_url", "discord_url", "twitter_url",
}

// MetaConfig holds the per-coin fundamentals fetch configuration.
type MetaConfig struct {
	// Max429Retries bounds rate-limit retries before the id is deferred.
	Max429Retries int

	// BackoffBase scales the linear 429 backoff.
	BackoffBase time.Duration
}

// DefaultMetaConfig returns the free-tier meta fetch configuration.
func DefaultMetaConfig() MetaConfig {
	return MetaConfig{
		Max429Retries: 2,
		BackoffBase:   20 * time.Second,
	}
}

// MetaFetcher retrieves per-coin fundamentals and links from /coins/{id}.
// Failures that look like provider pushback (retry-exhausted 429, broken
// connection) defer the id for the skip window; one-off conditions (hard
// status, bad payload) leave it eligible for the next run.
type MetaFetcher struct {
	client *client.Client
	defers *cache.DeferList
	policy client.RetryPolicy
	logger zerolog.Logger
}

// NewMetaFetcher creates a meta fetcher gated by the given defer list.
func NewMetaFetcher(c *client.Client, defers *cache.DeferList, cfg MetaConfig) *MetaFetcher {
	return &MetaFetcher{
		client: c,
		defers: defers,
		policy: client.RetryPolicy{
			Kind:       "meta",
			MaxRetries: cfg.Max429Retries,
			Backoff:    client.LinearBackoff(cfg.BackoffBase),
		},
		logger: log.With().Str("component", "meta-fetcher").Logger(),
	}
}

// Fetch returns the meta cells for one id, or ok=false when there is no
// data this run. It never fails the run.
func (f *MetaFetcher) Fetch(ctx context.Context, id string, now time.Time) (map[string]string, bool) {
	if f.defers.Deferred(id, now) {
		f.logger.Debug().Str("id", id).Msg("Skipping deferred id")
		return nil, false
	}

	res, err := f.policy.Do(ctx, func() client.Result {
		return f.client.Get(ctx, "coins/"+id, metaQuery())
	})
	if err != nil {
		if errors.Is(err, client.ErrRetriesExhausted) {
			f.defers.Defer(id, now)
		}
		return nil, false
	}

	switch res.Class {
	case client.OutcomeTransportError:
		// A shutdown mid-fetch is not a provider failure; the id stays
		// eligible. A broken connection is assumed non-transient within
		// this run and defers.
		if ctx.Err() != nil || errors.Is(res.Err, client.ErrContextCancelled) {
			return nil, false
		}
		f.logger.Warn().Err(res.Err).Str("id", id).Msg("Transport error, deferring")
		f.defers.Defer(id, now)
		return nil, false
	case client.OutcomeHardError:
		f.logger.Warn().Int("status", res.StatusCode).Str("id", id).Msg("Hard error, skipping")
		return nil, false
	case client.OutcomeSuccess:
	default:
		return nil, false
	}

	var detail CoinDetail
	if err := json.Unmarshal(res.Body, &detail); err != nil {
		f.logger.Warn().Err(err).Str("id", id).Msg("Malformed detail payload, skipping")
		return nil, false
	}

	return metaCells(&detail), true
}

// metaCells maps a decoded detail payload onto the meta columns. Every
// column is present in the result: a refresh replaces stale values with
// whatever the provider reports now, including blanks.
func metaCells(d *CoinDetail) map[string]string {
	chains := make([]string, 0, len(d.Platforms))
	for chain := range d.Platforms {
		if chain != "" {
			chains = append(chains, chain)
		}
	}
	sort.Strings(chains)

	return map[string]string{
		"ath_price":        store.FormatOptionalFloat(d.ATHUSD()),
		"ath_date":         d.ATHDateUSD(),
		"change_30d_pct":   store.FormatOptionalFloat(d.Change30dUSD()),
		"chains":           strings.Join(chains, "|"),
		"explorer_url":     d.ExplorerURL(),
		"contract_address": d.ContractAddress(),
		"telegram_url":     d.TelegramURL(),
		"reddit_url":       d.RedditURL(),
		"discord_url":      d.DiscordURL(),
		"twitter_url":      d.TwitterURL(),
	}
}

func metaQuery() url.Values {
	return url.Values{
		"localization":            {"false"},
		"tickers":                 {"false"},
		"market_data":             {"true"},
		"community_data":          {"false"},
		"developer_data":          {"false"},
		"sparkline":               {"false"},
		"price_change_percentage": {"30d"},
	}
}

// ExchangeConfig holds the per-coin tickers fetch configuration.
type ExchangeConfig struct {
	// PageSize per tickers page; a shorter page ends pagination.
	PageSize int

	// Max429Retries bounds rate-limit retries before the id is deferred.
	Max429Retries int

	// BackoffBase scales the linear 429 backoff.
	BackoffBase time.Duration
}

// DefaultExchangeConfig returns the free-tier tickers configuration.
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		PageSize:      100,
		Max429Retries: 3,
		BackoffBase:   20 * time.Second,
	}
}

// ExchangeFetcher aggregates the exchanges listing a coin from the
// paginated /coins/{id}/tickers endpoint. The result for an id is cached
// permanently once non-empty; an empty aggregate is neither cached nor
// deferred so later runs retry it.
type ExchangeFetcher struct {
	client *client.Client
	defers *cache.DeferList
	values *cache.ValueCache
	config ExchangeConfig
	policy client.RetryPolicy
	logger zerolog.Logger
}

// NewExchangeFetcher creates an exchanges fetcher gated by the given defer
// list and value cache.
func NewExchangeFetcher(c *client.Client, defers *cache.DeferList, values *cache.ValueCache, cfg ExchangeConfig) *ExchangeFetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &ExchangeFetcher{
		client: c,
		defers: defers,
		values: values,
		config: cfg,
		policy: client.RetryPolicy{
			Kind:       "exchanges",
			MaxRetries: cfg.Max429Retries,
			Backoff:    client.LinearBackoff(cfg.BackoffBase),
		},
		logger: log.With().Str("component", "exchange-fetcher").Logger(),
	}
}

// Fetch returns the "|"-joined sorted exchange names for one id, or
// ok=false when there is no data this run.
func (f *ExchangeFetcher) Fetch(ctx context.Context, id string, now time.Time) (string, bool) {
	if v, ok := f.values.Get(id); ok {
		return v, true
	}
	if f.defers.Deferred(id, now) {
		f.logger.Debug().Str("id", id).Msg("Skipping deferred id")
		return "", false
	}

	endpoint := fmt.Sprintf("coins/%s/tickers", id)
	names := map[string]bool{}

	walkErr := pagination.Walk(ctx, f.config.PageSize, func(page int) (int, error) {
		res, err := f.policy.Do(ctx, func() client.Result {
			return f.client.Get(ctx, endpoint, f.pageQuery(page))
		})
		if err != nil {
			if errors.Is(err, client.ErrRetriesExhausted) {
				f.defers.Defer(id, now)
			}
			return 0, err
		}

		switch res.Class {
		case client.OutcomeTransportError:
			if ctx.Err() != nil || errors.Is(res.Err, client.ErrContextCancelled) {
				return 0, res.Err
			}
			f.logger.Warn().Err(res.Err).Str("id", id).Msg("Transport error, deferring")
			f.defers.Defer(id, now)
			return 0, res.Err
		case client.OutcomeHardError:
			f.logger.Warn().Int("status", res.StatusCode).Str("id", id).Msg("Hard error, skipping")
			return 0, res.Err
		case client.OutcomeSuccess:
		default:
			return 0, fmt.Errorf("unexpected %s outcome", res.Class)
		}

		var chunk TickersPage
		if err := json.Unmarshal(res.Body, &chunk); err != nil {
			f.logger.Warn().Err(err).Str("id", id).Msg("Malformed tickers payload, skipping")
			return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		for _, t := range chunk.Tickers {
			name := strings.TrimSpace(t.Market.Name)
			if name != "" {
				names[name] = true
			}
		}
		return len(chunk.Tickers), nil
	})
	if walkErr != nil {
		return "", false
	}

	if len(names) == 0 {
		// Empty success: not cached, not deferred. Next run tries again.
		return "", false
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	joined := strings.Join(sorted, "|")
	f.values.Put(id, joined)
	return joined, true
}

func (f *ExchangeFetcher) pageQuery(page int) url.Values {
	return url.Values{
		"per_page":              {strconv.Itoa(f.config.PageSize)},
		"page":                  {strconv.Itoa(page)},
		"include_exchange_logo": {"false"},
	}
}
