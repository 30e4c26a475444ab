package job

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinpulse/marketsync/internal/config"
	"github.com/tinpulse/marketsync/pkg/cache"
	"github.com/tinpulse/marketsync/pkg/coingecko"
	"github.com/tinpulse/marketsync/pkg/reconcile"
	"github.com/tinpulse/marketsync/pkg/store"
)

// ExchangesColumn is the store column the exchanges run backfills.
const ExchangesColumn = "exchanges"

// Exchanges is the backfill run: it fills the exchanges column for rows
// that still lack one, aggregating each coin's tickers. Results are cached
// permanently per coin, so over many runs the column converges without
// re-fetching.
type Exchanges struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewExchanges creates the exchanges run.
func NewExchanges(cfg *config.Config) *Exchanges {
	return &Exchanges{
		cfg:    cfg,
		logger: log.With().Str("component", "exchanges-job").Logger(),
	}
}

// Run executes one exchanges sync. The store must already exist.
func (j *Exchanges) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	table, err := store.Load(j.cfg.Store.Path)
	if err != nil {
		return Report{}, fmt.Errorf("exchanges: %w (run the prices job first)", err)
	}
	table.EnsureColumns(ExchangesColumn)

	candidates := reconcile.SelectBlank(table, ExchangesColumn, j.cfg.Run.Limit)
	if len(candidates) == 0 {
		j.logger.Info().Msg("Exchanges: nothing to update")
		return Report{Elapsed: time.Since(start)}, nil
	}
	j.logger.Info().Int("candidates", len(candidates)).Msg("Backfilling exchanges")

	transport, err := newTransport(j.cfg)
	if err != nil {
		return Report{}, err
	}

	opener := newStateOpener(j.cfg)
	defer opener.Close()

	deferKV, err := opener.open(ctx, j.cfg.Cache.ExchangeDeferPath, "marketsync:defer:exchanges")
	if err != nil {
		return Report{}, fmt.Errorf("exchanges: %w", err)
	}
	valueKV, err := opener.open(ctx, j.cfg.Cache.ExchangeValuePath, "marketsync:values:exchanges")
	if err != nil {
		return Report{}, fmt.Errorf("exchanges: %w", err)
	}
	defers := cache.NewDeferList(deferKV, j.cfg.Cache.DeferWindow)
	values := cache.NewValueCache(valueKV)

	fetcher := coingecko.NewExchangeFetcher(transport, defers, values, coingecko.ExchangeConfig{
		PageSize:      j.cfg.Exchanges.PageSize,
		Max429Retries: j.cfg.Exchanges.Max429Retries,
		BackoffBase:   j.cfg.Exchanges.BackoffBase,
	})

	var snap reconcile.Snapshot
	for n, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		exchanges, ok := fetcher.Fetch(ctx, id, time.Now())
		if ok && exchanges != "" {
			snap = append(snap, reconcile.Update{
				ID:    id,
				Cells: map[string]string{ExchangesColumn: exchanges},
			})
		}
		if j.cfg.Run.Verbose || (n+1)%100 == 0 {
			j.logger.Info().
				Int("processed", n+1).
				Int("total", len(candidates)).
				Int("added", len(snap)).
				Msg("Exchanges progress")
		}
		if err := sleep(ctx, j.cfg.Exchanges.Sleep); err != nil {
			break
		}
	}

	if len(snap) > 0 {
		reconcile.Merge(table, snap)
	}
	if err := table.Write(j.cfg.Store.Path); err != nil {
		return Report{}, fmt.Errorf("exchanges: %w", err)
	}

	if err := deferKV.Flush(ctx); err != nil {
		return Report{}, fmt.Errorf("exchanges: flush defer cache: %w", err)
	}
	if err := valueKV.Flush(ctx); err != nil {
		return Report{}, fmt.Errorf("exchanges: flush value cache: %w", err)
	}

	report := Report{
		Attempted: len(candidates),
		Updated:   len(snap),
		Elapsed:   time.Since(start),
	}
	j.logger.Info().
		Int("attempted", report.Attempted).
		Int("added", report.Updated).
		Dur("elapsed", report.Elapsed).
		Msg("Exchanges run complete")
	return report, nil
}
