package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinpulse/marketsync/internal/config"
	"github.com/tinpulse/marketsync/pkg/coingecko"
	"github.com/tinpulse/marketsync/pkg/reconcile"
	"github.com/tinpulse/marketsync/pkg/store"
)

// Live market columns refreshed by every prices run.
var liveColumns = []string{
	"rank", "price_usd",
	"change_24h_pct", "change_7d_pct", "change_1y_pct",
	"market_cap", "volume_24h",
	"status", "last_updated",
}

// Prices is the high-frequency run: it pulls the complete market listing
// and upserts the live columns into the store. A missing store file is the
// first-run case and bootstraps from the listing alone.
type Prices struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewPrices creates the prices run.
func NewPrices(cfg *config.Config) *Prices {
	return &Prices{
		cfg:    cfg,
		logger: log.With().Str("component", "prices-job").Logger(),
	}
}

// Run executes one prices sync.
func (j *Prices) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	transport, err := newTransport(j.cfg)
	if err != nil {
		return Report{}, err
	}
	lister := coingecko.NewLister(transport, coingecko.ListerConfig{
		PageSize:       j.cfg.Listing.PageSize,
		MaxPageRetries: j.cfg.Listing.MaxPageRetries,
		BackoffBase:    j.cfg.Listing.BackoffBase,
	})

	// The listing is mandatory: a partial ranked universe would corrupt
	// downstream eligibility decisions, so any failure aborts the run.
	rows, err := lister.FetchAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("prices: %w", err)
	}

	table, err := store.Load(j.cfg.Store.Path)
	if err != nil {
		if !errors.Is(err, store.ErrMissingStore) {
			return Report{}, fmt.Errorf("prices: %w", err)
		}
		table = store.New()
		j.logger.Info().Str("path", j.cfg.Store.Path).Msg("No store yet, bootstrapping from listing")
	}
	table.EnsureColumns(liveColumns...)

	snap := j.liveSnapshot(rows)
	stats := reconcile.Merge(table, snap)

	if err := table.Write(j.cfg.Store.Path); err != nil {
		return Report{}, fmt.Errorf("prices: %w", err)
	}

	report := Report{
		Attempted: len(rows),
		Updated:   stats.Matched + stats.Appended,
		Elapsed:   time.Since(start),
	}
	j.logger.Info().
		Int("listed", len(rows)).
		Int("matched", stats.Matched).
		Int("appended", stats.Appended).
		Int("rows", table.Len()).
		Dur("elapsed", report.Elapsed).
		Msg("Prices run complete")
	return report, nil
}

// liveSnapshot converts listing rows into live-column updates. Every live
// column is provided explicitly, so a value the provider dropped is
// blanked on purpose rather than by omission.
func (j *Prices) liveSnapshot(rows []coingecko.MarketRow) reconcile.Snapshot {
	snap := make(reconcile.Snapshot, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		status := "Unranked"
		if r.Rank != nil && *r.Rank <= float64(j.cfg.Run.RankCutoff) {
			status = "Ranked"
		}
		snap = append(snap, reconcile.Update{
			ID: r.ID,
			Cells: map[string]string{
				"rank":           store.FormatOptionalInt(r.Rank),
				"price_usd":      store.FormatOptionalFloat(r.Price),
				"change_24h_pct": store.FormatOptionalFloat(r.Change24h),
				"change_7d_pct":  store.FormatOptionalFloat(r.Change7d.Value()),
				"change_1y_pct":  store.FormatOptionalFloat(r.Change1y.Value()),
				"market_cap":     store.FormatOptionalFloat(r.MarketCap),
				"volume_24h":     store.FormatOptionalFloat(r.Volume),
				"status":         status,
				"last_updated":   r.LastUpdated,
			},
		})
	}
	return snap
}
