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

// Meta is the nightly fundamentals run: it refreshes all-time-high,
// 30-day change, chain, and link columns for coins inside the tracked
// tier whose upstream revision marker moved since their last refresh.
type Meta struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewMeta creates the meta run.
func NewMeta(cfg *config.Config) *Meta {
	return &Meta{
		cfg:    cfg,
		logger: log.With().Str("component", "meta-job").Logger(),
	}
}

// Run executes one meta sync. The store must already exist; run prices
// first.
func (j *Meta) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	table, err := store.Load(j.cfg.Store.Path)
	if err != nil {
		return Report{}, fmt.Errorf("meta: %w (run the prices job first)", err)
	}
	table.EnsureColumns(coingecko.MetaColumns...)

	transport, err := newTransport(j.cfg)
	if err != nil {
		return Report{}, err
	}
	lister := coingecko.NewLister(transport, coingecko.ListerConfig{
		PageSize:       j.cfg.Listing.PageSize,
		MaxPageRetries: j.cfg.Listing.MaxPageRetries,
		BackoffBase:    j.cfg.Listing.BackoffBase,
	})

	rows, err := lister.FetchAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("meta: %w", err)
	}

	opener := newStateOpener(j.cfg)
	defer opener.Close()

	deferKV, err := opener.open(ctx, j.cfg.Cache.MetaDeferPath, "marketsync:defer:meta")
	if err != nil {
		return Report{}, fmt.Errorf("meta: %w", err)
	}
	markerKV, err := opener.open(ctx, j.cfg.Cache.MarkerPath, "marketsync:markers")
	if err != nil {
		return Report{}, fmt.Errorf("meta: %w", err)
	}
	defers := cache.NewDeferList(deferKV, j.cfg.Cache.DeferWindow)
	markers := cache.NewMarkerCache(markerKV)

	tier := reconcile.Tier{
		RankMax:   float64(j.cfg.Run.RankCutoff),
		VolumeMin: j.cfg.Run.CoreVolumeMin,
	}
	listed := make([]reconcile.Listed, 0, len(rows))
	for _, r := range rows {
		listed = append(listed, reconcile.Listed{
			ID:     r.ID,
			Rank:   r.Rank,
			Volume: r.Volume,
			Marker: r.LastUpdated,
		})
	}
	candidates := reconcile.SelectStale(listed, markers, tier, j.cfg.Run.Limit)
	if len(candidates) == 0 {
		j.logger.Info().Msg("Meta: nothing to update")
		return Report{Elapsed: time.Since(start)}, nil
	}
	j.logger.Info().Int("candidates", len(candidates)).Msg("Refreshing coin fundamentals")

	fetcher := coingecko.NewMetaFetcher(transport, defers, coingecko.MetaConfig{
		Max429Retries: j.cfg.Meta.Max429Retries,
		BackoffBase:   j.cfg.Meta.BackoffBase,
	})

	var snap reconcile.Snapshot
	for n, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		cells, ok := fetcher.Fetch(ctx, cand.ID, time.Now())
		if ok {
			snap = append(snap, reconcile.Update{ID: cand.ID, Cells: cells})
			markers.Record(cand.ID, cand.Marker)
		}
		if j.cfg.Run.Verbose || (n+1)%100 == 0 {
			j.logger.Info().
				Int("processed", n+1).
				Int("total", len(candidates)).
				Int("updated", len(snap)).
				Msg("Meta progress")
		}
		if err := sleep(ctx, j.cfg.Meta.Sleep); err != nil {
			break
		}
	}

	if len(snap) > 0 {
		stats := reconcile.Merge(table, snap)
		if err := table.Write(j.cfg.Store.Path); err != nil {
			return Report{}, fmt.Errorf("meta: %w", err)
		}
		j.logger.Info().
			Int("matched", stats.Matched).
			Int("appended", stats.Appended).
			Msg("Store saved")
	} else {
		j.logger.Info().Msg("No rows updated this batch")
	}

	// Caches are written after the store so a crash in between costs only
	// extra re-fetching, never merged data.
	if err := deferKV.Flush(ctx); err != nil {
		return Report{}, fmt.Errorf("meta: flush defer cache: %w", err)
	}
	if err := markerKV.Flush(ctx); err != nil {
		return Report{}, fmt.Errorf("meta: flush marker cache: %w", err)
	}

	report := Report{
		Attempted: len(candidates),
		Updated:   len(snap),
		Elapsed:   time.Since(start),
	}
	j.logger.Info().
		Int("attempted", report.Attempted).
		Int("updated", report.Updated).
		Dur("elapsed", report.Elapsed).
		Msg("Meta run complete")
	return report, nil
}
