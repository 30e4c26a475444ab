package reconcile

import (
	"strings"

	"github.com/tinpulse/marketsync/pkg/cache"
	"github.com/tinpulse/marketsync/pkg/store"
)

// Tier is the eligibility filter for per-entity enrichment. Entities
// outside the tier still receive listing-level updates but are skipped for
// detail fetches.
type Tier struct {
	// RankMax admits entities ranked at or above this position.
	RankMax float64

	// VolumeMin admits entities with at least this 24h volume even when
	// unranked.
	VolumeMin float64
}

// Core reports whether an entity is inside the tracked tier. A missing
// rank counts as unranked (999999), a missing volume as zero.
func (t Tier) Core(rank, volume *float64) bool {
	r := 999999.0
	if rank != nil {
		r = *rank
	}
	v := 0.0
	if volume != nil {
		v = *volume
	}
	return r <= t.RankMax || v >= t.VolumeMin
}

// Listed is one entity as seen in the listing snapshot, reduced to the
// fields the selection policy needs.
type Listed struct {
	ID     string
	Rank   *float64
	Volume *float64
	Marker string
}

// SelectStale picks the entities whose upstream revision marker moved
// since they were last enriched, in listing order, capped so one run never
// exceeds its work budget. Large backfills spread across scheduled runs.
func SelectStale(listed []Listed, markers *cache.MarkerCache, tier Tier, cap int) []Listed {
	var picked []Listed
	for _, l := range listed {
		if cap > 0 && len(picked) >= cap {
			break
		}
		if l.ID == "" || !tier.Core(l.Rank, l.Volume) {
			continue
		}
		if !markers.Changed(l.ID, l.Marker) {
			continue
		}
		picked = append(picked, l)
	}
	return picked
}

// SelectBlank picks the ids whose cell in the given column is empty, in
// store row order, capped per run.
func SelectBlank(t *store.Table, column string, cap int) []string {
	var picked []string
	for _, row := range t.Rows() {
		if cap > 0 && len(picked) >= cap {
			break
		}
		if strings.TrimSpace(row.Get(column)) == "" {
			picked = append(picked, row.ID)
		}
	}
	return picked
}
