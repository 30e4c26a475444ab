// Package reconcile merges freshly fetched snapshots into the store with
// upsert semantics and decides which entities a run should work on.
package reconcile

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinpulse/marketsync/pkg/store"
)

// Prometheus metrics for merge operations.
var (
	rowsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_merge_rows_appended_total",
		Help: "New entity rows appended to the store by merges",
	})

	cellsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_merge_cells_written_total",
		Help: "Cells overwritten or set by merges",
	})
)

// Update is one entity's partial refresh: only the cells it carries are
// touched. A cell present with an empty value is still an explicit write.
type Update struct {
	ID    string
	Cells map[string]string
}

// Snapshot is the ordered batch of updates produced by one run's fetch
// phase.
type Snapshot []Update

// Stats summarizes one merge.
type Stats struct {
	Matched      int
	Appended     int
	CellsWritten int
}

// Merge applies a snapshot to the table. Rows already present are updated
// in place in the columns the snapshot provides; unknown ids are appended;
// rows absent from the snapshot are never touched, so the store only ever
// grows.
func Merge(t *store.Table, snap Snapshot) Stats {
	ensureSnapshotColumns(t, snap)

	var stats Stats
	for _, u := range snap {
		if u.ID == "" {
			continue
		}
		row, ok := t.Get(u.ID)
		if ok {
			stats.Matched++
		} else {
			row = t.Append(u.ID)
			stats.Appended++
			rowsAppendedTotal.Inc()
		}
		for col, v := range u.Cells {
			if col == store.IDColumn {
				continue
			}
			row.Set(col, v)
			stats.CellsWritten++
		}
	}
	cellsWrittenTotal.Add(float64(stats.CellsWritten))
	return stats
}

// ensureSnapshotColumns registers any columns the snapshot introduces,
// sorted so the appended order is deterministic. Jobs normally call
// EnsureColumns with their fixed column list first; this is the fallback
// for columns they did not anticipate.
func ensureSnapshotColumns(t *store.Table, snap Snapshot) {
	known := map[string]bool{}
	for _, col := range t.Columns() {
		known[col] = true
	}
	var missing []string
	seen := map[string]bool{}
	for _, u := range snap {
		for col := range u.Cells {
			if !known[col] && !seen[col] {
				missing = append(missing, col)
				seen[col] = true
			}
		}
	}
	sort.Strings(missing)
	t.EnsureColumns(missing...)
}
