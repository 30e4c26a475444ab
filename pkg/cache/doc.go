// Package cache provides the persisted run state that survives between
// sync invocations: the defer list, the item value cache, and the
// revision-marker cache.
//
// Each cache is a flat string-to-string mapping over a pluggable Backend.
// The whole mapping is loaded once at run start, mutated in memory, and
// rewritten in full when the run completes. Losing a cache file only costs
// extra re-fetching on later runs, never correctness; the CSV store stays
// the single source of truth.
//
// Backends:
//   - FileBackend: a single JSON object file, rewritten atomically
//     (temp file + rename). This is the default.
//   - RedisBackend: one Redis hash, for deployments where several hosts
//     take turns running the sync and need to share defer state.
//
// Example usage:
//
//	kv, err := cache.Open(ctx, cache.FileBackend{Path: "daily_defer.json"})
//	defers := cache.NewDeferList(kv, 24*time.Hour)
//	if defers.Deferred("bitcoin", time.Now()) {
//	    // skip this id for the rest of the run
//	}
//	defer kv.Flush(ctx)
package cache
