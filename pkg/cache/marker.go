package cache

// MarkerCache records the last upstream revision marker (the listing's
// last_updated value) that was successfully enriched for each id. The
// refresh selection skips ids whose marker has not moved.
type MarkerCache struct {
	kv *KV
}

// NewMarkerCache wraps a KV.
func NewMarkerCache(kv *KV) *MarkerCache {
	return &MarkerCache{kv: kv}
}

// Changed reports whether marker differs from the recorded one. An id with
// no recorded marker always counts as changed.
func (c *MarkerCache) Changed(id, marker string) bool {
	v, ok := c.kv.Get(id)
	return !ok || v != marker
}

// Record stores the marker for id after a successful refresh.
func (c *MarkerCache) Record(id, marker string) {
	c.kv.Set(id, marker)
}
