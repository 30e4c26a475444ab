package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// ValueCache stores expensively derived per-id values keyed by a stable
// hash of the id. Once a non-empty value is cached it is authoritative for
// the id's lifetime: later runs serve it without a network call, and a
// failed or empty fetch can never blank it.
type ValueCache struct {
	kv *KV
}

// NewValueCache wraps a KV.
func NewValueCache(kv *KV) *ValueCache {
	return &ValueCache{kv: kv}
}

// hashKey derives the storage key for an id.
func hashKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for id, if any.
func (c *ValueCache) Get(id string) (string, bool) {
	v, ok := c.kv.Get(hashKey(id))
	if ok && v != "" {
		valueHits.Inc()
		return v, true
	}
	valueMisses.Inc()
	return "", false
}

// Put stores a derived value. Empty values are dropped so future runs stay
// eligible to retry the fetch.
func (c *ValueCache) Put(id, value string) {
	if value == "" {
		return
	}
	c.kv.Set(hashKey(id), value)
}
