package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidCache indicates a cache file that could not be parsed.
var ErrInvalidCache = errors.New("invalid cache contents")

// KV is an in-memory string mapping bound to a Backend. It is owned by a
// single run: loaded once, mutated freely, flushed once.
type KV struct {
	backend Backend
	entries map[string]string
}

// Open loads the full mapping from the backend.
func Open(ctx context.Context, backend Backend) (*KV, error) {
	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	return &KV{backend: backend, entries: entries}, nil
}

// Get returns the value for key and whether it was present.
func (kv *KV) Get(key string) (string, bool) {
	v, ok := kv.entries[key]
	return v, ok
}

// Set stores a value.
func (kv *KV) Set(key, value string) {
	kv.entries[key] = value
}

// Len returns the number of entries.
func (kv *KV) Len() int {
	return len(kv.entries)
}

// Flush rewrites the backend with the current mapping.
func (kv *KV) Flush(ctx context.Context) error {
	return kv.backend.Save(ctx, kv.entries)
}
