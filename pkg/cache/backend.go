package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Backend is the persistence layer behind a KV. Load is called once at run
// start, Save once at run end; a backend never sees incremental mutations.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, entries map[string]string) error
}

// FileBackend persists the mapping as a single JSON object file.
type FileBackend struct {
	Path string
}

// Load reads the whole file. A missing file is an empty cache, not an
// error: first runs start from nothing.
func (b FileBackend) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	return entries, nil
}

// Save rewrites the file in full. The write goes to a temp file in the same
// directory first so a crash mid-write never leaves a truncated cache.
func (b FileBackend) Save(ctx context.Context, entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(b.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := os.Rename(tmpName, b.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// RedisBackend persists the mapping as one Redis hash.
type RedisBackend struct {
	Client *redis.Client
	Key    string
}

// Load fetches the whole hash. A missing key is an empty cache.
func (b RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	entries, err := b.Client.HGetAll(ctx, b.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if entries == nil {
		entries = map[string]string{}
	}
	return entries, nil
}

// Save replaces the hash in full, mirroring the file backend's
// full-rewrite contract.
func (b RedisBackend) Save(ctx context.Context, entries map[string]string) error {
	pipe := b.Client.TxPipeline()
	pipe.Del(ctx, b.Key)
	if len(entries) > 0 {
		flat := make([]interface{}, 0, len(entries)*2)
		for k, v := range entries {
			flat = append(flat, k, v)
		}
		pipe.HSet(ctx, b.Key, flat...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}
