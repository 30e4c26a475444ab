// Package job wires the transport, fetchers, caches, and store into the
// three scheduled sync runs: prices, meta, and exchanges.
//
// Every run follows the same shape: load persisted state, fetch under the
// rate-limit contract, merge without ever dropping a row, then write the
// store and the caches back in full. A run is atomic-or-absent: nothing is
// persisted until the very end.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinpulse/marketsync/internal/config"
	"github.com/tinpulse/marketsync/pkg/cache"
	"github.com/tinpulse/marketsync/pkg/client"
)

// Report summarizes one run for the operator.
type Report struct {
	Attempted int
	Updated   int
	Elapsed   time.Duration
}

// String renders the report for log output.
func (r Report) String() string {
	return fmt.Sprintf("attempted=%d updated=%d elapsed=%s", r.Attempted, r.Updated, r.Elapsed.Round(100*time.Millisecond))
}

// newTransport builds the paced transport from configuration.
func newTransport(cfg *config.Config) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:     cfg.API.BaseURL,
		APIKey:      cfg.API.Key,
		UserAgent:   cfg.API.UserAgent,
		MinInterval: cfg.API.MinInterval,
		Timeout:     cfg.API.Timeout,
	})
}

// stateOpener opens the persisted KV caches on the configured backend. The
// redis client, when used, is shared across the caches of one run.
type stateOpener struct {
	cfg   *config.Config
	redis *redis.Client
}

func newStateOpener(cfg *config.Config) *stateOpener {
	return &stateOpener{cfg: cfg}
}

func (o *stateOpener) open(ctx context.Context, filePath, redisKey string) (*cache.KV, error) {
	if o.cfg.Cache.Backend == "redis" {
		if o.redis == nil {
			o.redis = redis.NewClient(&redis.Options{Addr: o.cfg.Cache.RedisAddr})
		}
		return cache.Open(ctx, cache.RedisBackend{Client: o.redis, Key: redisKey})
	}
	return cache.Open(ctx, cache.FileBackend{Path: filePath})
}

func (o *stateOpener) Close() error {
	if o.redis != nil {
		return o.redis.Close()
	}
	return nil
}

// sleep waits the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
