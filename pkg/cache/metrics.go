package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	valueHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_value_cache_hits_total",
		Help: "Detail fetches served from the value cache without a network call",
	})

	valueMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_value_cache_misses_total",
		Help: "Value cache lookups that found nothing",
	})

	defersRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_defers_recorded_total",
		Help: "IDs written to the defer list after a failed detail fetch",
	})

	defersHonored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsync_defers_honored_total",
		Help: "Detail fetches skipped because the id was inside its skip window",
	})
)
