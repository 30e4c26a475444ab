// Package config loads marketsync configuration from an optional YAML file
// and MARKETSYNC_* environment variables, with defaults tuned for the
// free CoinGecko tier.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sync jobs.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Listing   ListingConfig   `mapstructure:"listing"`
	Meta      MetaConfig      `mapstructure:"meta"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Run       RunConfig       `mapstructure:"run"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// APIConfig contains provider transport settings.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Key         string        `mapstructure:"key"`
	UserAgent   string        `mapstructure:"user_agent"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StoreConfig locates the CSV store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig selects the persisted-state backend and file locations.
type CacheConfig struct {
	// Backend is "file" or "redis".
	Backend     string        `mapstructure:"backend"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	DeferWindow time.Duration `mapstructure:"defer_window"`

	MetaDeferPath     string `mapstructure:"meta_defer_path"`
	MarkerPath        string `mapstructure:"marker_path"`
	ExchangeDeferPath string `mapstructure:"exchange_defer_path"`
	ExchangeValuePath string `mapstructure:"exchange_value_path"`
}

// ListingConfig tunes the full market listing fetch.
type ListingConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	MaxPageRetries int           `mapstructure:"max_page_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
}

// MetaConfig tunes the per-coin fundamentals fetch.
type MetaConfig struct {
	Max429Retries int           `mapstructure:"max_429_retries"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	Sleep         time.Duration `mapstructure:"sleep"`
}

// ExchangesConfig tunes the per-coin tickers fetch.
type ExchangesConfig struct {
	PageSize      int           `mapstructure:"page_size"`
	Max429Retries int           `mapstructure:"max_429_retries"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	Sleep         time.Duration `mapstructure:"sleep"`
}

// RunConfig bounds one invocation.
type RunConfig struct {
	// Limit caps the number of entities attempted per run.
	Limit int `mapstructure:"limit"`

	// RankCutoff separates Ranked from Unranked status and bounds the
	// enrichment tier.
	RankCutoff int `mapstructure:"rank_cutoff"`

	// CoreVolumeMin admits high-volume unranked coins into the tier.
	CoreVolumeMin float64 `mapstructure:"core_volume_min"`

	Verbose bool `mapstructure:"verbose"`
}

// MetricsConfig controls the optional embedded /metrics endpoint.
type MetricsConfig struct {
	// Addr like ":9106"; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// Load reads configuration. An empty path skips the config file and uses
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original deployment exported the provider key directly.
	_ = v.BindEnv("api.key", "COINGECKO_API_KEY", "MARKETSYNC_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.Cache.Backend != "file" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be file or redis (got %q)", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr required for the redis backend")
	}
	if c.Listing.PageSize <= 0 {
		return fmt.Errorf("listing.page_size must be > 0")
	}
	if c.Cache.DeferWindow <= 0 {
		return fmt.Errorf("cache.defer_window must be > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("api.user_agent", "Mozilla/5.0 TinPulseBot/1.0")
	v.SetDefault("api.min_interval", 300*time.Millisecond)
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("store.path", "cryptos.csv")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.defer_window", 24*time.Hour)
	v.SetDefault("cache.meta_defer_path", "daily_defer.json")
	v.SetDefault("cache.marker_path", "last_updated_cache.json")
	v.SetDefault("cache.exchange_defer_path", "exch_defer.json")
	v.SetDefault("cache.exchange_value_path", "exch_cache.json")

	v.SetDefault("listing.page_size", 250)
	v.SetDefault("listing.max_page_retries", 5)
	v.SetDefault("listing.backoff_base", 20*time.Second)

	v.SetDefault("meta.max_429_retries", 2)
	v.SetDefault("meta.backoff_base", 20*time.Second)
	v.SetDefault("meta.sleep", time.Second)

	v.SetDefault("exchanges.page_size", 100)
	v.SetDefault("exchanges.max_429_retries", 3)
	v.SetDefault("exchanges.backoff_base", 20*time.Second)
	v.SetDefault("exchanges.sleep", time.Second)

	v.SetDefault("run.limit", 1000)
	v.SetDefault("run.rank_cutoff", 1250)
	v.SetDefault("run.core_volume_min", 5_000_000)
	v.SetDefault("run.verbose", false)

	v.SetDefault("metrics.addr", "")
}
