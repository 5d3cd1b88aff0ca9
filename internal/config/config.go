// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Crawl     CrawlConfig       `mapstructure:"crawl"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	Sink      SinkConfig        `mapstructure:"sink"`
	Dedup     DedupConfig       `mapstructure:"dedup"`
	Sites     SitesConfig       `mapstructure:"sites"`
	Schedules map[string]string `mapstructure:"schedules"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig governs the crawl pipeline: concurrency, pacing, pagination
// bounds, and fetch retry behavior.
type CrawlConfig struct {
	Concurrency         int     `mapstructure:"concurrency"`
	InterRequestDelayMs int     `mapstructure:"inter_request_delay_ms"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	MaxPages            int     `mapstructure:"max_pages"`
	FetchTimeoutSeconds int     `mapstructure:"fetch_timeout_seconds"`
	RetryAttempts       int     `mapstructure:"retry_attempts"`
	BackoffInitialMs    int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs        int     `mapstructure:"backoff_max_ms"`
	UserAgent           string  `mapstructure:"user_agent"`
}

// HeadlessConfig configures the rendering fetcher.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ProfileDir    string `mapstructure:"profile_dir"`
}

// SinkConfig selects and configures the record sink.
type SinkConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// DedupConfig selects and configures the cross-run dedup index.
type DedupConfig struct {
	Provider string `mapstructure:"provider"`
	RedisURL string `mapstructure:"redis_url"`
	TTLDays  int    `mapstructure:"ttl_days"`
}

// SitesConfig holds per-site settings that cannot live in code.
type SitesConfig struct {
	HandshakePortalURL string `mapstructure:"handshake_portal_url"`
	// EYCountry is the country filter scheduled EY runs crawl with.
	EYCountry string `mapstructure:"ey_country"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.inter_request_delay_ms", 1000)
	v.SetDefault("crawl.requests_per_second", 1.0)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.fetch_timeout_seconds", 30)
	v.SetDefault("crawl.retry_attempts", 3)
	v.SetDefault("crawl.backoff_initial_ms", 250)
	v.SetDefault("crawl.backoff_max_ms", 5000)
	v.SetDefault("crawl.user_agent", "jobsift-bot/0.1")
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("sink.provider", "memory")
	v.SetDefault("dedup.provider", "memory")
	v.SetDefault("dedup.ttl_days", 90)
	v.SetDefault("sites.ey_country", "US")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.fetch_timeout_seconds must be > 0")
	}
	if c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0")
	}
	switch c.Sink.Provider {
	case "memory":
	case "postgres":
		if c.Sink.DSN == "" {
			return fmt.Errorf("sink.dsn must be set when sink.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown sink.provider %q", c.Sink.Provider)
	}
	switch c.Dedup.Provider {
	case "memory", "postgres":
	case "redis":
		if c.Dedup.RedisURL == "" {
			return fmt.Errorf("dedup.redis_url must be set when dedup.provider is redis")
		}
	default:
		return fmt.Errorf("unknown dedup.provider %q", c.Dedup.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.FetchTimeoutSeconds) * time.Second
}

// InterRequestDelay returns the pacing delay as a duration.
func (c Config) InterRequestDelay() time.Duration {
	return time.Duration(c.Crawl.InterRequestDelayMs) * time.Millisecond
}

// BackoffInitial returns the first retry backoff as a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Crawl.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry backoff cap as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Crawl.BackoffMaxMs) * time.Millisecond
}

// DedupTTL returns the dedup index expiry as a duration.
func (c Config) DedupTTL() time.Duration {
	return time.Duration(c.Dedup.TTLDays) * 24 * time.Hour
}
