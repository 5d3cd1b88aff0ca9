package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawl.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.MaxPages != 50 {
		t.Fatalf("expected default max pages 50, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Sink.Provider != "memory" || cfg.Dedup.Provider != "memory" {
		t.Fatalf("expected memory providers by default, got %q/%q", cfg.Sink.Provider, cfg.Dedup.Provider)
	}
	if got := cfg.InterRequestDelay(); got != time.Second {
		t.Fatalf("expected 1s inter-request delay, got %v", got)
	}
	if got := cfg.DedupTTL(); got != 90*24*time.Hour {
		t.Fatalf("expected 90 day dedup ttl, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawl:
  concurrency: 6
  inter_request_delay_ms: 500
  max_pages: 10
  fetch_timeout_seconds: 45
  retry_attempts: 5
  user_agent: jobsift-test
headless:
  max_parallel: 2
  profile_dir: /tmp/profile
sink:
  provider: postgres
  dsn: postgres://localhost/jobsift
dedup:
  provider: redis
  redis_url: redis://localhost:6379/0
  ttl_days: 30
sites:
  handshake_portal_url: https://app.joinhandshake.com
schedules:
  ey: "0 6 * * *"
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawl.Concurrency != 6 || cfg.Crawl.MaxPages != 10 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Sink.Provider != "postgres" || cfg.Sink.DSN == "" {
		t.Fatalf("expected postgres sink config: %+v", cfg.Sink)
	}
	if cfg.Dedup.Provider != "redis" || cfg.Dedup.TTLDays != 30 {
		t.Fatalf("expected redis dedup config: %+v", cfg.Dedup)
	}
	if spec, ok := cfg.Schedules["ey"]; !ok || spec != "0 6 * * *" {
		t.Fatalf("expected ey schedule to be loaded: %+v", cfg.Schedules)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawl: CrawlConfig{
			Concurrency:         1,
			MaxPages:            50,
			FetchTimeoutSeconds: 30,
		},
		Headless: HeadlessConfig{MaxParallel: 1},
		Sink:     SinkConfig{Provider: "memory"},
		Dedup:    DedupConfig{Provider: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawl.Concurrency = 0
				return c
			}(),
			want: "crawl.concurrency",
		},
		{
			name: "invalid max pages",
			cfg: func() Config {
				c := base
				c.Crawl.MaxPages = 0
				return c
			}(),
			want: "crawl.max_pages",
		},
		{
			name: "postgres sink without dsn",
			cfg: func() Config {
				c := base
				c.Sink.Provider = "postgres"
				return c
			}(),
			want: "sink.dsn",
		},
		{
			name: "redis dedup without url",
			cfg: func() Config {
				c := base
				c.Dedup.Provider = "redis"
				return c
			}(),
			want: "dedup.redis_url",
		},
		{
			name: "unknown sink provider",
			cfg: func() Config {
				c := base
				c.Sink.Provider = "s3"
				return c
			}(),
			want: "sink.provider",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
