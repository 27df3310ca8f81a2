// Package config loads and validates environment variables at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all runtime configuration.
type Config struct {
	Addr        string
	Store       string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
	KafkaTopic  string
	GitHubToken string
	CacheDir    string
	LogFormat   string

	KafkaBrokers []string

	RedisTTL           time.Duration
	RefreshInterval    time.Duration
	RefreshItemTimeout time.Duration
	HTTPCacheTTL       time.Duration
	UpstreamMinDelay   time.Duration

	RefreshConcurrency int
	LogLevel           slog.Level
	RefreshOnStart     bool
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Addr:        env("CODEPULSE_ADDR", ":8080"),
		Store:       strings.ToLower(env("STORE", StoreSQLite)),
		SQLitePath:  env("SQLITE_PATH", "data/codepulse.db"),
		DatabaseURL: env("DATABASE_URL", ""),
		RedisURL:    env("REDIS_URL", ""),
		KafkaTopic:  env("KAFKA_TOPIC", "codepulse.profiles"),
		GitHubToken: env("GITHUB_TOKEN", ""),
		CacheDir:    env("HTTP_CACHE_DIR", ""),
		LogFormat:   strings.ToLower(env("LOG_FORMAT", "text")),
	}

	switch cfg.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("STORE must be one of %s, %s, %s; got %q", StoreSQLite, StorePostgres, StoreMemory, cfg.Store)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	for _, b := range strings.Split(env("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	durations := []struct {
		key      string
		def      string
		dst      *time.Duration
		positive bool
	}{
		{"REDIS_TTL", "10m", &cfg.RedisTTL, true},
		{"REFRESH_INTERVAL", "1h", &cfg.RefreshInterval, true},
		{"REFRESH_ITEM_TIMEOUT", "2m", &cfg.RefreshItemTimeout, true},
		{"HTTP_CACHE_TTL", "0s", &cfg.HTTPCacheTTL, false},
		{"UPSTREAM_MIN_DELAY", "1100ms", &cfg.UpstreamMinDelay, false},
	}
	for _, d := range durations {
		s := env(d.key, d.def)
		v, err := time.ParseDuration(s)
		if err != nil || v < 0 || (d.positive && v == 0) {
			want := "non-negative"
			if d.positive {
				want = "positive"
			}
			return nil, fmt.Errorf("%s must be a %s duration, got %q", d.key, want, s)
		}
		*d.dst = v
	}
	if cfg.RefreshInterval < time.Second {
		return nil, fmt.Errorf("REFRESH_INTERVAL must be at least 1s, got %s", cfg.RefreshInterval)
	}

	s := env("REFRESH_CONCURRENCY", "1")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("REFRESH_CONCURRENCY must be a positive integer, got %q", s)
	}
	cfg.RefreshConcurrency = n

	s = env("REFRESH_ON_START", "false")
	if cfg.RefreshOnStart, err = strconv.ParseBool(s); err != nil {
		return nil, fmt.Errorf("REFRESH_ON_START must be a boolean, got %q", s)
	}

	return cfg, nil
}
