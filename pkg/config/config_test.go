package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func getenv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(getenv(nil))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	want := &Config{
		Addr:               ":8080",
		Store:              StoreSQLite,
		SQLitePath:         "data/codepulse.db",
		KafkaTopic:         "codepulse.profiles",
		LogFormat:          "text",
		RedisTTL:           10 * time.Minute,
		RefreshInterval:    time.Hour,
		RefreshItemTimeout: 2 * time.Minute,
		UpstreamMinDelay:   1100 * time.Millisecond,
		RefreshConcurrency: 1,
		LogLevel:           slog.LevelInfo,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(getenv(map[string]string{
		"STORE":                "Postgres",
		"DATABASE_URL":         "postgres://localhost/codepulse",
		"KAFKA_BROKERS":        "k1:9092, k2:9092,,",
		"REFRESH_INTERVAL":     "15m",
		"REFRESH_CONCURRENCY":  "4",
		"REFRESH_ON_START":     "true",
		"HTTP_CACHE_TTL":       "30m",
		"UPSTREAM_MIN_DELAY":   "0",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "JSON",
		"REFRESH_ITEM_TIMEOUT": "45s",
	}))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Store != StorePostgres || cfg.RefreshInterval != 15*time.Minute || cfg.RefreshConcurrency != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers); diff != "" {
		t.Errorf("KafkaBrokers mismatch (-want +got):\n%s", diff)
	}
	if !cfg.RefreshOnStart || cfg.HTTPCacheTTL != 30*time.Minute || cfg.UpstreamMinDelay != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" || cfg.RefreshItemTimeout != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		env     map[string]string
		wantErr string
	}{
		{map[string]string{"STORE": "mongo"}, "STORE"},
		{map[string]string{"STORE": "postgres"}, "DATABASE_URL"},
		{map[string]string{"REFRESH_INTERVAL": "soon"}, "REFRESH_INTERVAL"},
		{map[string]string{"REFRESH_INTERVAL": "0"}, "REFRESH_INTERVAL"},
		{map[string]string{"REFRESH_INTERVAL": "10ms"}, "REFRESH_INTERVAL"},
		{map[string]string{"HTTP_CACHE_TTL": "-1m"}, "HTTP_CACHE_TTL"},
		{map[string]string{"REFRESH_CONCURRENCY": "0"}, "REFRESH_CONCURRENCY"},
		{map[string]string{"REFRESH_ON_START": "maybe"}, "REFRESH_ON_START"},
		{map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			_, err := load(getenv(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("load(%v) error = %v, want mention of %s", tt.env, err, tt.wantErr)
			}
		})
	}
}
