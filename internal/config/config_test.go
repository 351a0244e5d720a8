package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every override so ambient environment cannot leak into
// assertions about defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDSNEnv, redisURLEnv,
		openAIKeyEnv, openAIBaseEnv, openAIModelEnv,
		nerEndpointEnv, nerAPIKeyEnv, sourcesPathEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultsApplied(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Database.DSN != "" {
		t.Fatalf("default DSN = %q, want empty (in-memory store)", cfg.Database.DSN)
	}

	if cfg.Ingest.Concurrency != 10 {
		t.Fatalf("default concurrency = %d, want 10", cfg.Ingest.Concurrency)
	}
	if cfg.Ingest.MaxPerFeed != 25 {
		t.Fatalf("default max per feed = %d, want 25", cfg.Ingest.MaxPerFeed)
	}
	if cfg.OpenAI.Endpoint == "" {
		t.Fatal("default OpenAI endpoint must be set")
	}
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
logging:
  level: debug
ingest:
  concurrency: 4
  maxPerFeed: 5
  interval: 1m
sources:
  - url: https://reg.example/feed
    type: regulator
  - url: https://news.example/rss
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env-dsn")

	cfg := Load()

	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Ingest.Concurrency != 4 || cfg.Ingest.MaxPerFeed != 5 {
		t.Fatalf("ingest overrides not applied: %+v", cfg.Ingest)
	}
	if cfg.Ingest.Interval != time.Minute {
		t.Fatalf("interval = %v", cfg.Ingest.Interval)
	}
	if cfg.Database.DSN != "postgres://env-dsn" {
		t.Fatalf("env DSN not applied: %q", cfg.Database.DSN)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Sources))
	}
	if cfg.Sources[1].Type != "news" {
		t.Fatalf("missing type should default to news, got %q", cfg.Sources[1].Type)
	}
}

func TestLoadSourcesDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("- url: https://a.example/rss\n  type: news\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("- url: https://b.example/rss\n  type: ir\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(dir)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}
	if sources[0].URL != "https://a.example/rss" || sources[1].Type != "ir" {
		t.Fatalf("unexpected sources order/content: %+v", sources)
	}
}
