package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"NewsRadar/internal/domain"
)

const (
	configPathEnv   = "NEWSRADAR_CONFIG"
	databaseDSNEnv  = "DATABASE_DSN"
	redisURLEnv     = "REDIS_URL"
	openAIKeyEnv    = "OPENAI_API_KEY"
	openAIBaseEnv   = "OPENAI_BASE_URL"
	openAIModelEnv  = "OPENAI_MODEL"
	nerEndpointEnv  = "NER_INFERENCE_URL"
	nerAPIKeyEnv    = "NER_API_KEY"
	sourcesPathEnv  = "NEWSRADAR_SOURCES"
	defaultEndpoint = "https://api.openai.com/v1"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	NER      NERConfig      `yaml:"ner"`
	Ingest   IngestConfig   `yaml:"ingest"`
	API      APIConfig      `yaml:"api"`
	Sources  []SourceConfig `yaml:"sources"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig wires the optional translation cache.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// OpenAIConfig defines how to contact an OpenAI-compatible API for the
// classifier, translator, and draft writer. Empty APIKey disables the LLM
// path; heuristics take over.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// NERConfig describes the keyphrase-extraction service. Empty InferenceURL
// disables extraction (empty results).
type NERConfig struct {
	InferenceURL string  `yaml:"inferenceUrl"`
	APIKey       string  `yaml:"apiKey"`
	MinScore     float64 `yaml:"minScore"`
}

// IngestConfig bounds the ingestion orchestrator.
type IngestConfig struct {
	Concurrency int           `yaml:"concurrency"`
	MaxPerFeed  int           `yaml:"maxPerFeed"`
	Interval    time.Duration `yaml:"interval"`
	SourcesPath string        `yaml:"sourcesPath"`
}

// UnmarshalYAML accepts interval values like "15m" or "1h".
func (c *IngestConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Concurrency int    `yaml:"concurrency"`
		MaxPerFeed  int    `yaml:"maxPerFeed"`
		Interval    string `yaml:"interval"`
		SourcesPath string `yaml:"sourcesPath"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	c.Concurrency = r.Concurrency
	c.MaxPerFeed = r.MaxPerFeed
	c.SourcesPath = r.SourcesPath
	if r.Interval != "" {
		d, err := time.ParseDuration(r.Interval)
		if err != nil {
			return fmt.Errorf("parse ingest interval: %w", err)
		}
		c.Interval = d
	}
	return nil
}

// APIConfig describes the read API and metrics listeners.
type APIConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// SourceConfig is one configured feed with its source type.
type SourceConfig struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides. A sources file or directory referenced by Ingest.SourcesPath is
// merged into Sources.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Ingest.SourcesPath != "" {
		extra, err := LoadSources(cfg.Ingest.SourcesPath)
		if err != nil {
			log.Printf("config: cannot load sources from %s: %v", cfg.Ingest.SourcesPath, err)
		} else {
			cfg.Sources = append(cfg.Sources, extra...)
		}
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Type == "" {
			cfg.Sources[i].Type = domain.SourceNews
		}
	}

	return cfg
}

// LoadSources reads source definitions from a YAML file, or from every
// *.yaml file in a directory (sorted by name).
func LoadSources(path string) ([]SourceConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return parseSourcesFile(path)
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var out []SourceConfig
	for _, p := range matches {
		sources, err := parseSourcesFile(p)
		if err != nil {
			log.Printf("config: skipping sources file %s: %v", p, err)
			continue
		}
		out = append(out, sources...)
	}
	return out, nil
}

func parseSourcesFile(path string) ([]SourceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sources []SourceConfig
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIBaseEnv); v != "" {
		c.OpenAI.Endpoint = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(nerEndpointEnv); v != "" {
		c.NER.InferenceURL = v
	}
	if v := os.Getenv(nerAPIKeyEnv); v != "" {
		c.NER.APIKey = v
	}
	if v := os.Getenv(sourcesPathEnv); v != "" {
		c.Ingest.SourcesPath = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Redis.URL != "" {
		base.Redis = override.Redis
	}

	if override.OpenAI.Endpoint != "" {
		base.OpenAI.Endpoint = override.OpenAI.Endpoint
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}

	if override.NER.InferenceURL != "" {
		base.NER.InferenceURL = override.NER.InferenceURL
	}
	if override.NER.APIKey != "" {
		base.NER.APIKey = override.NER.APIKey
	}
	if override.NER.MinScore > 0 {
		base.NER.MinScore = override.NER.MinScore
	}

	if override.Ingest.Concurrency > 0 {
		base.Ingest.Concurrency = override.Ingest.Concurrency
	}
	if override.Ingest.MaxPerFeed > 0 {
		base.Ingest.MaxPerFeed = override.Ingest.MaxPerFeed
	}
	if override.Ingest.Interval > 0 {
		base.Ingest.Interval = override.Ingest.Interval
	}
	if override.Ingest.SourcesPath != "" {
		base.Ingest.SourcesPath = override.Ingest.SourcesPath
	}

	if override.API.Addr != "" {
		base.API.Addr = override.API.Addr
	}
	if override.API.MetricsAddr != "" {
		base.API.MetricsAddr = override.API.MetricsAddr
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		OpenAI: OpenAIConfig{
			Endpoint: defaultEndpoint,
			Model:    "gpt-4o-mini",
		},
		NER: NERConfig{MinScore: 0.55},
		Ingest: IngestConfig{
			Concurrency: 10,
			MaxPerFeed:  25,
			Interval:    15 * time.Minute,
		},
		API: APIConfig{Addr: ":8080", MetricsAddr: ":9091"},
	}
}
