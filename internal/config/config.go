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
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// APIConfig points at the remote document API.
type APIConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Token             string  `mapstructure:"token"`
	Version           string  `mapstructure:"version"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffBaseMs     int     `mapstructure:"backoff_base_ms"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// IngestConfig governs the traversal pipeline.
type IngestConfig struct {
	RootDatabaseID string `mapstructure:"root_database_id"`
	BookDatabaseID string `mapstructure:"book_database_id"`
	Concurrency    int    `mapstructure:"concurrency"`
	EnableCaching  bool   `mapstructure:"enable_caching"`
	PostTimeoutMs  int    `mapstructure:"post_timeout_ms"`
	ScrapeMetadata bool   `mapstructure:"scrape_metadata"`
}

// StorageConfig selects the asset blob store backend.
type StorageConfig struct {
	// Backend is one of "local", "memory" or "gcs".
	Backend   string `mapstructure:"backend"`
	AssetDir  string `mapstructure:"asset_dir"`
	StaticDir string `mapstructure:"static_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// CacheConfig selects the durable cache backend.
type CacheConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// PubSubConfig holds metadata for run-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
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
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.base_url", "https://api.notion.com/v1")
	v.SetDefault("api.max_retries", 5)
	v.SetDefault("api.backoff_base_ms", 1000)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("ingest.concurrency", 5)
	v.SetDefault("ingest.enable_caching", true)
	v.SetDefault("ingest.post_timeout_ms", 30000)
	v.SetDefault("ingest.scrape_metadata", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.asset_dir", "public/assets")
	v.SetDefault("storage.static_dir", "public/static")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.table", "ingest_cache")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Ingest.RootDatabaseID == "" {
		return fmt.Errorf("ingest.root_database_id is required")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Cache.Backend {
	case "memory":
	case "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	return nil
}

// PostTimeout converts the per-post timeout to a duration.
func (c Config) PostTimeout() time.Duration {
	return time.Duration(c.Ingest.PostTimeoutMs) * time.Millisecond
}

// BackoffBase converts the retry backoff base to a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.API.BackoffBaseMs) * time.Millisecond
}

// APITimeout converts the request timeout to a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
