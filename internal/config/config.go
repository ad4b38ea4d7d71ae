// Package config builds the data plane's configuration tree: compiled-in
// defaults, overridden by an optional YAML file, overridden in turn by
// environment variables decoded with envdecode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the metrics/health HTTP listener (C9).
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres metadata store (internal/store).
type DatabaseConfig struct {
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
	MigrationsPath  string `json:"migrations_path" yaml:"migrations_path" env:"DATABASE_MIGRATIONS_PATH"`
}

// StreamConfig controls the Redis Streams transport shared by the sink (C4)
// producer side and the streaming rule runner (C7) consumer side.
type StreamConfig struct {
	Addr            string `json:"addr" env:"REDIS_ADDR"`
	Password        string `json:"password" env:"REDIS_PASSWORD"`
	DB              int    `json:"db" env:"REDIS_DB"`
	StreamKeyPrefix string `json:"stream_key_prefix" yaml:"stream_key_prefix" env:"REDIS_STREAM_PREFIX"`
	MaxLen          int64  `json:"maxlen" env:"REDIS_STREAM_MAXLEN"`
	ConsumerGroup   string `json:"consumer_group" yaml:"consumer_group" env:"REDIS_CONSUMER_GROUP"`
	ClaimMinIdle    int    `json:"claim_min_idle_ms" yaml:"claim_min_idle_ms" env:"REDIS_CLAIM_MIN_IDLE_MS"`
}

// IngestConfig controls parsing, normalization and sink behavior (C1-C4).
type IngestConfig struct {
	MaxMessageLength int     `json:"max_message_length" yaml:"max_message_length" env:"INGEST_MAX_MESSAGE_LENGTH"`
	MaxFieldsCount   int     `json:"max_fields_count" yaml:"max_fields_count" env:"INGEST_MAX_FIELDS_COUNT"`
	FieldNameRegex   string  `json:"field_name_regex" yaml:"field_name_regex" env:"INGEST_FIELD_NAME_REGEX"`
	BatchSize        int     `json:"batch_size" yaml:"batch_size" env:"INGEST_BATCH_SIZE"`
	BatchMaxBytes    int     `json:"batch_max_bytes" yaml:"batch_max_bytes" env:"INGEST_BATCH_MAX_BYTES"`
	WorkerCount      int     `json:"worker_count" yaml:"worker_count" env:"INGEST_WORKER_COUNT"`
	RateLimitRPS     float64 `json:"rate_limit_rps" yaml:"rate_limit_rps" env:"INGEST_RATE_LIMIT_RPS"`
	RateLimitBurst   int     `json:"rate_limit_burst" yaml:"rate_limit_burst" env:"INGEST_RATE_LIMIT_BURST"`
	MaxRetries       int     `json:"max_retries" yaml:"max_retries" env:"INGEST_MAX_RETRIES"`
	DLQPath          string  `json:"dlq_path" yaml:"dlq_path" env:"INGEST_DLQ_PATH"`
}

// RuleConfig controls the batch scheduler (C6) and streaming runner (C7).
type RuleConfig struct {
	BatchPollInterval   int    `json:"batch_poll_interval_sec" yaml:"batch_poll_interval_sec" env:"RULE_BATCH_POLL_INTERVAL_SEC"`
	BatchConcurrency    int    `json:"batch_concurrency" yaml:"batch_concurrency" env:"RULE_BATCH_CONCURRENCY"`
	StreamConsumerName  string `json:"stream_consumer_name" yaml:"stream_consumer_name" env:"RULE_STREAM_CONSUMER_NAME"`
	StreamBlockMillis   int    `json:"stream_block_millis" yaml:"stream_block_millis" env:"RULE_STREAM_BLOCK_MILLIS"`
	StreamBatchSize     int    `json:"stream_batch_size" yaml:"stream_batch_size" env:"RULE_STREAM_BATCH_SIZE"`
	DedupTTLSeconds     int    `json:"dedup_ttl_seconds" yaml:"dedup_ttl_seconds" env:"RULE_DEDUP_TTL_SECONDS"`
	DefaultThrottleSec  int    `json:"default_throttle_sec" yaml:"default_throttle_sec" env:"RULE_DEFAULT_THROTTLE_SEC"`
	MappingProfile      string `json:"mapping_profile" yaml:"mapping_profile" env:"RULE_MAPPING_PROFILE"`
}

// UEBAConfig controls the behavioral baseline modeler (C8).
type UEBAConfig struct {
	MinObservedHours      int     `json:"min_observed_hours" yaml:"min_observed_hours" env:"UEBA_MIN_OBSERVED_HOURS"`
	RebuildIntervalHr     int     `json:"rebuild_interval_hours" yaml:"rebuild_interval_hours" env:"UEBA_REBUILD_INTERVAL_HOURS"`
	ZScoreThreshold       float64 `json:"z_score_threshold" yaml:"z_score_threshold" env:"UEBA_Z_SCORE_THRESHOLD"`
	CalculationPeriodDays int     `json:"calculation_period_days" yaml:"calculation_period_days" env:"UEBA_CALCULATION_PERIOD_DAYS"`
}

// LoggingConfig controls the logging package.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// Config is the top-level configuration tree for the data plane.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Stream   StreamConfig   `json:"stream"`
	Ingest   IngestConfig   `json:"ingest"`
	Rule     RuleConfig     `json:"rule"`
	UEBA     UEBAConfig     `json:"ueba"`
	Logging  LoggingConfig  `json:"logging"`

	// TenantsCSV is a comma-separated static tenant list, standing in for
	// the tenant-provisioning admin surface this data plane excludes
	// (spec.md's Non-goals). The streaming runner and UEBA modeler round-
	// robin over it directly instead of discovering tenants dynamically.
	TenantsCSV string `json:"tenants" yaml:"tenants" env:"SIEM_TENANTS"`
}

// New returns a Config populated with compiled-in defaults (spec.md defaults
// for validator limits and dedup/throttle windows are grounded in
// original_source/siem_clickhouse_ingestion/src/schema.rs).
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
			MigrationsPath:  "internal/store/migrations",
		},
		Stream: StreamConfig{
			Addr:            "localhost:6379",
			DB:              0,
			StreamKeyPrefix: "siem:events",
			MaxLen:          1_000_000,
			ConsumerGroup:   "rule-runners",
			ClaimMinIdle:    30_000,
		},
		Ingest: IngestConfig{
			MaxMessageLength: 10000,
			MaxFieldsCount:   100,
			FieldNameRegex:   `^[a-zA-Z_][a-zA-Z0-9_]{0,127}$`,
			BatchSize:        500,
			BatchMaxBytes:    4 << 20,
			WorkerCount:      8,
			RateLimitRPS:     5000,
			RateLimitBurst:   10000,
			MaxRetries:       5,
			DLQPath:          "var/dlq",
		},
		Rule: RuleConfig{
			BatchPollInterval:  60,
			BatchConcurrency:   4,
			StreamConsumerName: "",
			StreamBlockMillis:  5000,
			StreamBatchSize:    100,
			DedupTTLSeconds:    3600,
			DefaultThrottleSec: 300,
			MappingProfile:     "default_cim_v1",
		},
		UEBA: UEBAConfig{
			MinObservedHours:     24,
			RebuildIntervalHr:    24,
			ZScoreThreshold:      3.0,
			CalculationPeriodDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		TenantsCSV: "default",
	}
}

// Tenants splits TenantsCSV into a trimmed, non-empty tenant id list.
func (c *Config) Tenants() []string {
	var out []string
	for _, t := range strings.Split(c.TenantsCSV, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Load loads defaults, then an optional .env file, then an optional YAML
// file named by CONFIG_FILE (or configs/config.yaml), then environment
// variable overrides decoded via envdecode.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
