// Package config defines the configuration tree for the Regolith
// pipeline and its services.  Component sections reuse the owning
// package's Config type so a YAML key maps straight onto the struct that
// consumes it.
package config

import (
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/aggregator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/extractor"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/locator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ExtractionConfig groups the per-document pipeline stages.
type ExtractionConfig struct {
	Run       extraction.Config `mapstructure:",squash"`
	Normalize normalizer.Config `mapstructure:"normalize"`
	Locate    locator.Config    `mapstructure:"locate"`
	Extract   extractor.Config  `mapstructure:"extract"`
}

// StoreConfig selects the Persistence Adapter.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"` // json | postgres
	DataDir   string `mapstructure:"data_dir"`
	BackupDir string `mapstructure:"backup_dir"`
	// MirrorBackups uploads JSON table backups to MinIO.
	MirrorBackups bool `mapstructure:"mirror_backups"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// MigrationPath overrides the embedded migrations when set.
	MigrationPath string `mapstructure:"migration_path"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

// RedisConfig enables the LLM response cache and the worker batch lock.
type RedisConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Client  redis.RedisConfig `mapstructure:",squash"`
}

// MinIOConfig enables the bucket document source and backup mirror.
type MinIOConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Client  minio.MinIOConfig `mapstructure:",squash"`
}

// KafkaConfig enables pipeline events and the worker's batch trigger.
type KafkaConfig struct {
	Enabled  bool                 `mapstructure:"enabled"`
	Brokers  []string             `mapstructure:"brokers"`
	Source   string               `mapstructure:"source"`
	Producer kafka.ProducerConfig `mapstructure:"producer"`
	Consumer kafka.ConsumerConfig `mapstructure:"consumer"`
	// EnsureTopics creates the standard topics at start-up.
	EnsureTopics      bool `mapstructure:"ensure_topics"`
	ReplicationFactor int  `mapstructure:"replication_factor"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool                       `mapstructure:"enabled"`
	Collector prometheus.CollectorConfig `mapstructure:",squash"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// WorkerConfig drives the background batch runner.
type WorkerConfig struct {
	// Schedule is a cron expression; empty disables scheduled runs.
	Schedule string `mapstructure:"schedule"`
	// Source is local or minio.
	Source  string `mapstructure:"source"`
	DocsDir string `mapstructure:"docs_dir"`
	// WatchDocs triggers a run when files appear under DocsDir.
	WatchDocs     bool          `mapstructure:"watch_docs"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration for every binary.
type Config struct {
	Log         logging.LogConfig `mapstructure:"log"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Aggregation aggregator.Config `mapstructure:"aggregation"`
	LLM         llm.Config        `mapstructure:"llm"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Server      ServerConfig      `mapstructure:"server"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}
