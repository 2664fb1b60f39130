package config

import (
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/aggregator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/extractor"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/locator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultStoreDriver = "json"
	DefaultDataDir     = "data"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "regolith"
	DefaultDBMaxConns = 10

	DefaultRedisAddr     = "localhost:6379"
	DefaultMinIOEndpoint = "localhost:9000"
	DefaultKafkaBroker   = "localhost:9092"
	DefaultKafkaGroupID  = "regolith-worker"
	DefaultEventSource   = "regolith"

	DefaultMetricsNamespace = "regolith"

	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultWorkerSource = "local"
	DefaultDocsDir      = "docs"
)

// Defaults returns a Config populated with every component's standard
// settings.  Loading unmarshals on top of it, so unset keys keep these
// values.
func Defaults() *Config {
	return &Config{
		Log: loggingDefaults(),
		Extraction: ExtractionConfig{
			Run:       extraction.DefaultConfig(),
			Normalize: normalizer.DefaultConfig(),
			Locate:    locator.DefaultConfig(),
			Extract:   extractor.DefaultConfig(),
		},
		Aggregation: aggregator.DefaultConfig(),
		LLM:         llm.DefaultConfig(),
		Store:       StoreConfig{Driver: DefaultStoreDriver, DataDir: DefaultDataDir},
		Database: DatabaseConfig{
			Host:            DefaultDBHost,
			Port:            DefaultDBPort,
			DBName:          DefaultDBName,
			SSLMode:         "disable",
			MaxConns:        DefaultDBMaxConns,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Source:            DefaultEventSource,
			ReplicationFactor: 1,
			Consumer: kafka.ConsumerConfig{
				GroupID:         DefaultKafkaGroupID,
				AutoOffsetReset: "earliest",
			},
		},
		Metrics: MetricsConfig{Enabled: true},
		Server: ServerConfig{
			Port:            DefaultServerPort,
			Mode:            DefaultServerMode,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			MaxBodySize:     1 << 20,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Worker: WorkerConfig{
			Source:        DefaultWorkerSource,
			DocsDir:       DefaultDocsDir,
			WatchDebounce: 5 * time.Second,
			LockTTL:       30 * time.Minute,
			MetricsPort:   9091,
		},
	}
}

// ApplyDefaults fills fields derived from other sections and any zero value
// an explicit empty key may have left behind.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStoreDriver
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = DefaultDataDir
	}
	if cfg.Store.BackupDir == "" {
		cfg.Store.BackupDir = cfg.Store.DataDir
	}

	// ── Redis / MinIO ─────────────────────────────────────────────────────────
	if cfg.Redis.Client.Addr == "" {
		cfg.Redis.Client.Addr = DefaultRedisAddr
	}
	if cfg.MinIO.Client.Endpoint == "" {
		cfg.MinIO.Client.Endpoint = DefaultMinIOEndpoint
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if len(cfg.Kafka.Producer.Brokers) == 0 {
		cfg.Kafka.Producer.Brokers = cfg.Kafka.Brokers
	}
	if len(cfg.Kafka.Consumer.Brokers) == 0 {
		cfg.Kafka.Consumer.Brokers = cfg.Kafka.Brokers
	}
	if len(cfg.Kafka.Consumer.Topics) == 0 {
		cfg.Kafka.Consumer.Topics = []string{kafka.TopicBatchRequested}
	}
	if cfg.Kafka.Consumer.GroupID == "" {
		cfg.Kafka.Consumer.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.Source == "" {
		cfg.Kafka.Source = DefaultEventSource
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Collector.Namespace == "" {
		cfg.Metrics.Collector.Namespace = DefaultMetricsNamespace
	}

	// ── Server / Worker ───────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Worker.Source == "" {
		cfg.Worker.Source = DefaultWorkerSource
	}
	if cfg.Worker.DocsDir == "" {
		cfg.Worker.DocsDir = DefaultDocsDir
	}
}

func loggingDefaults() logging.LogConfig {
	return logging.LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat}
}
