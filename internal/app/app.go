// Package app wires configuration into the running pipeline.  Every binary
// opens one Infrastructure, builds an extraction Service from it per run and
// closes it on exit.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/store/jsonstore"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Store is the record store the binaries work against.
type Store interface {
	domain.Maintainer
	Register(ctx context.Context, name string, aliases ...string) (*domain.Entity, error)
	Simulant(ctx context.Context, id string) (map[string]string, error)
}

var (
	_ Store = (*jsonstore.Store)(nil)
	_ Store = (*postgres.SimulantStore)(nil)
)

// Infrastructure holds the clients opened from a Config.  Optional clients
// are nil when their section is disabled.
type Infrastructure struct {
	Config *config.Config
	Logger logging.Logger

	Store    Store
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	MinIO    *minio.MinIOClient
	Producer *kafka.Producer
	Events   *kafka.EventBus

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.PipelineMetrics
}

// Open connects every enabled backend.  On error, whatever was already
// opened is closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("app: config required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{Config: cfg, Logger: logger}
	if err := infra.open(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	logger.Info("infrastructure initialized",
		logging.String("store", cfg.Store.Driver),
		logging.Bool("redis", infra.Redis != nil),
		logging.Bool("minio", infra.MinIO != nil),
		logging.Bool("kafka", infra.Events != nil),
		logging.Bool("metrics", cfg.Metrics.Enabled),
	)
	return infra, nil
}

func (i *Infrastructure) open(ctx context.Context) error {
	cfg := i.Config
	if err := i.openMetrics(); err != nil {
		return err
	}
	if cfg.MinIO.Enabled {
		mc := cfg.MinIO.Client
		client, err := minio.NewMinIOClient(ctx, &mc, i.Logger.Named("minio"))
		if err != nil {
			return err
		}
		i.MinIO = client
	}
	if cfg.Redis.Enabled {
		rc := cfg.Redis.Client
		client, err := redis.NewClient(&rc, i.Logger.Named("redis"))
		if err != nil {
			return err
		}
		i.Redis = client
	}
	if err := i.openStore(ctx); err != nil {
		return err
	}
	if cfg.Kafka.Enabled {
		return i.openKafka(ctx)
	}
	return nil
}

func (i *Infrastructure) openMetrics() error {
	mc := i.Config.Metrics.Collector
	if !i.Config.Metrics.Enabled {
		mc.EnableProcessMetrics = false
		mc.EnableGoMetrics = false
	}
	collector, err := prometheus.NewMetricsCollector(mc, i.Logger)
	if err != nil {
		return err
	}
	i.Collector = collector
	i.Metrics = prometheus.NewPipelineMetrics(collector)
	return nil
}

func (i *Infrastructure) openStore(ctx context.Context) error {
	cfg := i.Config
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(postgres.DSN(cfg.Database), cfg.Database.MigrationPath, i.Logger); err != nil {
				return err
			}
		}
		pool, err := postgres.NewConnectionPool(ctx, cfg.Database, i.Logger)
		if err != nil {
			return err
		}
		i.Pool = pool
		i.Store = postgres.NewSimulantStore(pool, i.Logger)
	default:
		var opts []jsonstore.Option
		if cfg.Store.MirrorBackups && i.MinIO != nil {
			opts = append(opts, jsonstore.WithBackupMirror(i.MinIO.Backups()))
		}
		st, err := jsonstore.Open(jsonstore.Config{DataDir: cfg.Store.DataDir, BackupDir: cfg.Store.BackupDir}, i.Logger, opts...)
		if err != nil {
			return err
		}
		i.Store = st
	}
	return nil
}

func (i *Infrastructure) openKafka(ctx context.Context) error {
	cfg := i.Config.Kafka
	if cfg.EnsureTopics {
		tm, err := kafka.NewTopicManager(cfg.Brokers, i.Logger)
		if err != nil {
			return err
		}
		err = tm.EnsureDefaultTopics(ctx, cfg.ReplicationFactor)
		_ = tm.Close()
		if err != nil {
			return err
		}
	}
	producer, err := kafka.NewProducer(cfg.Producer, i.Logger)
	if err != nil {
		return err
	}
	i.Producer = producer
	i.Events = kafka.NewEventBus(producer, cfg.Source).Observe(i.Metrics.EventPublished)
	return nil
}

// Documents returns the document source for kind ("local" or "minio").
// dir is the local root; minio reads the configured document prefix.
func (i *Infrastructure) Documents(kind, dir string) (extraction.DocumentSource, error) {
	switch kind {
	case "", "local":
		if dir == "" {
			return nil, errors.InvalidParam("a documents directory is required")
		}
		return extraction.NewDirSource(dir), nil
	case "minio":
		if i.MinIO == nil {
			return nil, errors.New(errors.ErrCodeServiceUnavailable, "minio is not enabled")
		}
		return i.MinIO.Documents(), nil
	}
	return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown document source %q (local|minio)", kind)
}

// NewConsumer returns a consumer of topics in the configured group with
// groupSuffix appended, so each binary keeps its own offsets.
func (i *Infrastructure) NewConsumer(groupSuffix string, topics ...string) (*kafka.Consumer, error) {
	if !i.Config.Kafka.Enabled {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "kafka is not enabled")
	}
	cc := i.Config.Kafka.Consumer
	cc.Topics = topics
	if groupSuffix != "" {
		cc.GroupID += "-" + groupSuffix
	}
	return kafka.NewConsumer(cc, i.Logger.Named("kafka"))
}

// BatchLock returns the cross-process lock that serializes batch runs, or
// nil when Redis is disabled.
func (i *Infrastructure) BatchLock() redis.DistributedLock {
	if i.Redis == nil {
		return nil
	}
	ttl := i.Config.Worker.LockTTL
	return redis.NewLockFactory(i.Redis, i.Logger).NewMutex("regolith:batch",
		redis.WithLockTTL(ttl), redis.WithRetryCount(0), redis.WithWatchdog(true))
}

// HealthChecks returns a probe per connected backend.
func (i *Infrastructure) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"store": func(ctx context.Context) error {
			_, err := i.Store.ListEntities(ctx)
			return err
		},
	}
	if i.Pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return postgres.HealthCheck(ctx, i.Pool, i.Logger) }
	}
	if i.Redis != nil {
		checks["redis"] = i.Redis.Ping
	}
	if i.MinIO != nil {
		checks["minio"] = func(ctx context.Context) error {
			_, err := i.MinIO.HealthCheck(ctx)
			return err
		}
	}
	return checks
}

// Close releases every opened client.  It is safe on a partially opened
// Infrastructure.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Producer != nil {
		if err := i.Producer.Close(); err != nil {
			i.Logger.Warn("close kafka producer", logging.Err(err))
		}
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.MinIO != nil {
		_ = i.MinIO.Close()
	}
	if i.Pool != nil {
		postgres.Close(i.Pool)
	}
}
