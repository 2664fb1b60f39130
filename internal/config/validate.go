package config

import (
	"github.com/robfig/cron/v3"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Validate performs semantic validation of a fully populated Config and
// returns the first problem found.  Sections for disabled integrations are
// not checked.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if _, err := extraction.ParseMode(string(c.Extraction.Run.Mode)); err != nil {
		return err
	}
	if c.Extraction.Run.Workers < 1 {
		return invalid("extraction.workers must be >= 1, got %d", c.Extraction.Run.Workers)
	}
	if err := c.Aggregation.Validate(); err != nil {
		return err
	}
	if c.LLM.Enabled && c.LLM.Model == "" {
		return invalid("llm.model is required when llm.enabled is set")
	}

	switch c.Store.Driver {
	case "json":
		if c.Store.DataDir == "" {
			return invalid("store.data_dir is required for the json driver")
		}
	case "postgres":
		if c.Database.Host == "" {
			return invalid("database.host is required for the postgres driver")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return invalid("database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return invalid("database.user is required for the postgres driver")
		}
		if c.Database.DBName == "" {
			return invalid("database.db_name is required for the postgres driver")
		}
		if c.Database.MaxConns < 1 {
			return invalid("database.max_conns must be >= 1, got %d", c.Database.MaxConns)
		}
	default:
		return invalid("store.driver %q is invalid; expected json|postgres", c.Store.Driver)
	}
	if c.Store.MirrorBackups && !c.MinIO.Enabled {
		return invalid("store.mirror_backups requires minio.enabled")
	}

	if c.Redis.Enabled && c.Redis.Client.DB < 0 {
		return invalid("redis.db must be >= 0, got %d", c.Redis.Client.DB)
	}
	if c.MinIO.Enabled && c.MinIO.Client.Endpoint == "" {
		return invalid("minio.endpoint is required when minio.enabled is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers must contain at least one broker address")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateBurst < 1) {
		return invalid("server.rate_limit must be >= 0 with rate_burst >= 1")
	}

	switch c.Worker.Source {
	case "local":
	case "minio":
		if !c.MinIO.Enabled {
			return invalid("worker.source minio requires minio.enabled")
		}
	default:
		return invalid("worker.source %q is invalid; expected local|minio", c.Worker.Source)
	}
	if c.Worker.Schedule != "" {
		if _, err := cron.ParseStandard(c.Worker.Schedule); err != nil {
			return invalid("worker.schedule %q: %v", c.Worker.Schedule, err)
		}
	}
	if c.Worker.MetricsPort < 0 || c.Worker.MetricsPort > 65535 {
		return invalid("worker.metrics_port %d is out of range", c.Worker.MetricsPort)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeValidation, "config: "+format, args...)
}
