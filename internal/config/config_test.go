package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

func validConfig() *Config {
	cfg := Defaults()
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"console format", func(c *Config) { c.Log.Format = "console" }, false},
		{"bad mode", func(c *Config) { c.Extraction.Run.Mode = "yolo" }, true},
		{"interactive mode", func(c *Config) { c.Extraction.Run.Mode = "interactive" }, false},
		{"no workers", func(c *Config) { c.Extraction.Run.Workers = 0 }, true},
		{"threshold above one", func(c *Config) { c.Aggregation.ConfidenceThreshold = 1.5 }, true},
		{"llm without model", func(c *Config) { c.LLM.Enabled = true; c.LLM.Model = "" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"postgres needs user", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"postgres complete", func(c *Config) { c.Store.Driver = "postgres"; c.Database.User = "regolith" }, false},
		{"postgres bad port", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Database.User = "regolith"
			c.Database.Port = 70000
		}, true},
		{"mirror without minio", func(c *Config) { c.Store.MirrorBackups = true }, true},
		{"mirror with minio", func(c *Config) { c.Store.MirrorBackups = true; c.MinIO.Enabled = true }, false},
		{"negative redis db", func(c *Config) { c.Redis.Enabled = true; c.Redis.Client.DB = -1 }, true},
		{"disabled redis unchecked", func(c *Config) { c.Redis.Client.DB = -1 }, false},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, true},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad server mode", func(c *Config) { c.Server.Mode = "prod" }, true},
		{"minio source disabled", func(c *Config) { c.Worker.Source = "minio" }, true},
		{"minio source enabled", func(c *Config) { c.Worker.Source = "minio"; c.MinIO.Enabled = true }, false},
		{"unknown source", func(c *Config) { c.Worker.Source = "ftp" }, true},
		{"nightly schedule", func(c *Config) { c.Worker.Schedule = "0 2 * * *" }, false},
		{"descriptor schedule", func(c *Config) { c.Worker.Schedule = "@hourly" }, false},
		{"bad schedule", func(c *Config) { c.Worker.Schedule = "every night" }, true},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, true},
		{"rate limit without burst", func(c *Config) { c.Server.RateLimit = 5; c.Server.RateBurst = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_ErrorCode(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "sqlite"
	err := cfg.Validate()
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "store.driver")
}
