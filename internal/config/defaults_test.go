package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/messaging/kafka"
)

func TestDefaults_ComponentSettings(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, extraction.ModeAuto, cfg.Extraction.Run.Mode)
	assert.Equal(t, 0.8, cfg.Aggregation.ConfidenceThreshold)
	assert.Equal(t, 2, cfg.Aggregation.MinSources)
	assert.Equal(t, 1.2, cfg.Aggregation.Boost)
	assert.Equal(t, 10, cfg.Aggregation.MaxArbiterSources)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.CallDelay)
	assert.Equal(t, 15000, cfg.LLM.MaxTextChars)
	assert.Equal(t, 500, cfg.Extraction.Normalize.OCRMinChars)
	assert.Equal(t, 1500, cfg.Extraction.Locate.WindowChars)
	assert.Equal(t, 5, cfg.Extraction.Extract.ChemicalThreshold)
	assert.Equal(t, "json", cfg.Store.Driver)
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultDataDir, cfg.Store.DataDir)
	assert.Equal(t, DefaultDataDir, cfg.Store.BackupDir)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Producer.Brokers)
	assert.Equal(t, []string{kafka.TopicBatchRequested}, cfg.Kafka.Consumer.Topics)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Collector.Namespace)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Store.DataDir = "/srv/regolith"
	cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}
	cfg.Server.Port = 9999
	ApplyDefaults(cfg)

	assert.Equal(t, "/srv/regolith", cfg.Store.BackupDir)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Consumer.Brokers)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())
}
