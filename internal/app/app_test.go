package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.DataDir = t.TempDir()
	cfg.Extraction.Normalize.OCREnabled = false
	config.ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOpen_JSONStore(t *testing.T) {
	ctx := context.Background()
	infra, err := Open(ctx, testConfig(t), logging.NewNopLogger())
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.Pool)
	assert.Nil(t, infra.Redis)
	assert.Nil(t, infra.MinIO)
	assert.Nil(t, infra.Events)
	require.NotNil(t, infra.Metrics)

	e, err := infra.Store.Register(ctx, "LHS-1")
	require.NoError(t, err)
	cat, err := infra.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())

	got, err := cat.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "LHS-1", got.Name)

	checks := infra.HealthChecks()
	require.Contains(t, checks, "store")
	assert.NoError(t, checks["store"](ctx))
}

func TestOpen_NilConfig(t *testing.T) {
	_, err := Open(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestDocuments(t *testing.T) {
	infra, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer infra.Close()

	src, err := infra.Documents("local", "docs")
	require.NoError(t, err)
	assert.IsType(t, &extraction.DirSource{}, src)

	_, err = infra.Documents("local", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = infra.Documents("minio", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	_, err = infra.Documents("ftp", "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestNewService_RunsOverLocalDocuments(t *testing.T) {
	ctx := context.Background()
	infra, err := Open(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer infra.Close()

	_, err = infra.Store.Register(ctx, "LHS-1")
	require.NoError(t, err)

	docs := t.TempDir()
	sheet := "LHS-1 TECHNICAL DATA SHEET\nSiO2 45.2, TiO2 0.5, Al2O3 24.0, FeO 6.8, MgO 7.5\n"
	for _, name := range []string{"LHS-1_TDS.txt", "LHS-1_factsheet.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(docs, name), []byte(sheet), 0o644))
	}

	svc, err := infra.NewService(ctx)
	require.NoError(t, err)
	src, err := infra.Documents("local", docs)
	require.NoError(t, err)

	report, err := svc.Run(ctx, src, extraction.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesProcessed)
	assert.Equal(t, 5, report.ChemicalRows)

	comps, err := infra.Store.Components(ctx, "S001", "chemical")
	require.NoError(t, err)
	assert.InDelta(t, 45.2, comps["SiO2"], 1e-9)
}

func TestNewService_LLMRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Enabled = true
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKeyEnv = "REGOLITH_TEST_MISSING_KEY"
	t.Setenv("REGOLITH_TEST_MISSING_KEY", "")

	infra, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer infra.Close()

	_, err = infra.NewService(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeLLMNotConfigured))
}

func TestCompleter_CachesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Client.Addr = mr.Addr()

	infra, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer infra.Close()
	require.NotNil(t, infra.Redis)

	calls := 0
	upstream := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return `{"institution":"NASA"}`, nil
	})
	c := infra.completer(upstream, "extract", llm.Config{Model: "m", CacheTTL: 0})

	req := llm.Request{Prompt: "p", JSON: true}
	for n := 0; n < 2; n++ {
		out, err := c.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"institution":"NASA"}`, out)
	}
	assert.Equal(t, 1, calls)
	assert.NotEmpty(t, mr.Keys())
	assert.NoError(t, infra.HealthChecks()["redis"](context.Background()))
}

func TestBatchLock(t *testing.T) {
	infra, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	assert.Nil(t, infra.BatchLock())
	infra.Close()

	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Client.Addr = mr.Addr()
	infra, err = Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer infra.Close()

	ctx := context.Background()
	first, second := infra.BatchLock(), infra.BatchLock()
	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a second holder must not acquire the batch lock")
	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))
}

func TestNewConsumer_RequiresKafka(t *testing.T) {
	infra, err := Open(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer infra.Close()
	_, err = infra.NewConsumer("api", "review.required")
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}
