package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()
	logger.Info("document processed", logging.String("document", "LHS-1_TDS.pdf"))

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)

	v, ok := logger.Field("document processed", "document")
	assert.True(t, ok)
	assert.Equal(t, "LHS-1_TDS.pdf", v)

	logger.Reset()
	assert.Empty(t, logger.Entries())

	logger.Error("store write failed")
	assert.True(t, logger.HasMessage("error", "store write failed"))
	assert.False(t, logger.HasMessage("info", "document processed"))
	assert.Equal(t, 1, logger.Count("error"))
}

func TestMockLogger_Children(t *testing.T) {
	logger := testutil.NewMockLogger()
	child := logger.Named("extraction").With(logging.String("run_id", "run-1")).Named("apply")
	child.Warn("document skipped", logging.String("document", "a.pdf"))
	logger.Info("parent entry")

	entries := logger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "extraction.apply", entries[0].Logger)
	assert.Equal(t, "", entries[1].Logger)

	run, ok := logger.Field("document skipped", "run_id")
	assert.True(t, ok)
	assert.Equal(t, "run-1", run)
	_, ok = logger.Field("parent entry", "run_id")
	assert.False(t, ok)
}
