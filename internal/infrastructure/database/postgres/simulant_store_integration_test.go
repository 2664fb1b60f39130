//go:build integration

// Package postgres_test runs the simulant store against a PostgreSQL
// container.  Tests require Docker and are gated behind the "integration"
// build tag.
package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// startPostgres launches a PostgreSQL 16 container, applies the embedded
// migrations and returns a connected pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "regolith_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/regolith_test?sslmode=disable", host, port.Port())
	require.NoError(t, postgres.RunMigrations(dsn, "", logging.NewNopLogger()))

	version, dirty, err := postgres.MigrationStatus(dsn, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seededStore(t *testing.T) (*postgres.SimulantStore, *pgxpool.Pool) {
	t.Helper()
	pool := startPostgres(t)
	store := postgres.NewSimulantStore(pool, logging.NewNopLogger())
	ctx := context.Background()

	e, err := store.Register(ctx, "LHS-1")
	require.NoError(t, err)
	require.Equal(t, "S001", e.ID)
	e, err = store.Register(ctx, "JSC-1A", "JSC1A")
	require.NoError(t, err)
	require.Equal(t, "S002", e.ID)
	return store, pool
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestSimulantStore_RegisterAndList(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	again, err := store.Register(ctx, "lhs-1")
	require.NoError(t, err)
	assert.Equal(t, "S001", again.ID)

	entities, err := store.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "JSC-1A", entities[1].Name)
	assert.Contains(t, entities[1].Variants(), "JSC1A")
}

func TestSimulantStore_UpsertNeverOverwrites(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	first, err := store.Upsert(ctx, "S001", domain.CategoryChemical, map[string]string{"SiO2": "45.2", "TiO2": "0.5"})
	require.NoError(t, err)
	assert.Equal(t, domain.FieldWritten, first["SiO2"].Status)

	second, err := store.Upsert(ctx, "S001", domain.CategoryChemical, map[string]string{"sio2": "47.0", "TiO2": "0.50"})
	require.NoError(t, err)
	assert.Equal(t, domain.FieldConflict, second["sio2"].Status)
	assert.Equal(t, "45.2", second["sio2"].Existing)
	assert.Equal(t, domain.FieldUnchanged, second["TiO2"].Status)

	comps, err := store.Components(ctx, "S001", domain.CategoryChemical)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SiO2": 45.2, "TiO2": 0.5}, comps)
}

func TestSimulantStore_UpsertMetadata(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	res, err := store.Upsert(ctx, "S002", domain.CategoryMetadata, map[string]string{
		domain.ColumnBulkDensity: "1.56",
		"institution":            "NASA JSC",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FieldWritten, res[domain.ColumnBulkDensity].Status)

	row, err := store.Simulant(ctx, "S002")
	require.NoError(t, err)
	assert.Equal(t, "1.56 g/cm³", row[domain.ColumnBulkDensity])
	assert.Equal(t, "NASA JSC", row["institution"])

	res, err = store.Upsert(ctx, "S002", domain.CategoryMetadata, map[string]string{"institution": "Orbitec"})
	require.NoError(t, err)
	assert.Equal(t, domain.FieldConflict, res["institution"].Status)
}

func TestSimulantStore_UnknownSimulant(t *testing.T) {
	store, _ := seededStore(t)
	_, err := store.Upsert(context.Background(), "S404", domain.CategoryMineral, map[string]string{"Olivine": "5"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func TestSimulantStore_ReplaceComponentsBacksUp(t *testing.T) {
	store, pool := seededStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "S001", domain.CategoryMineral, map[string]string{"Plagioclase": "40", "Anorthite": "20"})
	require.NoError(t, err)

	err = store.ReplaceComponents(ctx, "S001", domain.CategoryMineral, map[string]float64{"Plagioclase": 60, "Glass": 0})
	require.NoError(t, err)

	comps, err := store.Components(ctx, "S001", domain.CategoryMineral)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Plagioclase": 60}, comps)

	var snapshots int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT jsonb_array_length(snapshot) FROM component_backups WHERE simulant_id = 'S001' AND category = 'mineral'`).Scan(&snapshots))
	assert.Equal(t, 2, snapshots)
}

func TestSimulantStore_ReplaceComponentsKeepsNullRows(t *testing.T) {
	store, pool := seededStore(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO composition_components (simulant_id, category, component_name, value_pct) VALUES
		('S001', 'mineral', 'Olivine', NULL),
		('S001', 'mineral', 'Glass', NULL),
		('S001', 'mineral', 'Plagioclase', 45)`)
	require.NoError(t, err)

	err = store.ReplaceComponents(ctx, "S001", domain.CategoryMineral, map[string]float64{"Plagioclase": 40, "Glass": 12})
	require.NoError(t, err)

	comps, err := store.Components(ctx, "S001", domain.CategoryMineral)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Plagioclase": 40, "Glass": 12}, comps)

	var nulls []string
	rows, err := pool.Query(ctx, `SELECT component_name FROM composition_components
		WHERE simulant_id = 'S001' AND category = 'mineral' AND value_pct IS NULL`)
	require.NoError(t, err)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		nulls = append(nulls, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Olivine"}, nulls)
}
