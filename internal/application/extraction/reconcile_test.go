package extraction

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/store/jsonstore"
	"github.com/turtacn/Regolith-Intelligence/internal/testutil"
)

func newRepairRepo(t *testing.T) *testutil.MemRepository {
	t.Helper()
	cat, err := domain.NewCatalogFromNames([]string{"LHS-1", "LMS-1"})
	require.NoError(t, err)
	repo := testutil.NewMemRepository(cat.Entities())
	repo.Set("S001", domain.CategoryMineral, "Olivine + pyroxene + ilmenite", "30")
	return repo
}

func TestReconcile_RewritesAndFillsGroups(t *testing.T) {
	repo := newRepairRepo(t)
	logger := testutil.NewMockLogger()

	rep, err := Reconcile(context.Background(), repo, false, logger)
	require.NoError(t, err)
	require.Len(t, rep.Entities, 1)

	e := rep.Entities[0]
	assert.Equal(t, "S001", e.EntityID)
	assert.True(t, e.Rewritten)
	assert.Equal(t, 30.0, e.TotalBefore)
	assert.Equal(t, 30.0, e.TotalAfter)
	assert.Equal(t, 5, e.GroupsAdded)

	assert.Equal(t, map[string]string{"Olivine": "10", "Pyroxene": "10", "Ilmenite": "10"},
		repo.Get("S001", domain.CategoryMineral))
	groups := repo.Get("S001", domain.CategoryMineralGroup)
	assert.Equal(t, "10", groups["Olivine"])
	assert.Equal(t, "0", groups["Glass"])
	assert.True(t, logger.HasMessage("info", "entity reconciled"))
}

func TestReconcile_SecondPassIsNoop(t *testing.T) {
	repo := newRepairRepo(t)
	ctx := context.Background()
	_, err := Reconcile(ctx, repo, false, nil)
	require.NoError(t, err)

	rep, err := Reconcile(ctx, repo, false, nil)
	require.NoError(t, err)
	require.Len(t, rep.Entities, 1)
	assert.False(t, rep.Entities[0].Rewritten)
	assert.Zero(t, rep.Entities[0].GroupsAdded)
	assert.Equal(t, 1, repo.Replaced)
}

func TestReconcile_DryRun(t *testing.T) {
	repo := newRepairRepo(t)
	rep, err := Reconcile(context.Background(), repo, true, nil)
	require.NoError(t, err)

	require.Len(t, rep.Entities, 1)
	assert.True(t, rep.Entities[0].Rewritten)
	assert.Equal(t, 5, rep.Entities[0].GroupsAdded)
	assert.Zero(t, repo.Replaced)
	assert.Zero(t, repo.Upserts)
	assert.Empty(t, repo.Get("S001", domain.CategoryMineralGroup))
}

func TestReconcile_ExistingGroupsKept(t *testing.T) {
	repo := newRepairRepo(t)
	repo.Set("S001", domain.CategoryMineralGroup, "Olivine", "12")

	rep, err := Reconcile(context.Background(), repo, false, nil)
	require.NoError(t, err)
	assert.Zero(t, rep.Entities[0].GroupsAdded)
	assert.Equal(t, map[string]string{"Olivine": "12"}, repo.Get("S001", domain.CategoryMineralGroup))
	assert.Zero(t, repo.Upserts)
}

func TestReconcile_DuplicateRowsKeepLargest(t *testing.T) {
	dir := t.TempDir()
	writeTable := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	writeTable(jsonstore.FileSimulants, `[{"simulant_id": "S001", "name": "LHS-1"}]`)
	writeTable(jsonstore.FileMinerals, `[
  {"composition_id": "C001", "simulant_id": "S001", "component_type": "mineral", "component_name": "Plagioclase", "value_pct": 45},
  {"composition_id": "C002", "simulant_id": "S001", "component_type": "mineral", "component_name": "Plagioclase", "value_pct": 20},
  {"composition_id": "C003", "simulant_id": "S001", "component_type": "mineral", "component_name": "Olivine", "value_pct": 10}
]`)
	store, err := jsonstore.Open(jsonstore.Config{DataDir: dir}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	rep, err := Reconcile(ctx, store, false, nil)
	require.NoError(t, err)
	require.Len(t, rep.Entities, 1)
	assert.Equal(t, 55.0, rep.Entities[0].TotalAfter)

	minerals, err := store.Components(ctx, "S001", domain.CategoryMineral)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Plagioclase": 45, "Olivine": 10}, minerals)

	groups, err := store.Components(ctx, "S001", domain.CategoryMineralGroup)
	require.NoError(t, err)
	assert.Equal(t, 45.0, groups["Plagioclase Feldspar"])
	assert.Equal(t, 10.0, groups["Olivine"])
}

func TestReconcile_CompositesSharingAMineral(t *testing.T) {
	cat, err := domain.NewCatalogFromNames([]string{"LHS-1"})
	require.NoError(t, err)
	repo := testutil.NewMemRepository(cat.Entities())
	repo.Set("S001", domain.CategoryMineral, "Olivine + pyroxene", "30")
	repo.Set("S001", domain.CategoryMineral, "Olivine + ilmenite", "30")

	rep, err := Reconcile(context.Background(), repo, false, nil)
	require.NoError(t, err)
	require.Len(t, rep.Entities, 1)
	assert.Equal(t, 60.0, rep.Entities[0].TotalAfter)
	assert.Equal(t, map[string]string{"Olivine": "30", "Pyroxene": "15", "Ilmenite": "15"},
		repo.Get("S001", domain.CategoryMineral))
}
