package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_ParentChild(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]float64
		want map[string]float64
	}{
		{"children win", map[string]float64{"Plagioclase": 45, "Anorthite": 40}, map[string]float64{"Anorthite": 40}},
		{"parent wins", map[string]float64{"Plagioclase": 45, "Anorthite": 10}, map[string]float64{"Plagioclase": 45}},
		{"pyroxene children summed", map[string]float64{"Pyroxene": 30, "Augite": 12, "Bronzite": 10}, map[string]float64{"Augite": 12, "Bronzite": 10}},
		{"feldspar over plagioclase", map[string]float64{"Feldspar": 60, "Plagioclase": 20}, map[string]float64{"Feldspar": 60}},
		{"no overlap untouched", map[string]float64{"Olivine": 10, "Ilmenite": 5}, map[string]float64{"Olivine": 10, "Ilmenite": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.in).Minerals)
		})
	}
}

func TestReconcile_FlagsPlausibleDecomposition(t *testing.T) {
	res := Reconcile(map[string]float64{"Plagioclase": 45, "Anorthite": 40})
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "Plagioclase (45) with Anorthite (40) sums to 85%")
	assert.Equal(t, []string{"Plagioclase"}, res.Dropped)
}

func TestReconcile_CompositeSplit(t *testing.T) {
	res := Reconcile(map[string]float64{"Olivine + pyroxene + ilmenite": 30})
	assert.Equal(t, map[string]float64{"Olivine": 10, "Pyroxene": 10, "Ilmenite": 10}, res.Minerals)

	t.Run("unrecognised constituents skipped", func(t *testing.T) {
		res := Reconcile(map[string]float64{"Olivine + mystery": 20})
		assert.Equal(t, map[string]float64{"Olivine": 20}, res.Minerals)
	})

	t.Run("shared constituents add up", func(t *testing.T) {
		res := Reconcile(map[string]float64{"Olivine + pyroxene": 30, "Olivine + ilmenite": 30})
		assert.Equal(t, map[string]float64{"Olivine": 30, "Pyroxene": 15, "Ilmenite": 15}, res.Minerals)
		assert.Equal(t, 60.0, res.Total())
	})

	t.Run("share adds to itemised mineral", func(t *testing.T) {
		res := Reconcile(map[string]float64{"Olivine": 8, "Olivine + pyroxene": 20})
		assert.Equal(t, map[string]float64{"Olivine": 18, "Pyroxene": 10}, res.Minerals)
	})

	t.Run("nothing recognised keeps entry", func(t *testing.T) {
		res := Reconcile(map[string]float64{"foo + bar": 20})
		assert.Equal(t, map[string]float64{"foo + bar": 20}, res.Minerals)
	})
}

func TestReconcile_Synonyms(t *testing.T) {
	res := Reconcile(map[string]float64{"Anorthosite": 30, "Volcanic Glass": 12, "plagioclase": 25})
	assert.Equal(t, map[string]float64{"Plagioclase": 30, "Glass": 12}, res.Minerals)
}

func TestReconcile_RockTypes(t *testing.T) {
	t.Run("dropped when minerals itemised", func(t *testing.T) {
		res := Reconcile(map[string]float64{"Basalt": 50, "Plagioclase": 20, "Olivine": 15})
		assert.NotContains(t, res.Minerals, "Basalt")
		assert.Len(t, res.Minerals, 2)
	})
	t.Run("kept when minerals sparse", func(t *testing.T) {
		res := Reconcile(map[string]float64{"Basalt": 80, "Olivine": 10})
		assert.Equal(t, map[string]float64{"Basalt": 80, "Olivine": 10}, res.Minerals)
	})
}

func TestReconcile_Ceiling(t *testing.T) {
	in := map[string]float64{
		"Plagioclase": 60, "Pyroxene": 50, "Olivine": 40,
		"Ilmenite": 25, "Glass": 15, "Quartz": 10,
	}
	res := Reconcile(in)
	assert.Equal(t, map[string]float64{"Plagioclase": 60, "Olivine": 40}, res.Minerals)
	assert.LessOrEqual(t, res.Total(), 105.0)
	assert.ElementsMatch(t, []string{"Pyroxene", "Ilmenite", "Glass", "Quartz"}, res.Dropped)
}

func TestReconcile_Idempotent(t *testing.T) {
	inputs := []map[string]float64{
		{"Plagioclase": 45, "Anorthite": 40, "Basalt": 20, "Olivine + pyroxene": 10},
		{"Feldspar": 100, "Plagioclase": 45, "Anorthite": 10, "Augite": 30},
		{"Plagioclase": 60, "Pyroxene": 50, "Olivine": 40, "Ilmenite": 25, "Glass": 15, "Quartz": 10},
		{"Norite": 40, "Glass": 90},
		{"mystery + thing": 12, "Anorthosite": 70, "Volcanic Glass": 50},
	}
	for _, in := range inputs {
		once := Reconcile(in)
		twice := Reconcile(once.Minerals)
		assert.Equal(t, once.Minerals, twice.Minerals, "input %v", in)
		assert.Empty(t, twice.Dropped)
	}
}

func TestReconcile_NeverFabricates(t *testing.T) {
	in := map[string]float64{"Plagioclase": 45, "Augite": 20, "Basalt": 10}
	for name, v := range Reconcile(in).Minerals {
		assert.Contains(t, in, name)
		assert.Equal(t, in[name], v)
	}
}

func TestMineralGroups(t *testing.T) {
	t.Run("computed from minerals", func(t *testing.T) {
		got := MineralGroups(map[string]float64{
			"Anorthite": 40.123, "Albite": 5, "Augite": 20, "Enstatite": 4,
			"Forsterite": 7, "Ilmenite": 3, "Agglutinate": 11, "Quartz": 2,
		}, nil)
		assert.Equal(t, map[string]float64{
			GroupPlagioclase: 45.12, GroupPyroxene: 24, GroupOlivine: 7, GroupIlmenite: 3, GroupGlass: 11,
		}, got)
	})
	t.Run("extracted groups filled", func(t *testing.T) {
		got := MineralGroups(map[string]float64{"Augite": 50}, map[string]float64{GroupPyroxene: 33.333, GroupGlass: 10})
		assert.Equal(t, map[string]float64{
			GroupPlagioclase: 0, GroupPyroxene: 33.33, GroupOlivine: 0, GroupIlmenite: 0, GroupGlass: 10,
		}, got)
	})
	t.Run("empty input yields zeros", func(t *testing.T) {
		got := MineralGroups(nil, nil)
		assert.Len(t, got, 5)
		for _, v := range got {
			assert.Zero(t, v)
		}
	})
}

func TestCanonicalAndGroupOf(t *testing.T) {
	assert.Equal(t, "K-feldspar", Canonical("k-FELDSPAR"))
	assert.Equal(t, "Volcanic Glass", Canonical("volcanic   glass"))
	assert.Equal(t, "Olivine Rich Basalt", Canonical("olivine  RICH basalt"))

	g, ok := GroupOf("hypersthene")
	assert.True(t, ok)
	assert.Equal(t, GroupPyroxene, g)
	_, ok = GroupOf("Quartz")
	assert.False(t, ok)
}
