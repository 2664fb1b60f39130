package simulant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		field    string
		category Category
		key      string
		ok       bool
	}{
		{"chemical.SiO2", CategoryChemical, "SiO2", true},
		{"mineral.Olivine", CategoryMineral, "Olivine", true},
		{"group.Pyroxene", CategoryMineralGroup, "Pyroxene", true},
		{"meta.institution", CategoryMetadata, "institution", true},
		{"meta.colour", "", "", false},
		{"info.type", CategoryMetadata, ColumnType, true},
		{"info.series", "", "", false},
		{"physical.density", CategoryMetadata, ColumnBulkDensity, true},
		{"physical.nasa_fom_score", CategoryMetadata, ColumnQualityScore, true},
		{"physical.ph", "", "", false},
		{"SiO2", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			c, k, ok := Route(tt.field)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.key, k)
		})
	}
}

func TestWithUnitAndSameValue(t *testing.T) {
	assert.Equal(t, "1.52 g/cm³", WithUnit(ColumnBulkDensity, "1.52"))
	assert.Equal(t, "1.52 g/cm³", WithUnit(ColumnBulkDensity, "1.52 g/cm³"))
	assert.Equal(t, "38°", WithUnit(ColumnFrictionAngle, "38"))
	assert.Equal(t, "NASA", WithUnit("institution", "NASA"))

	assert.True(t, SameValue("1.52 g/cm³", "1.520"))
	assert.True(t, SameValue(" nasa ", "NASA"))
	assert.False(t, SameValue("1.5 g/cm³", "1.6"))
	assert.False(t, SameValue("Mare", "Highland"))
}
