package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
)

func f64(v float64) *float64 { return &v }

func TestPlanComponents(t *testing.T) {
	existing := []storedComponent{
		{name: "SiO2", value: f64(45.2)},
		{name: "TiO2", value: nil},
		{name: "FeO", value: f64(6.8)},
	}
	plan := planComponents(existing, map[string]string{
		"sio2":  "45.20",
		"TiO2":  "0.5",
		"FeO":   "7.1",
		"MgO":   "7.456",
		"Al2O3": "n/a",
		"CaO":   "120",
	})

	assert.Equal(t, domain.FieldUnchanged, plan.results["sio2"].Status)
	assert.Equal(t, domain.FieldWritten, plan.results["TiO2"].Status)
	assert.Equal(t, domain.FieldConflict, plan.results["FeO"].Status)
	assert.Equal(t, "6.8", plan.results["FeO"].Existing)
	assert.Equal(t, domain.FieldWritten, plan.results["MgO"].Status)
	assert.Equal(t, domain.FieldInvalid, plan.results["Al2O3"].Status)
	assert.Equal(t, domain.FieldInvalid, plan.results["CaO"].Status)

	assert.Equal(t, map[string]float64{"TiO2": 0.5}, plan.fills)
	assert.Equal(t, map[string]float64{"MgO": 7.46}, plan.inserts)
}

func TestPlanComponents_FillUsesStoredName(t *testing.T) {
	plan := planComponents([]storedComponent{{name: "Plagioclase"}}, map[string]string{"plagioclase": "30"})
	assert.Equal(t, map[string]float64{"Plagioclase": 30}, plan.fills)
	assert.Empty(t, plan.inserts)
}

func TestPlanMetadata(t *testing.T) {
	meta := map[string]interface{}{
		"institution":              "CLASS Exolith",
		domain.ColumnBulkDensity:   nil,
		domain.ColumnParticleSize:  "N/A",
		domain.ColumnFrictionAngle: "38°",
	}
	results, changed := planMetadata(meta, map[string]string{
		"institution":              "class exolith",
		domain.ColumnBulkDensity:   "1.56",
		domain.ColumnParticleSize:  "90",
		domain.ColumnQualityScore:  "0.8",
		domain.ColumnFrictionAngle: "41",
		"colour":                   "grey",
	})
	assert.True(t, changed)
	assert.Equal(t, domain.FieldUnchanged, results["institution"].Status)
	assert.Equal(t, domain.FieldWritten, results[domain.ColumnBulkDensity].Status)
	assert.Equal(t, domain.FieldWritten, results[domain.ColumnParticleSize].Status)
	assert.Equal(t, domain.FieldConflict, results[domain.ColumnFrictionAngle].Status)
	assert.Equal(t, domain.FieldInvalid, results["colour"].Status)

	assert.Equal(t, "1.56 g/cm³", meta[domain.ColumnBulkDensity])
	assert.Equal(t, "90 µm", meta[domain.ColumnParticleSize])
	assert.Equal(t, 0.8, meta[domain.ColumnQualityScore])
	assert.Equal(t, "38°", meta[domain.ColumnFrictionAngle])
}

func TestPlanMetadata_NoChange(t *testing.T) {
	_, changed := planMetadata(map[string]interface{}{"notes": "x"}, map[string]string{"notes": "X"})
	assert.False(t, changed)
}

func TestDecodeMetadata(t *testing.T) {
	meta, err := decodeMetadata(nil)
	assert.NoError(t, err)
	assert.Empty(t, meta)

	_, err = decodeMetadata([]byte("{"))
	assert.Error(t, err)
}
