package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

func record(name string) *simulant.ExtractionRecord {
	return simulant.NewExtractionRecord("S001", name, "doc", "doc.pdf")
}

func TestScore_SpecSheetWithoutTotalBonus(t *testing.T) {
	rec := record("LHS-1")
	for k, v := range map[string]float64{"SiO2": 45.2, "TiO2": 0.5, "Al2O3": 24.0, "FeO": 6.8, "MgO": 7.5} {
		rec.ChemicalComposition[k] = v
	}
	assert.InDelta(t, 84.0, rec.ChemicalTotal(), 1e-9)
	assert.Equal(t, 45.0, Default().Score(rec))
}

func TestScore_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		oxides   int
		minerals int
		want     float64
	}{
		{"nothing", 0, 0, 0},
		{"one oxide", 1, 0, 5},
		{"three oxides", 3, 0, 15},
		{"five oxides", 5, 0, 25},
		{"one mineral", 0, 1, 5},
		{"four minerals", 0, 4, 12},
		{"six minerals", 0, 6, 20},
	}
	names := []string{"A", "B", "C", "D", "E", "F"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("")
			for i := 0; i < tt.oxides; i++ {
				rec.ChemicalComposition[names[i]] = 1
			}
			for i := 0; i < tt.minerals; i++ {
				rec.MineralComposition[names[i]] = 1
			}
			assert.Equal(t, tt.want, Default().Score(rec))
		})
	}
}

func TestScore_FullRecordIsCapped(t *testing.T) {
	rec := record("JSC-1A")
	rec.BasicInfo[simulant.InfoType] = "Mare"
	for k, v := range map[string]float64{"SiO2": 47, "TiO2": 1.5, "Al2O3": 15, "FeO": 12, "MgO": 9, "CaO": 10} {
		rec.ChemicalComposition[k] = v
	}
	for k, v := range map[string]float64{"Plagioclase": 40, "Pyroxene": 30, "Olivine": 10, "Ilmenite": 5, "Glass": 15} {
		rec.MineralComposition[k] = v
	}
	rec.PhysicalProperties[simulant.PropDensityMean] = 1.7
	rec.PhysicalProperties[simulant.PropParticleSizeMedian] = 90
	rec.PhysicalProperties[simulant.PropQualityScore] = 80
	rec.PhysicalProperties[simulant.PropCohesion] = 1.2

	assert.InDelta(t, 94.5, rec.ChemicalTotal(), 1e-9)
	assert.Equal(t, 100.0, Default().Score(rec))

	w := DefaultWeights()
	w.Name = 90
	assert.Equal(t, 100.0, New(w).Score(rec))
}

func TestScore_ShortNameNotCounted(t *testing.T) {
	assert.Equal(t, 0.0, Default().Score(record("AB")))
	assert.Equal(t, 20.0, Default().Score(record("ABC")))
}

func TestSeal(t *testing.T) {
	rec := record("LHS-1")
	rec.PhysicalProperties[simulant.PropDensity] = 1.6
	assert.Equal(t, 25.0, Default().Seal(rec))
	assert.Equal(t, 25.0, rec.Confidence)
	assert.Zero(t, Default().Score(nil))
}
