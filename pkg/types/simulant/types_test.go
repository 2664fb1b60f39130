package simulant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionRecord_Methods(t *testing.T) {
	r := NewExtractionRecord("S001", "LHS-1", "doc-1", "LHS-1_TDS.pdf")
	assert.False(t, r.HasData())

	r.AddMethod(MethodTablePosition)
	r.AddMethod(MethodInlineRegex)
	r.AddMethod(MethodTablePosition)
	assert.Equal(t, []Method{MethodTablePosition, MethodInlineRegex}, r.ExtractionMethods)
	assert.True(t, r.HasMethod(MethodInlineRegex))
	assert.False(t, r.HasMethod(MethodLLM))

	_, ok := r.QualityScore()
	assert.False(t, ok)
	r.PhysicalProperties[PropQualityScore] = 82
	score, ok := r.QualityScore()
	require.True(t, ok)
	assert.Equal(t, 82.0, score)
	assert.True(t, r.HasData())
}

func TestExtractionRecord_Flatten(t *testing.T) {
	r := NewExtractionRecord("S001", "LHS-1", "doc-1", "a.pdf")
	r.ChemicalComposition["SiO2"] = 45.20
	r.ChemicalComposition["FeO"] = 6.8049
	r.MineralComposition["Anorthite"] = 74.4
	r.MineralGroups["Glass"] = 0
	r.PhysicalText[TextParticleSizeRange] = "0.04 - 400 µm"
	r.BasicInfo[InfoType] = "Highlands"
	r.Metadata[MetaInstitution] = "Exolith Lab"

	assert.Equal(t, map[string]string{
		"chemical.SiO2":                "45.2",
		"chemical.FeO":                 "6.8",
		"mineral.Anorthite":            "74.4",
		"group.Glass":                  "0",
		"physical.particle_size_range": "0.04 - 400 µm",
		"info.type":                    "Highlands",
		"meta.institution":             "Exolith Lab",
	}, r.Flatten())
	assert.InDelta(t, 52.0049, r.ChemicalTotal(), 1e-9)
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		45.2:    "45.2",
		0.005:   "0.01",
		100:     "100",
		-1.2345: "-1.23",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in), "%v", in)
	}
}

func TestSplitField(t *testing.T) {
	p, k := SplitField("chemical.Al2O3")
	assert.Equal(t, PrefixChemical, p)
	assert.Equal(t, "Al2O3", k)

	p, k = SplitField("density")
	assert.Empty(t, p)
	assert.Equal(t, "density", k)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"Al2O3", "FeO", "SiO2"}, SortedKeys(map[string]float64{"SiO2": 1, "FeO": 2, "Al2O3": 3}))
	assert.Empty(t, SortedKeys(map[string]int{}))
}

func TestAggregatedResult_Value(t *testing.T) {
	var a AggregatedResult
	assert.False(t, a.HasValue())
	assert.Equal(t, "", a.StringValue())

	v := "45.2"
	a.Value = &v
	assert.True(t, a.HasValue())
	assert.Equal(t, "45.2", a.StringValue())
}
