package simulant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

func TestNewEntity_Validation(t *testing.T) {
	_, err := NewEntity("", "LHS-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCatalogInvalid))

	_, err = NewEntity("S001", "  ")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCatalogInvalid))
}

func TestEntity_Variants(t *testing.T) {
	e, err := NewEntity("S001", "NU-LHT-2M", "NU LHT 2M")
	require.NoError(t, err)
	assert.Equal(t, []string{"NU-LHT-2M", "NU LHT 2M", "NULHT2M"}, e.Variants())
}

func TestEntity_MentionedIn_WordBoundary(t *testing.T) {
	e, err := NewEntity("S001", "LHS-1")
	require.NoError(t, err)

	tests := []struct {
		text string
		want bool
	}{
		{"The LHS-1 simulant was used.", true},
		{"the lhs-1 simulant", true},
		{"LHS 1 and friends", true},
		{"LHS1 was sieved", true},
		{"LHS-1D is the dust variant", false},
		{"XLHS-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, e.MentionedIn(tt.text))
		})
	}
}

func TestEntity_Mentions(t *testing.T) {
	e, err := NewEntity("S001", "JSC-1A")
	require.NoError(t, err)
	text := "JSC-1A was compared to jsc-1a in Table 2."
	assert.Equal(t, [][]int{{0, 6}, {23, 29}}, e.Mentions(text))
}

func TestNewCatalog_DuplicateID(t *testing.T) {
	a, _ := NewEntity("S001", "LHS-1")
	b, _ := NewEntity("S001", "LMS-1")
	_, err := NewCatalog([]*Entity{a, b})
	assert.True(t, errors.IsCode(err, errors.ErrCodeCatalogInvalid))
}

func TestCatalog_Lookup(t *testing.T) {
	c, err := NewCatalogFromNames([]string{"LHS-1", "LHS-1D", "JSC-1A"})
	require.NoError(t, err)

	e, ok := c.Lookup("lhs-1d")
	require.True(t, ok)
	assert.Equal(t, "LHS-1D", e.Name)

	e, ok = c.Lookup("LHS-1D TDS")
	require.True(t, ok)
	assert.Equal(t, "LHS-1D", e.Name)

	_, ok = c.Lookup("LMS-1")
	assert.False(t, ok)

	_, ok = c.Lookup("")
	assert.False(t, ok)
}

func TestCatalog_GetAndMentioned(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, len(KnownSimulants), c.Len())

	first := c.Entities()[0]
	got, err := c.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = c.Get("S999")
	assert.True(t, errors.IsNotFound(err))

	names := func(es []*Entity) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.Name
		}
		return out
	}
	assert.Equal(t, []string{"JSC-1A", "LMS-1"}, names(c.Mentioned("We compare LMS-1 and JSC-1A.")))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Mineral_Group ")
	require.NoError(t, err)
	assert.Equal(t, CategoryMineralGroup, c)
	assert.True(t, c.IsComposition())
	assert.False(t, CategoryMetadata.IsComposition())

	_, err = ParseCategory("oxides")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCategoryInvalid))
}

func TestIsEmptyValue(t *testing.T) {
	for _, v := range []string{"", " ", "null", "None"} {
		assert.True(t, IsEmptyValue(v), v)
	}
	assert.False(t, IsEmptyValue("0"))
}
