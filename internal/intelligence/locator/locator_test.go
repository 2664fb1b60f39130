package locator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
)

func newTestLocator(t *testing.T) *Locator {
	t.Helper()
	cat, err := domain.NewCatalogFromNames([]string{"JSC-1", "JSC-1A", "LHS-1", "LMS-1", "EAC-1A"})
	require.NoError(t, err)
	return New(cat, Config{}, nil)
}

func TestClassify(t *testing.T) {
	l := newTestLocator(t)
	tests := []struct {
		name      string
		file      string
		text      string
		mentioned int
		want      bool
		reason    Reason
	}{
		{"tds in filename", "LHS-1_TDS.pdf", "", 3, true, ReasonFilename},
		{"fact sheet filename", "eac_factsheet.pdf", "", 0, true, ReasonFilename},
		{"title phrase", "download.pdf", "Exolith Lab\nTECHNICAL DATA SHEET\n...", 4, true, ReasonTitlePhrase},
		{"single mention", "paper.pdf", "we studied LMS-1", 1, true, ReasonSingleName},
		{"multi entity", "paper.pdf", "JSC-1A and LHS-1 were compared", 2, false, ReasonNone},
		{"phrase beyond scan window", "paper.pdf", strings.Repeat("x", 2100) + " fact sheet", 2, false, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := l.Classify(tt.file, tt.text, tt.mentioned)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestResolveName(t *testing.T) {
	l := newTestLocator(t)
	cat := l.Catalog()
	lhs, _ := cat.Lookup("LHS-1")
	lms, _ := cat.Lookup("LMS-1")

	t.Run("catalog name in filename wins over text", func(t *testing.T) {
		e, name := l.ResolveName("JSC-1A_TDS.pdf", "LHS-1 is mentioned first", nil)
		require.NotNil(t, e)
		assert.Equal(t, "JSC-1A", name)
	})

	t.Run("unknown filename code reported raw", func(t *testing.T) {
		e, name := l.ResolveName("tlh-0_tds.pdf", "no catalog names here", nil)
		assert.Nil(t, e)
		assert.Equal(t, "TLH-0", name)
	})

	t.Run("name in opening text", func(t *testing.T) {
		e, name := l.ResolveName("sheet.pdf", "Lunar Highlands Simulant LHS-1\n...", []*domain.Entity{lhs, lms})
		assert.Equal(t, lhs, e)
		assert.Equal(t, "LHS-1", name)
	})

	t.Run("single mentioned entity", func(t *testing.T) {
		text := strings.Repeat("filler ", 100) + "LMS-1"
		e, _ := l.ResolveName("sheet.pdf", text, []*domain.Entity{lms})
		assert.Equal(t, lms, e)
	})

	t.Run("nothing resolvable", func(t *testing.T) {
		e, name := l.ResolveName("sheet.pdf", "nothing", nil)
		assert.Nil(t, e)
		assert.Empty(t, name)
	})
}

func TestLocate_SpecSheetUsesWholeDocument(t *testing.T) {
	l := newTestLocator(t)
	doc := &normalizer.Document{
		Name:   "LHS-1_TDS.pdf",
		Text:   "LHS-1 Lunar Highlands Simulant\nSiO2 51.2\nCompare with JSC-1A.",
		Tables: []normalizer.Table{{{"SiO2", "TiO2"}, {"51.2", "0.6"}}},
	}
	res := l.Locate(doc)

	assert.Equal(t, KindSpecSheet, res.Kind)
	assert.Equal(t, ReasonFilename, res.Reason)
	require.Len(t, res.Targets, 1)
	tgt := res.Targets[0]
	assert.True(t, tgt.WholeDocument)
	assert.Equal(t, "LHS-1", tgt.Name)
	assert.Equal(t, doc.Text, tgt.Text)
	assert.Len(t, tgt.Tables, 1)
	assert.Empty(t, res.Unmatched)
}

func TestLocate_UnmatchedSpecSheetName(t *testing.T) {
	l := newTestLocator(t)
	res := l.Locate(&normalizer.Document{Name: "TLH-0_TDS.pdf", Text: "Toxic lunar highlands"})
	require.Len(t, res.Targets, 1)
	assert.Nil(t, res.Targets[0].Entity)
	assert.Equal(t, "", res.Targets[0].EntityID())
	assert.Equal(t, []string{"TLH-0"}, res.Unmatched)
}

func TestLocate_MultiEntityWindows(t *testing.T) {
	l := newTestLocator(t)
	gap := " " + strings.Repeat("z", 5000) + " "
	text := "JSC-1A SiO2 46.7" + gap + "LHS-1 SiO2 51.2" + gap + "trailing LMS-1"
	tables := []normalizer.Table{
		{{"Simulant", "SiO2"}, {"JSC-1A", "46.7"}},
		{{"Simulant", "SiO2"}, {"LHS-1", "51.2"}},
	}
	res := l.Locate(&normalizer.Document{Name: "review.pdf", Text: text, Tables: tables})

	assert.Equal(t, KindMultiEntity, res.Kind)
	require.Len(t, res.Targets, 3)
	assert.Equal(t, []string{"S002", "S003", "S004"}, res.IDs())

	var jsc Target
	for _, tg := range res.Targets {
		if tg.Name == "JSC-1A" {
			jsc = tg
		}
	}
	assert.False(t, jsc.WholeDocument)
	assert.Contains(t, jsc.Text, "SiO2 46.7")
	assert.NotContains(t, jsc.Text, "51.2")
	assert.Len(t, jsc.Text, len("JSC-1A")+1500)
	assert.Len(t, jsc.CompositionText, len("JSC-1A")+2000)
	require.Len(t, jsc.Tables, 1)
	assert.Equal(t, "46.7", jsc.Tables[0][1][1])
}

func TestLocate_NoEntities(t *testing.T) {
	l := newTestLocator(t)
	res := l.Locate(&normalizer.Document{Name: "paper.pdf", Text: "regolith in general"})
	assert.Equal(t, KindMultiEntity, res.Kind)
	assert.Empty(t, res.Targets)
}

func TestWindow(t *testing.T) {
	text := "0123456789abcdefghij"
	got := Window(text, [][]int{{2, 4}, {15, 16}}, 2)
	assert.Equal(t, "012345\ndefgh", got)

	// multibyte boundaries are respected
	text = "µµµXµµµ"
	got = Window(text, [][]int{{6, 7}}, 3)
	assert.Equal(t, "µXµ", got)
}
