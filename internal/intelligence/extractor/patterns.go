package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// category is one canonical component together with its textual synonyms,
// tried in order.
type category struct {
	Name     string
	Patterns []string

	// label matches any synonym; used to find headers in table rows.
	label *regexp.Regexp
	// inline holds one "<synonym> value" matcher per synonym.
	inline []*regexp.Regexp
}

func newCategories(valueSuffix string, defs ...category) []category {
	for i := range defs {
		d := &defs[i]
		d.label = regexp.MustCompile(`(?i)` + alternation(d.Patterns))
		for _, p := range d.Patterns {
			d.inline = append(d.inline, regexp.MustCompile(`(?i)`+p+valueSuffix))
		}
	}
	return defs
}

func alternation(patterns []string) string {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = `(?:` + p + `)`
	}
	return strings.Join(parts, "|")
}

const (
	oxideValueSuffix   = `[:\s]*(\d+\.?\d*)\s*(?:%|wt\.?%?)?`
	mineralValueSuffix = `[:\s]*(\d+\.?\d*)\s*%?`
)

// oxideCategories lists oxides in reporting order.  Subscripts may have been
// split onto their own line by PDF decoding, hence the [\s\n]* gaps.
var oxideCategories = newCategories(oxideValueSuffix,
	category{Name: "SiO2", Patterns: []string{`SiO[\s\n]*2`, `SiO2`, `Silicon\s*Dioxide`}},
	category{Name: "TiO2", Patterns: []string{`TiO[\s\n]*2`, `TiO2`, `Titanium\s*Dioxide`}},
	category{Name: "Al2O3", Patterns: []string{`Al[\s\n]*2[\s\n]*O[\s\n]*3`, `Al2O3`, `Aluminum\s*Oxide`, `Alumina`}},
	category{Name: "Fe2O3", Patterns: []string{`Fe[\s\n]*2[\s\n]*O[\s\n]*3`, `Fe2O3`, `Ferric\s*Oxide`}},
	category{Name: "FeO", Patterns: []string{`FeO\b`, `Ferrous\s*Oxide`}},
	category{Name: "MgO", Patterns: []string{`MgO`, `Magnesium\s*Oxide`, `Magnesia`}},
	category{Name: "CaO", Patterns: []string{`CaO`, `Calcium\s*Oxide`}},
	category{Name: "Na2O", Patterns: []string{`Na[\s\n]*2[\s\n]*O`, `Na2O`, `Sodium\s*Oxide`}},
	category{Name: "K2O", Patterns: []string{`K[\s\n]*2[\s\n]*O`, `K2O`, `Potassium\s*Oxide`}},
	category{Name: "P2O5", Patterns: []string{`P[\s\n]*2[\s\n]*O[\s\n]*5`, `P2O5`}},
	category{Name: "MnO", Patterns: []string{`MnO`, `Manganese\s*Oxide`}},
	category{Name: "Cr2O3", Patterns: []string{`Cr[\s\n]*2[\s\n]*O[\s\n]*3`, `Cr2O3`, `Chromium\s*Oxide`}},
	category{Name: "NiO", Patterns: []string{`NiO`, `Nickel\s*Oxide`}},
	category{Name: "ZnO", Patterns: []string{`ZnO`, `Zinc\s*Oxide`}},
	category{Name: "SrO", Patterns: []string{`SrO`, `Strontium\s*Oxide`}},
	category{Name: "BaO", Patterns: []string{`BaO`, `Barium\s*Oxide`}},
	category{Name: "SO3", Patterns: []string{`SO[\s\n]*3`, `SO3`}},
	category{Name: "LOI", Patterns: []string{`LOI`, `Loss\s*on\s*Ignition`}},
)

// mineralCategories lists minerals, rock types and phases in search order.
var mineralCategories = newCategories(mineralValueSuffix,
	category{Name: "Plagioclase", Patterns: []string{`plagioclase`, `plag\.?`}},
	category{Name: "Anorthite", Patterns: []string{`anorthite`}},
	category{Name: "Anorthosite", Patterns: []string{`anorthosite`}},
	category{Name: "Pyroxene", Patterns: []string{`pyroxene`, `pyx\.?`}},
	category{Name: "Augite", Patterns: []string{`augite`}},
	category{Name: "Bronzite", Patterns: []string{`bronzite`}},
	category{Name: "Enstatite", Patterns: []string{`enstatite`}},
	category{Name: "Clinopyroxene", Patterns: []string{`clinopyroxene`, `\bcpx\b`}},
	category{Name: "Orthopyroxene", Patterns: []string{`orthopyroxene`, `\bopx\b`}},
	category{Name: "Olivine", Patterns: []string{`olivine`, `oliv\.?`}},
	category{Name: "Forsterite", Patterns: []string{`forsterite`, `fosterite`}},
	category{Name: "Fayalite", Patterns: []string{`fayalite`}},
	category{Name: "Ilmenite", Patterns: []string{`ilmenite`, `ilm\.?`}},
	category{Name: "Glass", Patterns: []string{`\bglass\b`, `glass-rich`, `amorphous`}},
	category{Name: "Basalt", Patterns: []string{`basalt`}},
	category{Name: "Quartz", Patterns: []string{`quartz`}},
	category{Name: "Feldspar", Patterns: []string{`feldspar`}},
	category{Name: "Magnetite", Patterns: []string{`magnetite`}},
	category{Name: "Hematite", Patterns: []string{`hematite`}},
	category{Name: "Hornblende", Patterns: []string{`hornblende`}},
	category{Name: "Analcime", Patterns: []string{`analcime`}},
	category{Name: "Smectite", Patterns: []string{`smectite`}},
	category{Name: "Illite", Patterns: []string{`illite`}},
	category{Name: "Lizardite", Patterns: []string{`lizardite`}},
	category{Name: "Serpentine", Patterns: []string{`serpentine`}},
	category{Name: "Agglutinate", Patterns: []string{`agglutinate`}},
	category{Name: "Spinel", Patterns: []string{`spinel`}},
	category{Name: "Chromite", Patterns: []string{`chromite`}},
	category{Name: "Apatite", Patterns: []string{`apatite`}},
	category{Name: "Norite", Patterns: []string{`norite`}},
	category{Name: "Troctolite", Patterns: []string{`troctolite`}},
)

// ─────────────────────────────────────────────────────────────────────────────
// Multi-line block headers
// ─────────────────────────────────────────────────────────────────────────────

// oxideShortHeaders are the subscript-free header stems a PDF leaves on the
// header line when subscripts drop to the next line.  Matched case-sensitively.
var oxideShortHeaders = []struct{ Short, Oxide string }{
	{"SiO", "SiO2"}, {"TiO", "TiO2"}, {"Al", "Al2O3"}, {"Fe", "Fe2O3"},
	{"MgO", "MgO"}, {"CaO", "CaO"}, {"Na", "Na2O"}, {"K", "K2O"},
	{"SrO", "SrO"}, {"MnO", "MnO"}, {"Cr", "Cr2O3"}, {"NiO", "NiO"},
	{"ZnO", "ZnO"}, {"P", "P2O5"}, {"BaO", "BaO"},
}

// tableOxideTokens flag a table row as an oxide header.
var tableOxideTokens = []string{"SiO", "TiO", "Al2O", "Al O", "FeO", "MgO", "CaO"}

// groupHeaders are the five coarse groups in the order a group table lists
// them, keyed by the lowercase header keyword.
var groupHeaders = []struct{ Keyword, Group string }{
	{"pyroxene", "Pyroxene"},
	{"plagioclase", "Plagioclase Feldspar"},
	{"olivine", "Olivine"},
	{"ilmenite", "Ilmenite"},
	{"glass", "Glass"},
}

// detailedHeaders mark a header line as a detailed-mineral table.
var detailedHeaders = []string{
	"anorthite", "augite", "forsterite", "fosterite", "lizardite", "analcime",
	"smectite", "illite", "quartz", "hornblende", "amorphous", "enstatite",
}

// detailedHeaderMinerals maps a header keyword to the mineral it reports.
var detailedHeaderMinerals = []struct{ Keyword, Mineral string }{
	{"anorthite", "Anorthite"},
	{"augite", "Augite"},
	{"enstatite", "Enstatite"},
	{"fosterite", "Forsterite"},
	{"forsterite", "Forsterite"},
	{"lizardite", "Lizardite"},
	{"analcime", "Analcime"},
	{"smectite", "Smectite"},
	{"illite", "Illite"},
	{"quartz", "Quartz"},
	{"hornblende", "Hornblende"},
	{"amorphous", "Glass"},
	{"glass", "Glass"},
	{"pyroxene", "Pyroxene"},
	{"plagioclase", "Plagioclase"},
	{"feldspar", "Feldspar"},
	{"olivine", "Olivine"},
	{"ilmenite", "Ilmenite"},
}

// ─────────────────────────────────────────────────────────────────────────────
// Physical properties
// ─────────────────────────────────────────────────────────────────────────────

// numericRule extracts one physical property.  Patterns are tried in order;
// for each, the first match that passes Reject (if set) and lies in
// [Min, Max] is taken.
type numericRule struct {
	Key      string
	Patterns []*regexp.Regexp
	Min, Max float64
	Reject   func(text string, loc []int) bool
}

func mustAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// precededByStatistic rejects "Mean Density 1.5 g/cm" when looking for the
// bulk density.
func precededByStatistic(text string, loc []int) bool {
	before := strings.ToLower(strings.TrimRight(text[:loc[0]], " \t\n"))
	for _, w := range []string{"minimum", "maximum", "mean"} {
		if strings.HasSuffix(before, w) {
			return true
		}
	}
	return false
}

// physicalRules are applied in order; density statistics come before the
// generic density so "Mean Density" is never read as the bulk value.
var physicalRules = []numericRule{
	{Key: simulant.PropDensityMin, Min: 0.5, Max: 5, Patterns: mustAll(`Minimum\s+Density[:\s]*(\d+\.?\d*)\s*g/cm`)},
	{Key: simulant.PropDensityMax, Min: 0.5, Max: 5, Patterns: mustAll(`Maximum\s+Density[:\s]*(\d+\.?\d*)\s*g/cm`)},
	{Key: simulant.PropDensityMean, Min: 0.5, Max: 5, Patterns: mustAll(`Mean\s+Density[:\s]*(\d+\.?\d*)\s*g/cm`)},
	{
		Key: simulant.PropDensity, Min: 0.5, Max: 5,
		Patterns: mustAll(
			`(?:Bulk|Uncompressed)\s+Density[:\s]*(\d+\.?\d*)\s*g/cm`,
			`Density[:\s]*(\d+\.?\d*)\s*g/cm`,
			`(\d+\.?\d*)\s*g/cm[³3]?\s*(?:bulk|density)`,
		),
		Reject: precededByStatistic,
	},
	{
		Key: simulant.PropParticleSizeMedian, Min: 0.1, Max: 10000,
		Patterns: mustAll(
			`Median\s+Particle\s+Size[:\s]*(\d+\.?\d*)\s*[µμu]m`,
			`Median[:\s]*(\d+\.?\d*)\s*[µμ]m`,
			`D50[:\s=]*(\d+\.?\d*)\s*[µμu]m`,
			`(\d+\.?\d*)\s*[µμu]m\s*(?:median|D50)`,
		),
	},
	{Key: simulant.PropParticleSizeMean, Min: 0.1, Max: 10000, Patterns: mustAll(`Mean[:\s]*(\d+\.?\d*)\s*[µμ]m`)},
	{Key: simulant.PropAspectRatio, Min: 0, Max: 10, Patterns: mustAll(`Aspect\s+ratio[:\s]*(\d+\.?\d*)`)},
	{Key: simulant.PropCircularity, Min: 0, Max: 1, Patterns: mustAll(`Circularity[:\s]*(\d+\.?\d*)`)},
	{Key: simulant.PropCohesion, Min: 0, Max: 1000, Patterns: mustAll(`Cohesion[^:\n]*?[:\s]*(\d+\.?\d*)\s*kPa`)},
	{
		Key: simulant.PropFrictionAngle, Min: 0, Max: 90,
		Patterns: mustAll(
			`(?:Internal\s+)?Angle\s+of\s+(?:Internal\s+)?Friction[^:\n]*?[:\s]*(\d+\.?\d*)`,
			`Friction\s+Angle[:\s]*(\d+\.?\d*)`,
			`(?:Internal\s+)?Friction[:\s]*(\d+\.?\d*)[°\s]`,
		),
	},
	{Key: simulant.PropAngleOfRepose, Min: 0, Max: 90, Patterns: mustAll(`Angle\s+of\s+Repose[^:\n]*?[:\s]*(\d+\.?\d*)`)},
	{Key: simulant.PropPH, Min: 0, Max: 14, Patterns: mustAll(`\bpH\b[:\s]*(\d+\.?\d*)`)},
	{Key: simulant.PropSpecificGravity, Min: 1, Max: 5, Patterns: mustAll(`Specific\s+Gravity[:\s]*(\d+\.?\d*)`)},
}

var (
	particleRangePattern = regexp.MustCompile(`(?i)Range[:\s]*(\d+\.?\d*\s*-\s*\d+\.?\d*)\s*[µμ]m`)
	magneticPattern      = regexp.MustCompile(`(?i)[χꭓ]\s*[=:]\s*([0-9.]+\s*x?\s*10[^m]*m[³3]/kg)`)
)

// ─────────────────────────────────────────────────────────────────────────────
// Basic info
// ─────────────────────────────────────────────────────────────────────────────

var (
	typePatterns = mustAll(
		`\b(?:Simulant\s+)?Type\b[:\s]+([A-Za-z]+(?:[-\t ][A-Za-z]+)*)`,
		`\b((?:Low-Ti\s+)?(?:High-Ti\s+)?(?:Lunar\s+)?(?:Mare|Highland|Maria))`,
		`\b(Mare|Highland)\s+(?:Simulant|Type)`,
	)
	referenceMaterialPattern = regexp.MustCompile(`(?i)Reference\s+Material[:\s]+([^\n]+)`)
	seriesPattern            = regexp.MustCompile(`(?i)\bSeries[:\s]+([^\n]+)`)
	qualityScorePatterns     = mustAll(
		`(?:Mean\s+)?(?:NASA\s+)?\bFoM\s*(?:Score)?[:\s]*(\d+\.?\d*)\s*%?`,
		`Figures?\s+of\s+Merit[:\s]*(\d+\.?\d*)`,
	)
	rawMaterialsPattern = regexp.MustCompile(`(?i)Composition[:\s]*\n((?:[•❖*-]\s*[A-Za-z\s]+\n?)+)`)
	bulletPrefix        = regexp.MustCompile(`^[•❖*-]\s*`)
)

// rawMaterialStopWords drop marketing lines that follow a Composition
// heading but are not materials.
var rawMaterialStopWords = []string{
	"mean", "nasa", "fom", "score", "european", "sourced", "manufactured",
	"uses", "type", "series", "overview", "high-fidelity", "general",
}

// ─────────────────────────────────────────────────────────────────────────────
// Numbers
// ─────────────────────────────────────────────────────────────────────────────

var (
	blockValuePattern = regexp.MustCompile(`\d+\.?\d+`)
	numberPattern     = regexp.MustCompile(`(\d+\.?\d*)\*?`)
)

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func inPercentRange(v float64) bool { return v >= 0 && v <= 100 }

// numericToken parses a table cell such as "46.7*" or "12%".
func numericToken(s string) (float64, bool) {
	s = strings.TrimSpace(strings.NewReplacer("*", "", "%", "").Replace(s))
	if s == "" {
		return 0, false
	}
	return parseFloat(s)
}
