// Package simulant defines the data transfer types produced by the extraction
// engine: per-document ExtractionRecords and per-field AggregatedResults.
package simulant

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Method tags an extraction strategy that contributed to a record.
type Method string

const (
	MethodTablePosition  Method = "table_position"
	MethodMultilineBlock Method = "multiline_block"
	MethodInlineRegex    Method = "inline_regex"
	MethodGroupSection   Method = "mineral_group_section"
	MethodGroupTable     Method = "mineral_group_table"
	MethodPhysical       Method = "physical_properties"
	MethodBasicInfo      Method = "basic_info"
	MethodRawMaterials   Method = "raw_materials"
	MethodLLM            Method = "llm_extraction"
	MethodOCR            Method = "ocr_fallback"
	MethodSpecSheet      Method = "spec_sheet"
	MethodResearchPaper  Method = "research_paper"
)

// Basic info keys.
const (
	InfoType              = "type"
	InfoSeries            = "series"
	InfoReferenceMaterial = "reference_material"
)

// Physical property keys.  Each numeric key has a plausible range enforced
// by the extractor.
const (
	PropDensity            = "density"
	PropDensityMin         = "density_min"
	PropDensityMax         = "density_max"
	PropDensityMean        = "density_mean"
	PropParticleSizeMedian = "particle_size_median"
	PropParticleSizeMean   = "particle_size_mean"
	PropCohesion           = "cohesion"
	PropFrictionAngle      = "friction_angle"
	PropAspectRatio        = "aspect_ratio"
	PropCircularity        = "circularity"
	PropPH                 = "ph"
	PropSpecificGravity    = "specific_gravity"
	PropAngleOfRepose      = "angle_of_repose"
	PropQualityScore       = "nasa_fom_score"

	TextParticleSizeRange      = "particle_size_range"
	TextMagneticSusceptibility = "magnetic_susceptibility"
)

// Metadata keys filled by the LLM extraction collaborator.
const (
	MetaInstitution  = "institution"
	MetaAvailability = "availability"
	MetaReleaseDate  = "release_date"
	MetaTonsProduced = "tons_produced_mt"
	MetaNotes        = "notes"
	MetaType         = "type"
)

// MetadataFields lists the LLM-extracted fields in prompt order.
var MetadataFields = []string{
	MetaInstitution, MetaAvailability, MetaReleaseDate, MetaTonsProduced, MetaNotes, MetaType,
}

// Field name prefixes used by Flatten.
const (
	PrefixChemical = "chemical."
	PrefixMineral  = "mineral."
	PrefixGroup    = "group."
	PrefixPhysical = "physical."
	PrefixInfo     = "info."
	PrefixMeta     = "meta."
)

// ExtractionRecord is the product of extracting one (document, entity) pair.
// Absent keys mean "not reported"; a stored 0 means "measured as zero".
// Records are built by the extractor and not modified afterwards.
type ExtractionRecord struct {
	EntityID         string `json:"entity_id"`
	EntityName       string `json:"entity_name"`
	SourceDocumentID string `json:"source_document_id"`
	SourceFile       string `json:"source_file"`

	BasicInfo          map[string]string  `json:"basic_info,omitempty"`
	RawMaterials       []string           `json:"raw_materials,omitempty"`
	PhysicalProperties map[string]float64 `json:"physical_properties,omitempty"`
	PhysicalText       map[string]string  `json:"physical_text,omitempty"`

	ChemicalComposition map[string]float64 `json:"chemical_composition,omitempty"`
	MineralComposition  map[string]float64 `json:"mineral_composition,omitempty"`
	MineralGroups       map[string]float64 `json:"mineral_groups,omitempty"`

	// Metadata holds LLM-extracted provenance fields (institution, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	ExtractionMethods []Method `json:"extraction_methods,omitempty"`

	// Confidence is the 0-100 score computed by the scoring package when the
	// record is sealed.
	Confidence float64  `json:"confidence"`
	Notes      []string `json:"notes,omitempty"`
}

// NewExtractionRecord returns a record with every map allocated.
func NewExtractionRecord(entityID, entityName, documentID, file string) *ExtractionRecord {
	return &ExtractionRecord{
		EntityID:            entityID,
		EntityName:          entityName,
		SourceDocumentID:    documentID,
		SourceFile:          file,
		BasicInfo:           make(map[string]string),
		PhysicalProperties:  make(map[string]float64),
		PhysicalText:        make(map[string]string),
		ChemicalComposition: make(map[string]float64),
		MineralComposition:  make(map[string]float64),
		MineralGroups:       make(map[string]float64),
		Metadata:            make(map[string]string),
	}
}

// AddMethod appends m once, preserving first-seen order.
func (r *ExtractionRecord) AddMethod(m Method) {
	for _, existing := range r.ExtractionMethods {
		if existing == m {
			return
		}
	}
	r.ExtractionMethods = append(r.ExtractionMethods, m)
}

// HasMethod reports whether m contributed to the record.
func (r *ExtractionRecord) HasMethod(m Method) bool {
	for _, existing := range r.ExtractionMethods {
		if existing == m {
			return true
		}
	}
	return false
}

// AddNote appends a free-text caveat.
func (r *ExtractionRecord) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// QualityScore returns the standardized quality score, if found.
func (r *ExtractionRecord) QualityScore() (float64, bool) {
	v, ok := r.PhysicalProperties[PropQualityScore]
	return v, ok
}

// ChemicalTotal sums the oxide percentages.
func (r *ExtractionRecord) ChemicalTotal() float64 {
	return sumValues(r.ChemicalComposition)
}

// HasData reports whether the record carries anything worth aggregating.
func (r *ExtractionRecord) HasData() bool {
	return len(r.ChemicalComposition) > 0 || len(r.MineralComposition) > 0 ||
		len(r.MineralGroups) > 0 || len(r.BasicInfo) > 0 ||
		len(r.PhysicalProperties) > 0 || len(r.Metadata) > 0
}

// Flatten renders every populated field as a "prefix.key" → string value
// map.  Numbers are rounded to two decimals so that "45.20" and "45.2" vote
// together during aggregation.
func (r *ExtractionRecord) Flatten() map[string]string {
	out := make(map[string]string)
	for k, v := range r.ChemicalComposition {
		out[PrefixChemical+k] = FormatNumber(v)
	}
	for k, v := range r.MineralComposition {
		out[PrefixMineral+k] = FormatNumber(v)
	}
	for k, v := range r.MineralGroups {
		out[PrefixGroup+k] = FormatNumber(v)
	}
	for k, v := range r.PhysicalProperties {
		out[PrefixPhysical+k] = FormatNumber(v)
	}
	for k, v := range r.PhysicalText {
		out[PrefixPhysical+k] = v
	}
	for k, v := range r.BasicInfo {
		out[PrefixInfo+k] = v
	}
	for k, v := range r.Metadata {
		out[PrefixMeta+k] = v
	}
	return out
}

// FormatNumber renders v rounded to two decimals without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SplitField splits a flattened field name into its prefix and key.
func SplitField(field string) (prefix, key string) {
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[:i+1], field[i+1:]
	}
	return "", field
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sumValues(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregation output
// ─────────────────────────────────────────────────────────────────────────────

// Resolution names the path that produced an AggregatedResult.
type Resolution string

const (
	ResolutionVote    Resolution = "vote"
	ResolutionArbiter Resolution = "arbiter"
)

// AggregatedResult is the per-field output of the multi-source aggregator.
// A nil Value means no source reported the field.
type AggregatedResult struct {
	Field        string     `json:"field"`
	Value        *string    `json:"value"`
	Confidence   float64    `json:"confidence"`
	SourcesAgree bool       `json:"sources_agree"`
	NumSources   int        `json:"num_sources"`
	AllValues    []string   `json:"all_values,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Resolution   Resolution `json:"resolution"`
}

// HasValue reports whether the result carries a non-null value.
func (a AggregatedResult) HasValue() bool {
	return a.Value != nil
}

// StringValue returns the value or "" when null.
func (a AggregatedResult) StringValue() string {
	if a.Value == nil {
		return ""
	}
	return *a.Value
}

// Disposition is the auto-fill vs. review decision for one field.
type Disposition string

const (
	DispositionAutoFill Disposition = "auto_fill"
	DispositionReview   Disposition = "review_required"
)

// SourceFields is one source's flattened fields, labelled for arbitration.
type SourceFields struct {
	Source string            `json:"source"`
	Fields map[string]string `json:"fields"`
}

// Verdict is an arbiter's ruling on one field.
type Verdict struct {
	Value        *string `json:"value"`
	Confidence   float64 `json:"confidence"`
	SourcesAgree bool    `json:"sources_agree"`
	Notes        string  `json:"notes,omitempty"`
}
