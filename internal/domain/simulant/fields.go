package simulant

import (
	"strconv"
	"strings"

	types "github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Simulant table columns written through CategoryMetadata.
const (
	ColumnType          = "type"
	ColumnQualityScore  = "nasa_fom_score"
	ColumnBulkDensity   = "bulk_density"
	ColumnParticleSize  = "particle_size_d50"
	ColumnCohesion      = "cohesion"
	ColumnFrictionAngle = "friction_angle"
)

// MetadataColumns lists every column accepted for CategoryMetadata.
var MetadataColumns = []string{
	ColumnType, ColumnQualityScore, ColumnBulkDensity, ColumnParticleSize, ColumnCohesion, ColumnFrictionAngle,
	types.MetaInstitution, types.MetaAvailability, types.MetaReleaseDate, types.MetaTonsProduced, types.MetaNotes,
}

// ColumnUnits are appended to numeric values when a column is stored.
var ColumnUnits = map[string]string{
	ColumnBulkDensity:   " g/cm³",
	ColumnParticleSize:  " µm",
	ColumnCohesion:      " kPa",
	ColumnFrictionAngle: "°",
}

var physicalColumns = map[string]string{
	types.PropQualityScore:       ColumnQualityScore,
	types.PropDensity:            ColumnBulkDensity,
	types.PropParticleSizeMedian: ColumnParticleSize,
	types.PropCohesion:           ColumnCohesion,
	types.PropFrictionAngle:      ColumnFrictionAngle,
}

// IsMetadataColumn reports whether column is a simulant table column.
func IsMetadataColumn(column string) bool {
	for _, c := range MetadataColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Route maps an aggregated field ("chemical.SiO2", "physical.density", ...)
// to the category and key it is persisted under.  ok is false for fields
// the record store has no place for.
func Route(field string) (category Category, key string, ok bool) {
	prefix, key := types.SplitField(field)
	if key == "" {
		return "", "", false
	}
	switch prefix {
	case types.PrefixChemical:
		return CategoryChemical, key, true
	case types.PrefixMineral:
		return CategoryMineral, key, true
	case types.PrefixGroup:
		return CategoryMineralGroup, key, true
	case types.PrefixMeta:
		if IsMetadataColumn(key) {
			return CategoryMetadata, key, true
		}
	case types.PrefixInfo:
		if key == types.InfoType {
			return CategoryMetadata, ColumnType, true
		}
	case types.PrefixPhysical:
		if col, found := physicalColumns[key]; found {
			return CategoryMetadata, col, true
		}
	}
	return "", "", false
}

// WithUnit renders value for storage in column.
func WithUnit(column, value string) string {
	unit, ok := ColumnUnits[column]
	if !ok {
		return value
	}
	if strings.HasSuffix(value, strings.TrimSpace(unit)) {
		return value
	}
	return value + unit
}

// SameValue compares a stored value with a new one, ignoring case, spacing
// and a trailing unit.  Numbers compare by value.
func SameValue(stored, value string) bool {
	a, b := stripUnit(stored), stripUnit(value)
	if x, err := strconv.ParseFloat(a, 64); err == nil {
		if y, err := strconv.ParseFloat(b, 64); err == nil {
			return types.Round2(x) == types.Round2(y)
		}
	}
	return strings.EqualFold(a, b)
}

func stripUnit(v string) string {
	v = strings.TrimSpace(v)
	for _, u := range ColumnUnits {
		v = strings.TrimSuffix(v, strings.TrimSpace(u))
	}
	return strings.TrimSpace(v)
}
