package simulant

import (
	"context"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Category selects the table a Repository.Upsert call writes to.
type Category string

const (
	CategoryChemical     Category = "chemical"
	CategoryMineral      Category = "mineral"
	CategoryMineralGroup Category = "mineral_group"
	CategoryMetadata     Category = "metadata"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryChemical, CategoryMineral, CategoryMineralGroup, CategoryMetadata:
		return c, nil
	default:
		return "", errors.New(errors.ErrCodeCategoryInvalid, "unknown category").WithDetail(s)
	}
}

// IsComposition reports whether values in the category are percentages.
func (c Category) IsComposition() bool {
	return c == CategoryChemical || c == CategoryMineral || c == CategoryMineralGroup
}

// FieldStatus is the outcome of writing a single field.
type FieldStatus string

const (
	// FieldWritten means the field was empty and now holds the new value.
	FieldWritten FieldStatus = "written"
	// FieldUnchanged means the stored value already equals the new value.
	FieldUnchanged FieldStatus = "unchanged"
	// FieldConflict means a different value is already stored; the write
	// was refused.
	FieldConflict FieldStatus = "conflict"
	// FieldInvalid means the value could not be parsed for the category.
	FieldInvalid FieldStatus = "invalid"
)

// FieldResult reports what happened to one field of an Upsert.
type FieldResult struct {
	Field    string      `json:"field"`
	Status   FieldStatus `json:"status"`
	Existing string      `json:"existing,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Written reports whether the field was stored by this call.
func (r FieldResult) Written() bool { return r.Status == FieldWritten }

// Repository is the persistence port.  Implementations never overwrite a
// populated field with extracted data, write a timestamped backup before any
// destructive rewrite, and are idempotent so that a partial batch can be
// re-run safely.
type Repository interface {
	// Upsert writes values for one entity and category.  Conflicts are
	// reported per field, not as an error; the returned error is reserved
	// for I/O failures.
	Upsert(ctx context.Context, entityID string, category Category, values map[string]string) (map[string]FieldResult, error)

	// ListEntities returns the registered entities (the catalog source).
	ListEntities(ctx context.Context) ([]*Entity, error)

	// Components returns the stored composition values of a category.
	Components(ctx context.Context, entityID string, category Category) (map[string]float64, error)
}

// Maintainer is implemented by stores that support the reconcile repair
// job.  ReplaceComponents is the one destructive operation and is always
// preceded by a backup.
type Maintainer interface {
	Repository
	ReplaceComponents(ctx context.Context, entityID string, category Category, values map[string]float64) error
}

// IsEmptyValue reports whether a stored value counts as unpopulated.
func IsEmptyValue(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "null", "None", "nil", "N/A":
		return true
	}
	return false
}
