package testutil

import (
	"context"
	"strconv"
	"sync"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// MemRepository is an in-memory domain.Maintainer with the never-overwrite
// semantics of the real stores.  Values are kept as strings.
type MemRepository struct {
	mu       sync.Mutex
	entities []*domain.Entity
	rows     map[string]map[domain.Category]map[string]string

	// Upserts and Replaced count calls.
	Upserts  int
	Replaced int
	// Fail, when set, is returned by every Upsert.
	Fail error
}

// NewMemRepository returns an empty store over entities.
func NewMemRepository(entities []*domain.Entity) *MemRepository {
	return &MemRepository{entities: entities, rows: make(map[string]map[domain.Category]map[string]string)}
}

func (r *MemRepository) table(id string, cat domain.Category) map[string]string {
	if r.rows[id] == nil {
		r.rows[id] = make(map[domain.Category]map[string]string)
	}
	if r.rows[id][cat] == nil {
		r.rows[id][cat] = make(map[string]string)
	}
	return r.rows[id][cat]
}

// Set stores a value directly.
func (r *MemRepository) Set(id string, cat domain.Category, key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table(id, cat)[key] = value
}

// Get returns a copy of one entity's category.
func (r *MemRepository) Get(id string, cat domain.Category) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for k, v := range r.table(id, cat) {
		out[k] = v
	}
	return out
}

func (r *MemRepository) known(id string) bool {
	for _, e := range r.entities {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Upsert implements domain.Repository.
func (r *MemRepository) Upsert(_ context.Context, id string, cat domain.Category, values map[string]string) (map[string]domain.FieldResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++
	if r.Fail != nil {
		return nil, r.Fail
	}
	if !r.known(id) {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "simulant not found").WithDetail(id)
	}
	t := r.table(id, cat)
	out := make(map[string]domain.FieldResult, len(values))
	for k, v := range values {
		if cat.IsComposition() {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				out[k] = domain.FieldResult{Field: k, Status: domain.FieldInvalid, Reason: "not a number"}
				continue
			}
		}
		cur, ok := t[k]
		switch {
		case !ok || domain.IsEmptyValue(cur):
			t[k] = v
			out[k] = domain.FieldResult{Field: k, Status: domain.FieldWritten}
		case domain.SameValue(cur, v):
			out[k] = domain.FieldResult{Field: k, Status: domain.FieldUnchanged, Existing: cur}
		default:
			out[k] = domain.FieldResult{Field: k, Status: domain.FieldConflict, Existing: cur, Reason: "conflict"}
		}
	}
	return out, nil
}

// ListEntities implements domain.Repository.
func (r *MemRepository) ListEntities(context.Context) ([]*domain.Entity, error) {
	return r.entities, nil
}

// Components implements domain.Repository.
func (r *MemRepository) Components(_ context.Context, id string, cat domain.Category) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64)
	for k, v := range r.table(id, cat) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out, nil
}

// ReplaceComponents implements domain.Maintainer.
func (r *MemRepository) ReplaceComponents(_ context.Context, id string, cat domain.Category, values map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Replaced++
	t := make(map[string]string, len(values))
	for k, v := range values {
		t[k] = simulant.FormatNumber(v)
	}
	r.table(id, cat)
	r.rows[id][cat] = t
	return nil
}
