package extraction

import (
	"sync"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Table accumulates the records of one run per entity.  It is owned by the
// run and passed explicitly; nothing about it is global.
type Table struct {
	mu      sync.Mutex
	order   []string
	names   map[string]string
	records map[string][]*simulant.ExtractionRecord
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		names:   make(map[string]string),
		records: make(map[string][]*simulant.ExtractionRecord),
	}
}

// key groups catalog entities by id and unmatched names by name.
func key(rec *simulant.ExtractionRecord) string {
	if rec.EntityID != "" {
		return rec.EntityID
	}
	return "name:" + rec.EntityName
}

// Add appends rec under its entity.  Entities keep first-seen order.
func (t *Table) Add(rec *simulant.ExtractionRecord) {
	if rec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(rec)
	if _, ok := t.records[k]; !ok {
		t.order = append(t.order, k)
		t.names[k] = rec.EntityName
	}
	t.records[k] = append(t.records[k], rec)
}

// Entry is one entity's accumulated records.
type Entry struct {
	EntityID   string
	EntityName string
	Records    []*simulant.ExtractionRecord
}

// Entries returns every entity in first-seen order.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		recs := make([]*simulant.ExtractionRecord, len(t.records[k]))
		copy(recs, t.records[k])
		e := Entry{EntityName: t.names[k], Records: recs}
		if len(recs) > 0 {
			e.EntityID = recs[0].EntityID
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of entities.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
