package simulant

import (
	"fmt"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// KnownSimulants is the built-in list of simulant names used when no record
// store supplies a catalog.
var KnownSimulants = []string{
	"JSC-1", "JSC-1A", "JSC-1AF", "JSC-2A",
	"LHS-1", "LHS-1D", "LHS-1E", "LHS-2", "LHS-2E",
	"LMS-1", "LMS-1D", "LMS-1E", "LMS-2",
	"LSP-1", "LSP-2",
	"TLH-0", "TLM-0",
	"EAC-1", "EAC-1A",
	"FJS-1", "FJS-2", "FJS-3",
	"MLS-1", "MLS-2",
	"NU-LHT-1M", "NU-LHT-2M", "NU-LHT-3M",
	"DNA-1", "DNA-1A",
	"GRC-1", "GRC-3",
	"BP-1",
	"Chenobi",
	"OPRL2N", "OPRH2N", "OPRH3N",
	"CAS-1",
	"CLRS-1", "CLRS-2",
	"CLDS-1",
	"NAO-1", "NAO-2",
	"BHLD20",
	"CUG-1A", "CUG-1B",
	"CUMT-1",
	"AGK-2010",
	"ALRS-1",
	"CSM-CL",
	"KOHLS-1",
	"OB-1",
	"UoM-B", "UoM-W",
	"NEU-1",
	"TJ-1", "TJ-2",
	"IGG-01",
	"KLS-1",
	"ISAC-1", "LSS-ISAC-1",
	"KIGAM",
	"JLRS-1",
}

// Catalog is the read-only set of registered entities.  Iteration order is
// registration order.
type Catalog struct {
	entities []*Entity
	byID     map[string]*Entity
	byName   map[string]*Entity
}

// NewCatalog indexes entities.  Duplicate ids are rejected.
func NewCatalog(entities []*Entity) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[string]*Entity, len(entities)),
		byName: make(map[string]*Entity, len(entities)),
	}
	for _, e := range entities {
		if e == nil {
			continue
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, errors.New(errors.ErrCodeCatalogInvalid, "duplicate entity id").WithDetail(e.ID)
		}
		c.entities = append(c.entities, e)
		c.byID[e.ID] = e
		for _, v := range e.variants {
			key := strings.ToUpper(v)
			if _, taken := c.byName[key]; !taken {
				c.byName[key] = e
			}
		}
	}
	return c, nil
}

// NewCatalogFromNames registers names with sequential ids S001, S002, ...
func NewCatalogFromNames(names []string) (*Catalog, error) {
	entities := make([]*Entity, 0, len(names))
	for i, n := range names {
		e, err := NewEntity(fmt.Sprintf("S%03d", i+1), n)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return NewCatalog(entities)
}

// DefaultCatalog returns a catalog of KnownSimulants.
func DefaultCatalog() *Catalog {
	c, err := NewCatalogFromNames(KnownSimulants)
	if err != nil {
		panic(err)
	}
	return c
}

// Entities returns the registered entities in registration order.
func (c *Catalog) Entities() []*Entity {
	out := make([]*Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Len returns the number of registered entities.
func (c *Catalog) Len() int { return len(c.entities) }

// Get returns the entity with the given id.
func (c *Catalog) Get(id string) (*Entity, error) {
	if e, ok := c.byID[id]; ok {
		return e, nil
	}
	return nil, errors.New(errors.ErrCodeEntityNotFound, "entity not in catalog").WithDetail("id=" + id)
}

// Lookup resolves a name to an entity: exact variant match first, then a
// containment match in either direction ("LHS-1 TDS" ↔ "LHS-1").
func (c *Catalog) Lookup(name string) (*Entity, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}
	if e, ok := c.byName[key]; ok {
		return e, true
	}
	var best *Entity
	bestLen := 0
	for _, e := range c.entities {
		for _, v := range e.variants {
			vk := strings.ToUpper(v)
			if strings.Contains(key, vk) || (len(key) >= 3 && strings.Contains(vk, key)) {
				if len(vk) > bestLen {
					best, bestLen = e, len(vk)
				}
			}
		}
	}
	return best, best != nil
}

// Mentioned returns the entities whose variants occur in text, in
// registration order.
func (c *Catalog) Mentioned(text string) []*Entity {
	var out []*Entity
	for _, e := range c.entities {
		if e.MentionedIn(text) {
			out = append(out, e)
		}
	}
	return out
}
