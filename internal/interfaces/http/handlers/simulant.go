package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// SimulantReader is the read side of the record store.
type SimulantReader interface {
	ListEntities(ctx context.Context) ([]*domain.Entity, error)
	Simulant(ctx context.Context, id string) (map[string]string, error)
	Components(ctx context.Context, entityID string, category domain.Category) (map[string]float64, error)
}

// SimulantHandler serves the stored records.
type SimulantHandler struct {
	store SimulantReader
}

// NewSimulantHandler reads from store.
func NewSimulantHandler(store SimulantReader) *SimulantHandler {
	return &SimulantHandler{store: store}
}

// SimulantSummary is one catalog entry.
type SimulantSummary struct {
	ID      string   `json:"simulant_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// SimulantDetail is a simulant with every stored table.
type SimulantDetail struct {
	ID            string             `json:"simulant_id"`
	Fields        map[string]string  `json:"fields"`
	Chemical      map[string]float64 `json:"chemical_composition"`
	Mineral       map[string]float64 `json:"mineral_composition"`
	MineralGroups map[string]float64 `json:"mineral_groups"`
}

// List handles GET /v1/simulants.
func (h *SimulantHandler) List(c *gin.Context) {
	entities, err := h.store.ListEntities(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	out := make([]SimulantSummary, 0, len(entities))
	for _, e := range entities {
		out = append(out, SimulantSummary{ID: e.ID, Name: e.Name, Aliases: e.Aliases})
	}
	RespondOK(c, gin.H{"simulants": out, "count": len(out)})
}

// Get handles GET /v1/simulants/:id.
func (h *SimulantHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if id == "" {
		RespondError(c, errors.InvalidParam("simulant id is required"))
		return
	}
	fields, err := h.store.Simulant(ctx, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	detail := SimulantDetail{ID: id, Fields: fields}
	for cat, dst := range map[domain.Category]*map[string]float64{
		domain.CategoryChemical:     &detail.Chemical,
		domain.CategoryMineral:      &detail.Mineral,
		domain.CategoryMineralGroup: &detail.MineralGroups,
	} {
		values, err := h.store.Components(ctx, id, cat)
		if err != nil {
			RespondError(c, err)
			return
		}
		if values == nil {
			values = map[string]float64{}
		}
		*dst = values
	}
	RespondOK(c, detail)
}
