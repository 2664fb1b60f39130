package extraction

import (
	"context"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/taxonomy"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// EntityRepair describes what reconciling one entity's stored minerals did.
type EntityRepair struct {
	EntityID    string   `json:"entity_id"`
	EntityName  string   `json:"entity_name"`
	TotalBefore float64  `json:"total_before"`
	TotalAfter  float64  `json:"total_after"`
	Dropped     []string `json:"dropped,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	// Rewritten is true when the mineral rows were replaced.
	Rewritten bool `json:"rewritten"`
	// GroupsAdded counts mineral group rows written for an entity that had
	// none.
	GroupsAdded int `json:"groups_added"`
}

// RepairReport tallies a reconcile pass.
type RepairReport struct {
	DryRun   bool           `json:"dry_run"`
	Entities []EntityRepair `json:"entities"`
	Errors   int            `json:"errors"`
}

// Reconcile re-applies mineral reconciliation to persisted rows and fills
// mineral groups for entities that have no group rows; existing group data
// is left alone.  Entities without mineral rows are skipped.  Dry runs
// compute the repair but write nothing.
func Reconcile(ctx context.Context, store domain.Maintainer, dryRun bool, logger logging.Logger) (*RepairReport, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	entities, err := store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := &RepairReport{DryRun: dryRun}
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := repairEntity(ctx, store, e, dryRun)
		if err != nil {
			out.Errors++
			logger.Error("reconcile failed", logging.String("entity", e.Name), logging.Err(err))
			continue
		}
		if rep == nil {
			continue
		}
		out.Entities = append(out.Entities, *rep)
		logger.Info("entity reconciled",
			logging.String("entity", e.Name),
			logging.Float64("total_before", rep.TotalBefore),
			logging.Float64("total_after", rep.TotalAfter),
			logging.Strings("dropped", rep.Dropped),
			logging.Int("groups_added", rep.GroupsAdded))
	}
	return out, nil
}

func repairEntity(ctx context.Context, store domain.Maintainer, e *domain.Entity, dryRun bool) (*EntityRepair, error) {
	minerals, err := store.Components(ctx, e.ID, domain.CategoryMineral)
	if err != nil {
		return nil, err
	}
	if len(minerals) == 0 {
		return nil, nil
	}
	res := taxonomy.Reconcile(minerals)
	rep := &EntityRepair{
		EntityID:    e.ID,
		EntityName:  e.Name,
		TotalBefore: simulant.Round2(sum(minerals)),
		TotalAfter:  simulant.Round2(res.Total()),
		Dropped:     res.Dropped,
		Notes:       res.Notes,
	}
	if changed(minerals, res.Minerals) {
		rep.Rewritten = true
		if !dryRun {
			if err := store.ReplaceComponents(ctx, e.ID, domain.CategoryMineral, res.Minerals); err != nil {
				return nil, err
			}
		}
	}

	groups, err := store.Components(ctx, e.ID, domain.CategoryMineralGroup)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		return rep, nil
	}
	missing := make(map[string]string)
	for g, v := range taxonomy.MineralGroups(res.Minerals, nil) {
		missing[g] = simulant.FormatNumber(v)
	}
	if dryRun {
		rep.GroupsAdded = len(missing)
		return rep, nil
	}
	results, err := store.Upsert(ctx, e.ID, domain.CategoryMineralGroup, missing)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Written() {
			rep.GroupsAdded++
		}
	}
	return rep, nil
}

func sum(m map[string]float64) float64 {
	var t float64
	for _, v := range m {
		t += v
	}
	return t
}

func changed(before, after map[string]float64) bool {
	if len(before) != len(after) {
		return true
	}
	for k, v := range before {
		if w, ok := after[k]; !ok || simulant.Round2(v) != simulant.Round2(w) {
			return true
		}
	}
	return false
}
