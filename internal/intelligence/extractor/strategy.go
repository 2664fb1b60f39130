package extractor

import (
	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Input is what a strategy searches.
type Input struct {
	Text   string
	Tables []normalizer.Table
	// Entity, when set, restricts table value rows to rows naming it.
	Entity *domain.Entity
}

func (in Input) rowBelongs(row []string) bool {
	if in.Entity == nil {
		return true
	}
	return in.Entity.MentionedIn(joinRow(row, " "))
}

// Strategy is one extraction layer.  Extract returns candidate values; it
// may consult found to skip categories an earlier layer already filled.
type Strategy interface {
	Name() simulant.Method
	Extract(in Input, found map[string]float64) map[string]float64
}

// Chain runs strategies in order until Threshold categories are filled.
type Chain struct {
	Category   string
	Threshold  int
	Strategies []Strategy
}

// LayerFunc observes each layer that added at least one value.
type LayerFunc func(category string, method simulant.Method, added int)

// Run fills dst.  Existing keys are never overwritten.  It returns the
// methods that contributed, in order.
func (c Chain) Run(in Input, dst map[string]float64, observe LayerFunc) []simulant.Method {
	var methods []simulant.Method
	for _, s := range c.Strategies {
		if len(dst) >= c.Threshold {
			break
		}
		added := 0
		for k, v := range s.Extract(in, dst) {
			if _, ok := dst[k]; ok {
				continue
			}
			dst[k] = v
			added++
		}
		if added > 0 {
			methods = append(methods, s.Name())
			if observe != nil {
				observe(c.Category, s.Name(), added)
			}
		}
	}
	return methods
}

// ─────────────────────────────────────────────────────────────────────────────
// Chains
// ─────────────────────────────────────────────────────────────────────────────

const (
	CategoryChemical = "chemical"
	CategoryMineral  = "mineral"
	CategoryGroups   = "mineral_group"
)

// NewChemicalChain is table position, then multi-line block, then inline
// text scoped to a chemical section when one exists.
func NewChemicalChain(threshold int) Chain {
	return Chain{
		Category:  CategoryChemical,
		Threshold: threshold,
		Strategies: []Strategy{
			tableStrategy{categories: oxideCategories, isHeader: isOxideHeaderRow},
			oxideBlockStrategy{},
			inlineStrategy{categories: oxideCategories, sections: chemicalSectionHeaders},
		},
	}
}

// NewMineralChain mirrors the chemical chain for detailed minerals.
func NewMineralChain(threshold int) Chain {
	return Chain{
		Category:  CategoryMineral,
		Threshold: threshold,
		Strategies: []Strategy{
			tableStrategy{categories: mineralCategories, isHeader: isMineralHeaderRow},
			mineralBlockStrategy{},
			inlineStrategy{categories: mineralCategories, sections: mineralSectionHeaders},
		},
	}
}

// NewGroupChain reads the five coarse groups from a group table, then from
// a group section.
func NewGroupChain(threshold int) Chain {
	return Chain{
		Category:  CategoryGroups,
		Threshold: threshold,
		Strategies: []Strategy{
			groupBlockStrategy{},
			groupSectionStrategy{},
		},
	}
}
