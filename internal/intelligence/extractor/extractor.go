// Package extractor pulls oxide, mineral, mineral-group, physical and basic
// properties for one located entity out of a normalised document.
//
// Composition categories are filled by ordered strategy chains: positional
// table parsing, then multi-line header/value blocks, then loose inline
// patterns.  A later layer runs only while the category is under its
// coverage threshold and never overwrites a value an earlier layer found.
package extractor

import (
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/locator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Config holds the per-category coverage thresholds.
type Config struct {
	ChemicalThreshold int `mapstructure:"chemical_threshold"`
	MineralThreshold  int `mapstructure:"mineral_threshold"`
	GroupThreshold    int `mapstructure:"group_threshold"`
}

// DefaultConfig returns thresholds of 5 oxides, 3 minerals and 5 groups.
func DefaultConfig() Config {
	return Config{ChemicalThreshold: 5, MineralThreshold: 3, GroupThreshold: 5}
}

// Extractor is safe for concurrent use.
type Extractor struct {
	chemical Chain
	mineral  Chain
	groups   Chain
	observe  LayerFunc
	logger   logging.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLayerObserver reports every layer that contributed values.
func WithLayerObserver(fn LayerFunc) Option {
	return func(e *Extractor) { e.observe = fn }
}

// New builds an Extractor.  Zero thresholds take their defaults.
func New(cfg Config, logger logging.Logger, opts ...Option) *Extractor {
	def := DefaultConfig()
	if cfg.ChemicalThreshold <= 0 {
		cfg.ChemicalThreshold = def.ChemicalThreshold
	}
	if cfg.MineralThreshold <= 0 {
		cfg.MineralThreshold = def.MineralThreshold
	}
	if cfg.GroupThreshold <= 0 {
		cfg.GroupThreshold = def.GroupThreshold
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Extractor{
		chemical: NewChemicalChain(cfg.ChemicalThreshold),
		mineral:  NewMineralChain(cfg.MineralThreshold),
		groups:   NewGroupChain(cfg.GroupThreshold),
		logger:   logger.Named("extractor"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract builds the record for one target.  For a spec sheet the whole
// document is searched and a record is always returned.  For an entity in a
// multi-entity document the record is returned only when it carries
// composition data, a type or a quality score; ok is false otherwise.
func (e *Extractor) Extract(doc *normalizer.Document, t locator.Target) (rec *simulant.ExtractionRecord, ok bool) {
	rec = simulant.NewExtractionRecord(t.EntityID(), t.Name, doc.ID, doc.Name)

	in := Input{Text: t.CompositionText, Tables: t.Tables}
	if !t.WholeDocument {
		in.Entity = t.Entity
	}

	for _, c := range []struct {
		chain Chain
		dst   map[string]float64
	}{
		{e.chemical, rec.ChemicalComposition},
		{e.mineral, rec.MineralComposition},
		{e.groups, rec.MineralGroups},
	} {
		for _, m := range c.chain.Run(in, c.dst, e.observe) {
			rec.AddMethod(m)
		}
	}

	if extractBasicInfo(t.Text, rec) {
		rec.AddMethod(simulant.MethodBasicInfo)
	}
	if extractPhysical(t.Text, rec) {
		rec.AddMethod(simulant.MethodPhysical)
	}
	if t.WholeDocument && extractRawMaterials(t.Text, rec) {
		rec.AddMethod(simulant.MethodRawMaterials)
	}
	if doc.UsedOCR {
		rec.AddMethod(simulant.MethodOCR)
		rec.AddNote("text recovered by OCR; values may contain recognition errors")
	}

	if t.WholeDocument {
		rec.AddMethod(simulant.MethodSpecSheet)
		ok = true
	} else {
		_, hasType := rec.BasicInfo[simulant.InfoType]
		_, hasScore := rec.QualityScore()
		ok = len(rec.ChemicalComposition) > 0 || len(rec.MineralComposition) > 0 || hasType || hasScore
		if ok {
			rec.AddMethod(simulant.MethodResearchPaper)
		}
	}

	e.logger.Debug("entity extracted",
		logging.String("document", doc.Name),
		logging.String("entity", t.Name),
		logging.Int("oxides", len(rec.ChemicalComposition)),
		logging.Int("minerals", len(rec.MineralComposition)),
		logging.Int("groups", len(rec.MineralGroups)),
		logging.Int("physical", len(rec.PhysicalProperties)),
		logging.Any("methods", rec.ExtractionMethods),
		logging.Bool("kept", ok))
	return rec, ok
}
