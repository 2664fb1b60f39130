// Package scoring rates how complete an extraction record is on a 0-100
// point scale.  The score ranks records; it is not a probability.
package scoring

import (
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Weights are the points awarded per signal.
type Weights struct {
	Name int
	Type int
	// Chemical and Mineral tiers apply to >=1, >=3 and >=5 distinct entries.
	Chemical [3]int
	Mineral  [3]int
	// Density, ParticleSize, QualityScore and Cohesion are awarded when the
	// property is present.
	Density      int
	ParticleSize int
	QualityScore int
	Cohesion     int
	// TotalBonus is awarded when the oxide total lies in [TotalMin, TotalMax].
	TotalBonus int
	TotalMin   float64
	TotalMax   float64
}

// DefaultWeights returns the standard point scale.
func DefaultWeights() Weights {
	return Weights{
		Name:         20,
		Type:         10,
		Chemical:     [3]int{5, 15, 25},
		Mineral:      [3]int{5, 12, 20},
		Density:      5,
		ParticleSize: 5,
		QualityScore: 5,
		Cohesion:     5,
		TotalBonus:   5,
		TotalMin:     90,
		TotalMax:     105,
	}
}

// Scorer computes record confidence.
type Scorer struct {
	w Weights
}

// New returns a Scorer with the given weights.
func New(w Weights) *Scorer { return &Scorer{w: w} }

// Default returns a Scorer with DefaultWeights.
func Default() *Scorer { return New(DefaultWeights()) }

// Score returns the clamped score for rec.
func (s *Scorer) Score(rec *simulant.ExtractionRecord) float64 {
	if rec == nil {
		return 0
	}
	score := 0
	if len(rec.EntityName) > 2 {
		score += s.w.Name
	}
	if rec.BasicInfo[simulant.InfoType] != "" {
		score += s.w.Type
	}
	score += tier(len(rec.ChemicalComposition), s.w.Chemical)
	score += tier(len(rec.MineralComposition), s.w.Mineral)

	props := rec.PhysicalProperties
	if has(props, simulant.PropDensity) || has(props, simulant.PropDensityMean) {
		score += s.w.Density
	}
	if has(props, simulant.PropParticleSizeMedian) {
		score += s.w.ParticleSize
	}
	if _, ok := rec.QualityScore(); ok {
		score += s.w.QualityScore
	}
	if has(props, simulant.PropCohesion) {
		score += s.w.Cohesion
	}

	if len(rec.ChemicalComposition) > 0 {
		if total := rec.ChemicalTotal(); total >= s.w.TotalMin && total <= s.w.TotalMax {
			score += s.w.TotalBonus
		}
	}
	return clamp(float64(score))
}

// Seal stores the score on rec and returns it.
func (s *Scorer) Seal(rec *simulant.ExtractionRecord) float64 {
	rec.Confidence = s.Score(rec)
	return rec.Confidence
}

func tier(n int, points [3]int) int {
	switch {
	case n >= 5:
		return points[2]
	case n >= 3:
		return points[1]
	case n >= 1:
		return points[0]
	}
	return 0
}

func has(m map[string]float64, key string) bool {
	_, ok := m[key]
	return ok
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
