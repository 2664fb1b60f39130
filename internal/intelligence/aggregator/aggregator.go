// Package aggregator merges the extraction records gathered for one entity
// into a single per-field result and decides which fields may be written
// automatically and which need human review.
//
// Fields are compared as strings after Flatten, so numeric values vote by
// their two-decimal rendering.  Qualitative fields (metadata and basic info)
// may be ruled on by an Arbiter; when none is configured, or it fails, the
// same voting path produces the result and callers cannot tell the
// difference.
package aggregator

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Arbiter rules on conflicting source values with qualitative reasoning.
type Arbiter interface {
	Arbitrate(ctx context.Context, entityName string, sources []simulant.SourceFields) (map[string]simulant.Verdict, error)
}

// Config holds the auto-fill thresholds and arbitration scope.
type Config struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinSources          int     `mapstructure:"min_sources"`
	Boost               float64 `mapstructure:"boost"`
	// UseArbiter enables the Arbiter for ArbiterPrefixes fields.
	UseArbiter      bool     `mapstructure:"use_arbiter"`
	ArbiterPrefixes []string `mapstructure:"arbiter_prefixes"`
	// MaxArbiterSources caps how many sources are sent per entity.
	MaxArbiterSources int `mapstructure:"max_arbiter_sources"`
}

// DefaultConfig returns threshold 0.8, two sources, a 1.2 boost and
// arbitration of metadata and basic info over at most ten sources.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.8,
		MinSources:          2,
		Boost:               1.2,
		UseArbiter:          true,
		ArbiterPrefixes:     []string{simulant.PrefixMeta, simulant.PrefixInfo},
		MaxArbiterSources:   10,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New(errors.ErrCodeThresholdInvalid, "confidence_threshold must be within [0, 1]")
	}
	if c.MinSources < 1 {
		return errors.New(errors.ErrCodeThresholdInvalid, "min_sources must be at least 1")
	}
	if c.Boost < 1 {
		return errors.New(errors.ErrCodeThresholdInvalid, "boost must be at least 1")
	}
	return nil
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	cfg     Config
	arbiter Arbiter
	logger  logging.Logger
}

// New builds an Aggregator.  arbiter may be nil.
func New(cfg Config, arbiter Arbiter, logger logging.Logger) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxArbiterSources <= 0 {
		cfg.MaxArbiterSources = DefaultConfig().MaxArbiterSources
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Aggregator{cfg: cfg, arbiter: arbiter, logger: logger.Named("aggregator")}, nil
}

// Config returns the active configuration.
func (a *Aggregator) Config() Config { return a.cfg }

// ─────────────────────────────────────────────────────────────────────────────
// Voting
// ─────────────────────────────────────────────────────────────────────────────

// Vote resolves one field from its per-source values by majority.  Null
// markers ("", "null", "None") are ignored.  Ties go to the value seen
// first.
func (a *Aggregator) Vote(field string, values []*string) simulant.AggregatedResult {
	res := simulant.AggregatedResult{Field: field, Resolution: simulant.ResolutionVote}

	var candidates []string
	for _, v := range values {
		if v == nil || isNull(*v) {
			continue
		}
		candidates = append(candidates, *v)
	}
	if len(candidates) == 0 {
		return res
	}

	counts := make(map[string]int)
	var order []string
	for _, c := range candidates {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	mode := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[mode] {
			mode = c
		}
	}

	ratio := float64(counts[mode]) / float64(len(candidates))
	confidence := ratio
	if len(candidates) >= a.cfg.MinSources {
		confidence = math.Min(1, confidence*a.cfg.Boost)
	}

	res.Value = &mode
	res.Confidence = round4(confidence)
	res.SourcesAgree = ratio > 0.5
	res.NumSources = len(candidates)
	if len(order) > 1 {
		res.AllValues = order
	}
	return res
}

func isNull(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "null", "None":
		return true
	}
	return false
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

// ─────────────────────────────────────────────────────────────────────────────
// Aggregation
// ─────────────────────────────────────────────────────────────────────────────

// Outcome is the aggregation of one entity.  Results covers every field any
// source reported; AutoFill and Review partition the non-null results.
type Outcome struct {
	Entity   string
	Results  []simulant.AggregatedResult
	AutoFill []simulant.AggregatedResult
	Review   []simulant.AggregatedResult
	// Arbitrated is true when the Arbiter's rulings were used.
	Arbitrated bool
	// ArbiterErr is the Arbiter failure that caused a fall back to voting.
	ArbiterErr error
}

// Result returns the result for field.
func (o *Outcome) Result(field string) (simulant.AggregatedResult, bool) {
	for _, r := range o.Results {
		if r.Field == field {
			return r, true
		}
	}
	return simulant.AggregatedResult{}, false
}

// Sources flattens records into labelled field maps in record order.
func Sources(records []*simulant.ExtractionRecord) []simulant.SourceFields {
	out := make([]simulant.SourceFields, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		out = append(out, simulant.SourceFields{Source: r.SourceFile, Fields: r.Flatten()})
	}
	return out
}

// Aggregate merges records for one entity.  It needs the complete set of
// records; it does not aggregate incrementally.
func (a *Aggregator) Aggregate(ctx context.Context, entityName string, records []*simulant.ExtractionRecord) (*Outcome, error) {
	return a.AggregateSources(ctx, entityName, Sources(records))
}

// AggregateSources merges pre-flattened sources for one entity.  It returns
// AGG_001 when no source carries any field.
func (a *Aggregator) AggregateSources(ctx context.Context, entityName string, sources []simulant.SourceFields) (*Outcome, error) {
	fields := fieldNames(sources)
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrCodeNoCandidates, "no field reported by any source").
			WithDetail(entityName)
	}

	out := &Outcome{Entity: entityName}
	votes := make(map[string]simulant.AggregatedResult, len(fields))
	for _, f := range fields {
		values := make([]*string, len(sources))
		for i, s := range sources {
			if v, ok := s.Fields[f]; ok {
				v := v
				values[i] = &v
			}
		}
		votes[f] = a.Vote(f, values)
	}

	if verdicts, err := a.arbitrate(ctx, entityName, sources, fields); err != nil {
		out.ArbiterErr = err
		a.logger.Warn("arbitration failed, using vote",
			logging.String("entity", entityName), logging.Err(err))
	} else if len(verdicts) > 0 {
		out.Arbitrated = true
		for f, v := range verdicts {
			vote, ok := votes[f]
			if !ok || !a.arbitrable(f) {
				continue
			}
			votes[f] = fromVerdict(vote, v)
		}
	}

	for _, f := range fields {
		r := votes[f]
		out.Results = append(out.Results, r)
		if !r.HasValue() {
			continue
		}
		if a.Disposition(r) == simulant.DispositionAutoFill {
			out.AutoFill = append(out.AutoFill, r)
		} else {
			out.Review = append(out.Review, r)
		}
	}

	a.logger.Debug("entity aggregated",
		logging.String("entity", entityName),
		logging.Int("sources", len(sources)),
		logging.Int("fields", len(fields)),
		logging.Int("auto_fill", len(out.AutoFill)),
		logging.Int("review", len(out.Review)),
		logging.Bool("arbitrated", out.Arbitrated))
	return out, nil
}

// Disposition classifies a result.  A field is auto-filled iff its
// confidence meets the threshold, enough sources reported it, and it has a
// value.
func (a *Aggregator) Disposition(r simulant.AggregatedResult) simulant.Disposition {
	if r.HasValue() && r.Confidence >= a.cfg.ConfidenceThreshold && r.NumSources >= a.cfg.MinSources {
		return simulant.DispositionAutoFill
	}
	return simulant.DispositionReview
}

func (a *Aggregator) arbitrable(field string) bool {
	for _, p := range a.cfg.ArbiterPrefixes {
		if strings.HasPrefix(field, p) {
			return true
		}
	}
	return false
}

// arbitrate asks the Arbiter about qualitative fields when two or more
// sources report any.  Only those fields are sent.
func (a *Aggregator) arbitrate(ctx context.Context, entityName string, sources []simulant.SourceFields, fields []string) (map[string]simulant.Verdict, error) {
	if a.arbiter == nil || !a.cfg.UseArbiter {
		return nil, nil
	}
	var scoped []simulant.SourceFields
	for _, s := range sources {
		sub := make(map[string]string)
		for k, v := range s.Fields {
			if a.arbitrable(k) && !isNull(v) {
				sub[k] = v
			}
		}
		if len(sub) > 0 {
			scoped = append(scoped, simulant.SourceFields{Source: s.Source, Fields: sub})
		}
	}
	if len(scoped) < 2 {
		return nil, nil
	}
	if len(scoped) > a.cfg.MaxArbiterSources {
		scoped = scoped[:a.cfg.MaxArbiterSources]
	}

	verdicts, err := a.arbiter.Arbitrate(ctx, entityName, scoped)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArbitrationFailed, "arbiter failed")
	}
	return verdicts, nil
}

// fromVerdict keeps the vote's source count and candidate list; the arbiter
// supplies value, confidence, agreement and notes.
func fromVerdict(vote simulant.AggregatedResult, v simulant.Verdict) simulant.AggregatedResult {
	r := vote
	r.Resolution = simulant.ResolutionArbiter
	r.Value = nil
	if v.Value != nil && !isNull(*v.Value) {
		val := *v.Value
		r.Value = &val
	}
	r.Confidence = round4(math.Max(0, math.Min(1, v.Confidence)))
	r.SourcesAgree = v.SourcesAgree
	r.Notes = v.Notes
	return r
}

func fieldNames(sources []simulant.SourceFields) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sources {
		for k := range s.Fields {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
