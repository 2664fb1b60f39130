package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

const factCheckPrompt = `You are verifying lunar simulant data extracted from multiple sources.

Simulant: %s

Extracted data from %d sources:
%s

Task: Resolve conflicts and determine the most reliable value for each field.

Rules:
1. If all sources agree, use that value with high confidence
2. If sources conflict, prefer more recent/official sources
3. If sources partially agree, note the discrepancy
4. Assign confidence score (0.0-1.0) for each field

Return JSON:
{
  "field_name": {
    "value": "resolved value or null",
    "confidence": 0.95,
    "sources_agree": true/false,
    "notes": "explanation if conflict"
  },
  ...
}`

// Arbiter rules on conflicting qualitative values.  It satisfies the
// aggregator's Arbiter port.
type Arbiter struct {
	llm         Completer
	temperature float64
	logger      logging.Logger
}

// NewArbiter builds an Arbiter over llm.
func NewArbiter(llm Completer, cfg Config, logger logging.Logger) *Arbiter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Arbiter{llm: llm, temperature: cfg.ArbiterTemperature, logger: logger.Named("llm_arbiter")}
}

type rawVerdict struct {
	Value        json.RawMessage `json:"value"`
	Confidence   float64         `json:"confidence"`
	SourcesAgree bool            `json:"sources_agree"`
	Notes        string          `json:"notes"`
}

// Arbitrate sends every source and returns a verdict per field the model
// answered for.  Fields not present in any source are discarded.
func (a *Arbiter) Arbitrate(ctx context.Context, entityName string, sources []simulant.SourceFields) (map[string]simulant.Verdict, error) {
	blocks := make([]string, 0, len(sources))
	known := make(map[string]bool)
	for i, s := range sources {
		data, err := json.MarshalIndent(s.Fields, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal source fields")
		}
		label := s.Source
		if label == "" {
			label = fmt.Sprintf("Source %d", i+1)
		}
		blocks = append(blocks, fmt.Sprintf("Source %d (%s):\n%s", i+1, label, data))
		for k := range s.Fields {
			known[k] = true
		}
	}

	prompt := fmt.Sprintf(factCheckPrompt, entityName, len(sources), strings.Join(blocks, "\n\n"))
	out, err := a.llm.Complete(ctx, Request{Prompt: prompt, Temperature: a.temperature, JSON: true})
	if err != nil {
		return nil, err
	}

	var raw map[string]rawVerdict
	if err := decodeObject(out, &raw); err != nil {
		return nil, err
	}
	verdicts := make(map[string]simulant.Verdict, len(raw))
	for field, rv := range raw {
		if !known[field] {
			continue
		}
		v := simulant.Verdict{Confidence: rv.Confidence, SourcesAgree: rv.SourcesAgree, Notes: rv.Notes}
		if s, ok := scalarString(rv.Value); ok {
			v.Value = &s
		}
		verdicts[field] = v
	}
	a.logger.Debug("sources arbitrated",
		logging.String("entity", entityName),
		logging.Int("sources", len(sources)),
		logging.Int("verdicts", len(verdicts)))
	return verdicts, nil
}
