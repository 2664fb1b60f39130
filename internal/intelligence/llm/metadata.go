package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

const truncatedMarker = "...[truncated]"

const extractionPrompt = `You are a scientific data extraction assistant specializing in lunar regolith simulants.

Extract factual information about the following lunar simulant from the provided text.

Simulant Name: %s
Simulant ID: %s

Fields to extract (only fill if information is explicitly stated):
- institution: The institution or company that developed/produces this simulant
- availability: Current availability status (e.g., "Available", "Limited stock", "Production stopped")
- release_date: Year or date when the simulant was first released
- tons_produced_mt: Total tons produced (in metric tons), if mentioned
- notes: Any relevant notes about the simulant (composition, applications, special features)
- type: Simulant type (e.g., "Mare", "Highland", "Geotechnical Simulant")

Source Text:
%s

Return ONLY a JSON object with the extracted fields. Use null for fields where no information is found.
Format: {"institution": "...", "availability": "...", "release_date": "...", "tons_produced_mt": ..., "notes": "...", "type": "..."}

Be precise and factual. Do not make assumptions.`

// MetadataExtractor asks the model for provenance fields of one entity.
type MetadataExtractor struct {
	llm         Completer
	temperature float64
	maxChars    int
	logger      logging.Logger
}

// NewMetadataExtractor builds an extractor over llm.
func NewMetadataExtractor(llm Completer, cfg Config, logger logging.Logger) *MetadataExtractor {
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultConfig().MaxTextChars
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MetadataExtractor{llm: llm, temperature: cfg.ExtractTemperature, maxChars: cfg.MaxTextChars, logger: logger.Named("llm_metadata")}
}

// Extract returns the non-null metadata fields stated in text.  Unknown
// keys in the response are ignored.  A malformed response yields LLM_003.
func (m *MetadataExtractor) Extract(ctx context.Context, entityName, entityID, text string) (map[string]string, error) {
	prompt := fmt.Sprintf(extractionPrompt, entityName, entityID, TruncateText(text, m.maxChars))
	out, err := m.llm.Complete(ctx, Request{Prompt: prompt, Temperature: m.temperature, JSON: true})
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := decodeObject(out, &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	for _, f := range simulant.MetadataFields {
		if v, ok := scalarString(raw[f]); ok {
			fields[f] = v
		}
	}
	m.logger.Debug("metadata extracted",
		logging.String("entity", entityName), logging.Int("fields", len(fields)))
	return fields, nil
}

// TruncateText cuts text to at most n characters and appends a marker.
func TruncateText(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	var b strings.Builder
	i := 0
	for _, r := range text {
		if i == n {
			break
		}
		b.WriteRune(r)
		i++
	}
	b.WriteString(truncatedMarker)
	return b.String()
}
