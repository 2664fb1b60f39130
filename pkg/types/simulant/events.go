package simulant

import "time"

// ReviewItem is one aggregated field that did not clear the auto-fill bar
// and awaits a human decision.
type ReviewItem struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id,omitempty"`
	EntityID     string    `json:"entity_id"`
	EntityName   string    `json:"entity_name"`
	Field        string    `json:"field"`
	Value        string    `json:"value"`
	Confidence   float64   `json:"confidence"`
	SourcesAgree bool      `json:"sources_agree"`
	NumSources   int       `json:"num_sources"`
	AllValues    []string  `json:"all_values,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	// Existing is the stored value a write was refused against, if any.
	Existing  string    `json:"existing,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewReviewItem copies an aggregated result into a review item.
func NewReviewItem(runID, entityID, entityName string, r AggregatedResult) ReviewItem {
	return ReviewItem{
		RunID:        runID,
		EntityID:     entityID,
		EntityName:   entityName,
		Field:        r.Field,
		Value:        r.StringValue(),
		Confidence:   r.Confidence,
		SourcesAgree: r.SourcesAgree,
		NumSources:   r.NumSources,
		AllValues:    r.AllValues,
		Notes:        r.Notes,
		CreatedAt:    time.Now().UTC(),
	}
}

// ExtractionCompleted is emitted once per processed document.
type ExtractionCompleted struct {
	RunID      string   `json:"run_id"`
	DocumentID string   `json:"document_id"`
	Document   string   `json:"document"`
	Kind       string   `json:"kind"`
	Entities   []string `json:"entities"`
	Records    int      `json:"records"`
	Skipped    bool     `json:"skipped"`
	Error      string   `json:"error,omitempty"`
}

// RecordUpserted is emitted for each store write that changed something.
type RecordUpserted struct {
	RunID    string            `json:"run_id"`
	EntityID string            `json:"entity_id"`
	Category string            `json:"category"`
	Fields   map[string]string `json:"fields"`
}

// BatchRequested asks a worker to run a batch.
type BatchRequested struct {
	RunID    string `json:"run_id,omitempty"`
	Source   string `json:"source"`
	Prefix   string `json:"prefix,omitempty"`
	Simulant string `json:"simulant,omitempty"`
	Mode     string `json:"mode,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
}
