package extraction

import (
	"fmt"
	"io"
	"time"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Report tallies one run.
type Report struct {
	RunID     string    `json:"run_id"`
	Mode      Mode      `json:"mode"`
	DryRun    bool      `json:"dry_run"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`

	FilesProcessed   int `json:"files_processed"`
	FilesSkipped     int `json:"files_skipped"`
	EntitiesFound    int `json:"entities_found"`
	RecordsExtracted int `json:"records_extracted"`

	ChemicalRows int `json:"chemical_rows"`
	MineralRows  int `json:"mineral_rows"`
	GroupRows    int `json:"group_rows"`
	MetadataRows int `json:"metadata_rows"`

	FieldsAutoFilled int `json:"fields_auto_filled"`
	FieldsAccepted   int `json:"fields_accepted"`
	FieldsQueued     int `json:"fields_queued"`
	LLMFailures      int `json:"llm_failures"`
	StoreErrors      int `json:"store_errors"`

	// Unmatched lists candidate names with no catalog entry.
	Unmatched []string `json:"unmatched,omitempty"`
	// Conflicts are writes refused because a different value is stored.
	Conflicts []simulant.ReviewItem `json:"conflicts,omitempty"`
	// Review holds fields below the auto-fill bar.
	Review []simulant.ReviewItem `json:"review,omitempty"`
	// Planned lists the auto-fill fields a conflicts-mode run would write.
	Planned []simulant.ReviewItem `json:"planned,omitempty"`

	start time.Time
}

func newReport(runID string, mode Mode, dryRun bool) *Report {
	now := time.Now()
	return &Report{RunID: runID, Mode: mode, DryRun: dryRun, StartedAt: now.UTC(), start: now}
}

func (r *Report) addRow(cat domain.Category) {
	switch cat {
	case domain.CategoryChemical:
		r.ChemicalRows++
	case domain.CategoryMineral:
		r.MineralRows++
	case domain.CategoryMineralGroup:
		r.GroupRows++
	case domain.CategoryMetadata:
		r.MetadataRows++
	}
}

// Finish stamps the duration.
func (r *Report) Finish() {
	r.Duration = time.Since(r.start).Round(time.Millisecond).String()
}

// Fields renders the counters as log fields.
func (r *Report) Fields() []logging.Field {
	return []logging.Field{
		logging.String("run_id", r.RunID),
		logging.Int("files_processed", r.FilesProcessed),
		logging.Int("files_skipped", r.FilesSkipped),
		logging.Int("entities", r.EntitiesFound),
		logging.Int("records", r.RecordsExtracted),
		logging.Int("chemical_rows", r.ChemicalRows),
		logging.Int("mineral_rows", r.MineralRows),
		logging.Int("group_rows", r.GroupRows),
		logging.Int("metadata_rows", r.MetadataRows),
		logging.Int("auto_filled", r.FieldsAutoFilled),
		logging.Int("queued", r.FieldsQueued),
		logging.Int("conflicts", len(r.Conflicts)),
		logging.Int("llm_failures", r.LLMFailures),
		logging.String("duration", r.Duration),
	}
}

// Print writes a human summary.
func (r *Report) Print(w io.Writer) {
	mode := string(r.Mode)
	if r.DryRun {
		mode += ", dry run"
	}
	fmt.Fprintf(w, "Run %s (%s) finished in %s\n", r.RunID, mode, r.Duration)
	fmt.Fprintf(w, "  files processed:   %d (skipped %d)\n", r.FilesProcessed, r.FilesSkipped)
	fmt.Fprintf(w, "  entities found:    %d (%d records)\n", r.EntitiesFound, r.RecordsExtracted)
	fmt.Fprintf(w, "  rows written:      chemical %d, mineral %d, groups %d, metadata %d\n",
		r.ChemicalRows, r.MineralRows, r.GroupRows, r.MetadataRows)
	fmt.Fprintf(w, "  fields auto-filled: %d, accepted: %d, queued: %d\n", r.FieldsAutoFilled, r.FieldsAccepted, r.FieldsQueued)
	if r.LLMFailures > 0 {
		fmt.Fprintf(w, "  llm failures:      %d\n", r.LLMFailures)
	}
	if r.StoreErrors > 0 {
		fmt.Fprintf(w, "  store errors:      %d\n", r.StoreErrors)
	}
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(w, "  not in catalog:    %v\n", r.Unmatched)
	}
	section := func(title string, items []simulant.ReviewItem) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d):\n", title, len(items))
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", Describe(it))
		}
	}
	section("Planned auto-fills", r.Planned)
	section("Conflicts", r.Conflicts)
	section("Needs review", r.Review)
}
