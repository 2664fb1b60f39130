// Package extraction runs the end-to-end batch: documents are decoded,
// entities located and extracted, records reconciled and scored, then
// aggregated per entity and either written to the record store or queued for
// review.
package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/aggregator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/common"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/extractor"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/locator"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/scoring"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/taxonomy"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	commontypes "github.com/turtacn/Regolith-Intelligence/pkg/types/common"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// Mode selects how aggregated fields are applied.
type Mode string

const (
	// ModeAuto writes auto-fill fields and queues the rest.
	ModeAuto Mode = "auto"
	// ModeConflicts writes nothing and reports every field.
	ModeConflicts Mode = "conflicts"
	// ModeInteractive writes auto-fill fields and asks the Reviewer about
	// the rest.
	ModeInteractive Mode = "interactive"
)

// ParseMode validates a mode name; empty means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeConflicts, ModeInteractive:
		return m, nil
	}
	return "", errors.Newf(errors.ErrCodeBadRequest, "unknown mode %q (auto|conflicts|interactive)", s)
}

// Config tunes a Service.
type Config struct {
	Mode    Mode `mapstructure:"mode"`
	DryRun  bool `mapstructure:"dry_run"`
	Workers int  `mapstructure:"workers"`
	// DocumentTimeout bounds the processing of one document.
	DocumentTimeout time.Duration `mapstructure:"document_timeout"`
}

// DefaultConfig returns auto mode with four workers.
func DefaultConfig() Config {
	return Config{Mode: ModeAuto, Workers: 4, DocumentTimeout: 10 * time.Minute}
}

// RunRequest parameterises one batch.  Zero fields take the service config.
type RunRequest struct {
	RunID    string
	Simulant string
	Mode     Mode
	DryRun   bool
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service is safe for concurrent runs; each run owns its Table.
type Service struct {
	cfg        Config
	normalizer *normalizer.Normalizer
	locator    *locator.Locator
	extractor  *extractor.Extractor
	scorer     *scoring.Scorer
	aggregator *aggregator.Aggregator
	repo       domain.Repository

	metadata MetadataExtractor
	events   EventPublisher
	metrics  Metrics
	reviewer Reviewer
	queue    *ReviewQueue
	logger   logging.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithMetadataExtractor enables the LLM metadata step.
func WithMetadataExtractor(m MetadataExtractor) Option { return func(s *Service) { s.metadata = m } }

// WithEvents publishes pipeline events.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithMetrics records pipeline counters.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithReviewer answers review prompts in interactive mode.
func WithReviewer(r Reviewer) Option { return func(s *Service) { s.reviewer = r } }

// WithReviewQueue collects review-required fields.
func WithReviewQueue(q *ReviewQueue) Option { return func(s *Service) { s.queue = q } }

// WithScorer replaces the default confidence scorer.
func WithScorer(sc *scoring.Scorer) Option { return func(s *Service) { s.scorer = sc } }

// New builds a Service.  All positional collaborators are required.
func New(
	cfg Config,
	norm *normalizer.Normalizer,
	loc *locator.Locator,
	ext *extractor.Extractor,
	agg *aggregator.Aggregator,
	repo domain.Repository,
	logger logging.Logger,
	opts ...Option,
) (*Service, error) {
	if norm == nil || loc == nil || ext == nil || agg == nil || repo == nil {
		return nil, errors.InvalidParam("extraction: normalizer, locator, extractor, aggregator and repository are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Service{
		cfg:        cfg,
		normalizer: norm,
		locator:    loc,
		extractor:  ext,
		scorer:     scoring.Default(),
		aggregator: agg,
		repo:       repo,
		events:     nopEvents{},
		metrics:    nopMetrics{},
		logger:     logger.Named("extraction"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Queue returns the review queue, or nil.
func (s *Service) Queue() *ReviewQueue { return s.queue }

// ---------------------------------------------------------------------------
// Per-document processing
// ---------------------------------------------------------------------------

// DocumentResult is the outcome of one document.
type DocumentResult struct {
	Document  DocumentRef
	DocID     string
	Format    normalizer.Format
	Kind      locator.Kind
	Records   []*simulant.ExtractionRecord
	Mentioned []string
	Unmatched []string
	// Skipped is true when the document could not be decoded.
	Skipped     bool
	Err         error
	LLMFailures int
}

// ExtractDocument decodes, locates and extracts one document.  A decode
// failure is reported on the result, not as an error.  A non-empty filter
// keeps only records of that entity.
func (s *Service) ExtractDocument(ctx context.Context, ref DocumentRef, data []byte, filter string) *DocumentResult {
	res := &DocumentResult{Document: ref}
	doc, err := s.normalizer.Normalize(ctx, ref.Name, data)
	res.DocID, res.Format = doc.ID, doc.Format
	if err != nil {
		res.Skipped, res.Err = true, err
		s.logger.Warn("document skipped", logging.String("document", ref.Name), logging.Err(err))
		s.metrics.DocumentProcessed(string(doc.Format), "skipped")
		return res
	}

	loc := s.locator.Locate(doc)
	res.Kind = loc.Kind
	res.Unmatched = loc.Unmatched
	for _, e := range loc.Mentioned {
		res.Mentioned = append(res.Mentioned, e.Name)
	}

	for _, t := range loc.Targets {
		if filter != "" && !matchesFilter(t, filter) {
			continue
		}
		rec, ok := s.extractor.Extract(doc, t)
		if !ok {
			continue
		}
		if s.metadata != nil && t.Entity != nil {
			if err := s.addMetadata(ctx, rec, t); err != nil {
				res.LLMFailures++
			}
		}
		s.Finalize(rec)
		res.Records = append(res.Records, rec)
	}

	status := "extracted"
	if len(res.Records) == 0 {
		status = "empty"
	}
	s.metrics.DocumentProcessed(string(doc.Format), status)
	s.logger.Debug("document processed",
		logging.String("document", ref.Name),
		logging.String("kind", string(res.Kind)),
		logging.Strings("mentioned", res.Mentioned),
		logging.Int("records", len(res.Records)))
	return res
}

func matchesFilter(t locator.Target, filter string) bool {
	if strings.EqualFold(t.Name, filter) {
		return true
	}
	if t.Entity == nil {
		return false
	}
	for _, v := range t.Entity.Variants() {
		if strings.EqualFold(v, filter) {
			return true
		}
	}
	return false
}

func (s *Service) addMetadata(ctx context.Context, rec *simulant.ExtractionRecord, t locator.Target) error {
	fields, err := s.metadata.Extract(ctx, t.Name, t.EntityID(), t.Text)
	if err != nil {
		s.logger.Warn("metadata extraction failed",
			logging.String("entity", t.Name), logging.String("document", rec.SourceFile), logging.Err(err))
		return err
	}
	for k, v := range fields {
		rec.Metadata[k] = v
	}
	if len(fields) > 0 {
		rec.AddMethod(simulant.MethodLLM)
	}
	return nil
}

// Finalize reconciles minerals, fills the mineral groups and seals the
// confidence score, in that order.
func (s *Service) Finalize(rec *simulant.ExtractionRecord) {
	if len(rec.MineralComposition) > 0 {
		res := taxonomy.Reconcile(rec.MineralComposition)
		rec.MineralComposition = res.Minerals
		for _, n := range res.Notes {
			rec.AddNote(n)
		}
		if len(res.Dropped) > 0 {
			rec.AddNote("reconciled minerals, dropped: " + strings.Join(res.Dropped, ", "))
		}
	}
	if len(rec.MineralComposition) > 0 || len(rec.MineralGroups) > 0 {
		rec.MineralGroups = taxonomy.MineralGroups(rec.MineralComposition, rec.MineralGroups)
	}
	s.scorer.Seal(rec)
}

// ---------------------------------------------------------------------------
// Batch run
// ---------------------------------------------------------------------------

// Run processes every document of src, aggregates per entity and applies
// the results according to the mode.  Individual document and entity
// failures are tallied, never returned.
func (s *Service) Run(ctx context.Context, src DocumentSource, req RunRequest) (*Report, error) {
	if req.RunID == "" {
		req.RunID = commontypes.GenerateID("run")
	}
	if req.Mode == "" {
		req.Mode = s.cfg.Mode
	}
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	dryRun := req.DryRun || s.cfg.DryRun

	refs, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	report := newReport(req.RunID, req.Mode, dryRun)
	s.logger.Info("run started",
		logging.String("run_id", req.RunID),
		logging.Int("documents", len(refs)),
		logging.String("mode", string(req.Mode)),
		logging.Bool("dry_run", dryRun))

	batchOpts := []common.BatchOption{
		common.WithName("documents"),
		common.WithMaxConcurrency(s.cfg.Workers),
		common.WithItemTimeout(s.cfg.DocumentTimeout),
		common.WithBatchLogger(s.logger),
	}
	if bm, ok := s.metrics.(BatchMetrics); ok {
		batchOpts = append(batchOpts, common.WithBatchObserver(bm.BatchCompleted))
	}
	bp := common.NewBatchProcessor[DocumentRef, *DocumentResult](batchOpts...)
	br, err := bp.Process(ctx, refs, func(ctx context.Context, ref DocumentRef) (*DocumentResult, error) {
		data, err := src.Read(ctx, ref)
		if err != nil {
			s.logger.Warn("document unreadable", logging.String("document", ref.Name), logging.Err(err))
			return &DocumentResult{Document: ref, Skipped: true, Err: err}, nil
		}
		return s.ExtractDocument(ctx, ref, data, req.Simulant), nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*DocumentResult, 0, len(refs))
	for _, ir := range br.Results {
		if ir.Result == nil {
			report.FilesSkipped++
			continue
		}
		results = append(results, ir.Result)
	}
	table := s.collect(ctx, req.RunID, results, report)

	for _, entry := range table.Entries() {
		if ctx.Err() != nil {
			break
		}
		s.applyEntity(ctx, req, dryRun, entry, report)
	}

	report.Finish()
	s.logger.Info("run finished", report.Fields()...)
	return report, ctx.Err()
}

// collect orders results spec sheets first and fills the run table.
func (s *Service) collect(ctx context.Context, runID string, results []*DocumentResult, report *Report) *Table {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Kind == locator.KindSpecSheet && results[j].Kind != locator.KindSpecSheet
	})

	table := NewTable()
	unmatched := make(map[string]bool)
	for _, r := range results {
		if r.Skipped {
			report.FilesSkipped++
		} else {
			report.FilesProcessed++
		}
		report.LLMFailures += r.LLMFailures
		for _, n := range r.Unmatched {
			if !unmatched[n] {
				unmatched[n] = true
				report.Unmatched = append(report.Unmatched, n)
			}
		}
		for _, rec := range r.Records {
			table.Add(rec)
			report.RecordsExtracted++
		}

		ev := simulant.ExtractionCompleted{
			RunID: runID, DocumentID: r.DocID, Document: r.Document.Name,
			Kind: string(r.Kind), Entities: r.Mentioned, Records: len(r.Records), Skipped: r.Skipped,
		}
		if r.Err != nil {
			ev.Error = r.Err.Error()
		}
		if err := s.events.ExtractionCompleted(ctx, ev); err != nil {
			s.logger.Warn("publish extraction event failed", logging.Err(err))
		}
	}
	report.EntitiesFound = table.Len()
	return table
}

func (s *Service) applyEntity(ctx context.Context, req RunRequest, dryRun bool, entry Entry, report *Report) {
	outcome, err := s.aggregator.Aggregate(ctx, entry.EntityName, entry.Records)
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeNoCandidates) {
			s.logger.Warn("aggregation failed", logging.String("entity", entry.EntityName), logging.Err(err))
		}
		return
	}
	if outcome.ArbiterErr != nil {
		report.LLMFailures++
	}
	s.metrics.FieldDisposition(string(simulant.DispositionAutoFill), len(outcome.AutoFill))
	s.metrics.FieldDisposition(string(simulant.DispositionReview), len(outcome.Review))

	if entry.EntityID == "" {
		// Not in the catalog: there is no row to write to.
		s.logger.Info("entity not in catalog, results not persisted",
			logging.String("entity", entry.EntityName), logging.Int("fields", len(outcome.Results)))
		return
	}

	review := outcome.Review
	if req.Mode == ModeConflicts {
		for _, r := range outcome.AutoFill {
			report.Planned = append(report.Planned, simulant.NewReviewItem(req.RunID, entry.EntityID, entry.EntityName, r))
		}
		for _, r := range review {
			s.enqueue(ctx, report, simulant.NewReviewItem(req.RunID, entry.EntityID, entry.EntityName, r))
		}
		return
	}

	writes := make(map[string]string, len(outcome.AutoFill))
	for _, r := range outcome.AutoFill {
		writes[r.Field] = r.StringValue()
	}
	byField := make(map[string]simulant.AggregatedResult, len(outcome.Results))
	for _, r := range outcome.Results {
		byField[r.Field] = r
	}

	var pending []simulant.ReviewItem
	for _, r := range review {
		item := simulant.NewReviewItem(req.RunID, entry.EntityID, entry.EntityName, r)
		if req.Mode == ModeInteractive && s.reviewer != nil {
			d, err := s.reviewer.Review(ctx, item)
			if err != nil {
				s.logger.Warn("review prompt failed", logging.String("field", r.Field), logging.Err(err))
			} else {
				switch d.Action {
				case ActionAccept:
					writes[r.Field] = item.Value
					report.FieldsAccepted++
					continue
				case ActionSet:
					if strings.TrimSpace(d.Value) != "" {
						writes[r.Field] = strings.TrimSpace(d.Value)
						report.FieldsAccepted++
						continue
					}
				}
			}
		}
		pending = append(pending, item)
	}

	conflicts := s.write(ctx, req.RunID, dryRun, entry, writes, report)
	for _, field := range conflicts.fields {
		item := simulant.NewReviewItem(req.RunID, entry.EntityID, entry.EntityName, byField[field])
		item.Value = writes[field]
		item.Existing = conflicts.existing[field]
		report.Conflicts = append(report.Conflicts, item)
	}
	for _, item := range pending {
		s.enqueue(ctx, report, item)
	}
}

func (s *Service) enqueue(ctx context.Context, report *Report, item simulant.ReviewItem) {
	if s.queue != nil {
		item = s.queue.Add(item)
	}
	report.Review = append(report.Review, item)
	report.FieldsQueued++
	if err := s.events.ReviewRequired(ctx, item); err != nil {
		s.logger.Warn("publish review event failed", logging.Err(err))
	}
}

type conflictSet struct {
	fields   []string
	existing map[string]string
}

// write routes fields to their categories and upserts them.  Fields the
// store has no place for are skipped.
func (s *Service) write(ctx context.Context, runID string, dryRun bool, entry Entry, writes map[string]string, report *Report) conflictSet {
	out := conflictSet{existing: make(map[string]string)}
	type routed struct {
		values map[string]string
		fields map[string]string
	}
	byCat := make(map[domain.Category]*routed)
	for _, field := range simulant.SortedKeys(writes) {
		cat, key, ok := domain.Route(field)
		if !ok {
			s.logger.Debug("field has no column", logging.String("field", field))
			continue
		}
		r := byCat[cat]
		if r == nil {
			r = &routed{values: make(map[string]string), fields: make(map[string]string)}
			byCat[cat] = r
		}
		r.values[key] = writes[field]
		r.fields[key] = field
	}

	for _, cat := range []domain.Category{domain.CategoryChemical, domain.CategoryMineral, domain.CategoryMineralGroup, domain.CategoryMetadata} {
		r := byCat[cat]
		if r == nil {
			continue
		}
		if dryRun {
			for range r.values {
				report.addRow(cat)
				report.FieldsAutoFilled++
			}
			continue
		}
		results, err := s.repo.Upsert(ctx, entry.EntityID, cat, r.values)
		if err != nil {
			report.StoreErrors++
			s.metrics.StoreWrite(string(cat), "error")
			s.logger.Error("store write failed",
				logging.String("entity", entry.EntityName), logging.String("category", string(cat)), logging.Err(err))
			continue
		}
		written := make(map[string]string)
		for key, fr := range results {
			s.metrics.StoreWrite(string(cat), string(fr.Status))
			switch fr.Status {
			case domain.FieldWritten:
				written[key] = r.values[key]
				report.addRow(cat)
				report.FieldsAutoFilled++
			case domain.FieldConflict:
				out.fields = append(out.fields, r.fields[key])
				out.existing[r.fields[key]] = fr.Existing
			case domain.FieldInvalid:
				s.logger.Warn("store rejected value",
					logging.String("entity", entry.EntityName), logging.String("field", r.fields[key]),
					logging.String("reason", fr.Reason))
			}
		}
		if len(written) > 0 {
			ev := simulant.RecordUpserted{RunID: runID, EntityID: entry.EntityID, Category: string(cat), Fields: written}
			if err := s.events.RecordUpserted(ctx, ev); err != nil {
				s.logger.Warn("publish upsert event failed", logging.Err(err))
			}
		}
	}
	sort.Strings(out.fields)
	return out
}

// Describe renders a review item on one line.
func Describe(it simulant.ReviewItem) string {
	s := fmt.Sprintf("%s %s = %q (confidence %.2f, %d sources)", it.EntityName, it.Field, it.Value, it.Confidence, it.NumSources)
	if len(it.AllValues) > 1 {
		s += fmt.Sprintf(" candidates %v", it.AllValues)
	}
	if it.Existing != "" {
		s += fmt.Sprintf(" existing %q", it.Existing)
	}
	return s
}
