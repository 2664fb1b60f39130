// Package locator finds which catalog entities a normalised document talks
// about, classifies the document as a single-entity spec sheet or a
// multi-entity paper, and cuts the text each entity's extraction should see.
package locator

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
)

// Kind is the document classification.
type Kind string

const (
	KindSpecSheet   Kind = "spec_sheet"
	KindMultiEntity Kind = "multi_entity"
)

// Reason records which classification rule fired.
type Reason string

const (
	ReasonFilename    Reason = "filename_marker"
	ReasonTitlePhrase Reason = "title_phrase"
	ReasonSingleName  Reason = "single_mention"
	ReasonNone        Reason = ""
)

var (
	filenameMarkers = []string{"tds", "spec", "sheet", "datasheet", "fact"}
	titlePhrases    = []string{"technical data sheet", "fact sheet", "specification sheet"}

	filenameNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^([A-Z]{2,3}-\d+[A-Z]?)`),
		regexp.MustCompile(`(?i)([A-Z]{2,3}-\d+[A-Z]?)[_\s-]`),
		regexp.MustCompile(`(?i)Simulant[:\s]+([A-Z0-9-]+)`),
	}
)

// Config sizes the windows cut around entity mentions.
type Config struct {
	// WindowChars is the radius of the general context window.
	WindowChars int `mapstructure:"window_chars"`
	// CompositionWindowChars is the radius used for oxide and mineral text.
	CompositionWindowChars int `mapstructure:"composition_window_chars"`
	// TitleScanChars bounds the spec-sheet phrase search.
	TitleScanChars int `mapstructure:"title_scan_chars"`
	// NameScanChars bounds the catalog-name search in spec-sheet text.
	NameScanChars int `mapstructure:"name_scan_chars"`
}

// DefaultConfig returns the standard window sizes.
func DefaultConfig() Config {
	return Config{WindowChars: 1500, CompositionWindowChars: 2000, TitleScanChars: 2000, NameScanChars: 500}
}

// Target is one entity to extract from a document together with the
// text and tables its extraction is restricted to.
type Target struct {
	// Entity is nil when a spec sheet names a simulant the catalog lacks.
	Entity *domain.Entity
	// Name is the entity's canonical name, or the raw name found.
	Name string
	// Text feeds basic-info and physical-property extraction.
	Text string
	// CompositionText feeds oxide and mineral extraction.
	CompositionText string
	Tables          []normalizer.Table
	// WholeDocument is true for spec sheets.
	WholeDocument bool
}

// EntityID returns the catalog id, or "" for an unmatched target.
func (t Target) EntityID() string {
	if t.Entity == nil {
		return ""
	}
	return t.Entity.ID
}

// Result is the outcome of locating entities in one document.
type Result struct {
	Kind      Kind
	Reason    Reason
	// Mentioned is in catalog registration order, not order of appearance.
	Mentioned []*domain.Entity
	Targets   []Target
	// Unmatched holds names a spec sheet declares that are not in the
	// catalog.
	Unmatched []string
}

// IDs returns the distinct mentioned entity ids in catalog order.
func (r *Result) IDs() []string {
	out := make([]string, 0, len(r.Mentioned))
	for _, e := range r.Mentioned {
		out = append(out, e.ID)
	}
	return out
}

// Locator is stateless apart from its catalog and is safe for concurrent use.
type Locator struct {
	catalog *domain.Catalog
	cfg     Config
	logger  logging.Logger
}

// New builds a Locator.  Zero config fields take their defaults.
func New(catalog *domain.Catalog, cfg Config, logger logging.Logger) *Locator {
	def := DefaultConfig()
	if cfg.WindowChars <= 0 {
		cfg.WindowChars = def.WindowChars
	}
	if cfg.CompositionWindowChars <= 0 {
		cfg.CompositionWindowChars = def.CompositionWindowChars
	}
	if cfg.TitleScanChars <= 0 {
		cfg.TitleScanChars = def.TitleScanChars
	}
	if cfg.NameScanChars <= 0 {
		cfg.NameScanChars = def.NameScanChars
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Locator{catalog: catalog, cfg: cfg, logger: logger.Named("locator")}
}

// Catalog returns the catalog the locator matches against.
func (l *Locator) Catalog() *domain.Catalog { return l.catalog }

// Locate classifies doc and returns one Target per entity to extract.  A
// document that mentions no entity and is not a spec sheet yields a Result
// with no targets; that is not an error.
func (l *Locator) Locate(doc *normalizer.Document) *Result {
	mentioned := l.catalog.Mentioned(doc.Text)
	res := &Result{Mentioned: mentioned, Kind: KindMultiEntity}

	if ok, reason := l.Classify(doc.Name, doc.Text, len(mentioned)); ok {
		res.Kind = KindSpecSheet
		res.Reason = reason
		entity, raw := l.ResolveName(doc.Name, doc.Text, mentioned)
		if entity == nil && raw == "" {
			l.logger.Debug("spec sheet without a resolvable name", logging.String("document", doc.Name))
			return res
		}
		t := Target{
			Entity:          entity,
			Name:            raw,
			Text:            doc.Text,
			CompositionText: doc.Text,
			Tables:          doc.Tables,
			WholeDocument:   true,
		}
		if entity != nil {
			t.Name = entity.Name
		} else {
			res.Unmatched = append(res.Unmatched, raw)
		}
		res.Targets = append(res.Targets, t)
		l.logger.Debug("spec sheet located",
			logging.String("document", doc.Name),
			logging.String("reason", string(reason)),
			logging.String("name", t.Name))
		return res
	}

	for _, e := range mentioned {
		spans := e.Mentions(doc.Text)
		res.Targets = append(res.Targets, Target{
			Entity:          e,
			Name:            e.Name,
			Text:            Window(doc.Text, spans, l.cfg.WindowChars),
			CompositionText: Window(doc.Text, spans, l.cfg.CompositionWindowChars),
			Tables:          TablesMentioning(doc.Tables, e),
		})
	}
	l.logger.Debug("multi-entity document located",
		logging.String("document", doc.Name),
		logging.Strings("entities", res.IDs()))
	return res
}

// Classify applies the spec-sheet rules in priority order: a filename
// marker, a title phrase near the top of the text, then exactly one
// mentioned entity.
func (l *Locator) Classify(filename, text string, mentionedCount int) (bool, Reason) {
	lower := strings.ToLower(filepath.Base(filename))
	for _, m := range filenameMarkers {
		if strings.Contains(lower, m) {
			return true, ReasonFilename
		}
	}
	head := strings.ToLower(truncate(text, l.cfg.TitleScanChars))
	for _, p := range titlePhrases {
		if strings.Contains(head, p) {
			return true, ReasonTitlePhrase
		}
	}
	if mentionedCount == 1 {
		return true, ReasonSingleName
	}
	return false, ReasonNone
}

// ResolveName picks the entity a spec sheet describes.  Order: a catalog
// name inside the filename stem, a simulant-code pattern in the filename,
// a catalog name in the opening text, then the single mentioned entity.
// When only a filename pattern matches and the code is not catalogued the
// raw code is returned with a nil entity.
func (l *Locator) ResolveName(filename, text string, mentioned []*domain.Entity) (*domain.Entity, string) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	if e := l.nameInText(stem); e != nil {
		return e, e.Name
	}

	var raw string
	for _, re := range filenameNamePatterns {
		if m := re.FindStringSubmatch(stem); m != nil {
			raw = strings.ToUpper(m[1])
			break
		}
	}
	if raw != "" {
		if e, ok := l.catalog.Lookup(raw); ok {
			return e, e.Name
		}
	}

	if e := l.nameInText(truncate(text, l.cfg.NameScanChars)); e != nil {
		return e, e.Name
	}
	if len(mentioned) == 1 {
		return mentioned[0], mentioned[0].Name
	}
	return nil, raw
}

// nameInText returns the catalog entity whose variant occurs in s, the
// longest variant winning so "JSC-1A" beats "JSC-1".
func (l *Locator) nameInText(s string) *domain.Entity {
	// filename stems use '_' as a separator; treat it as a word break
	s = strings.ReplaceAll(s, "_", " ")
	var (
		best    *domain.Entity
		bestLen int
	)
	for _, e := range l.catalog.Mentioned(s) {
		for _, span := range e.Mentions(s) {
			if n := span[1] - span[0]; n > bestLen {
				best, bestLen = e, n
			}
		}
	}
	return best
}

// Window joins, with newlines, the text within radius bytes of every span.
// Window edges are moved inward to rune boundaries.
func Window(text string, spans [][]int, radius int) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		start := s[0] - radius
		if start < 0 {
			start = 0
		}
		end := s[1] + radius
		if end > len(text) {
			end = len(text)
		}
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end--
		}
		parts = append(parts, text[start:end])
	}
	return strings.Join(parts, "\n")
}

// TablesMentioning returns the tables whose serialised text mentions e.
func TablesMentioning(tables []normalizer.Table, e *domain.Entity) []normalizer.Table {
	var out []normalizer.Table
	for _, t := range tables {
		if e.MentionedIn(t.Text()) {
			out = append(out, t)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
