// Package normalizer turns raw documents (PDF, DOCX, PPTX, HTML) into one
// plain-text stream plus the tables found in them.  It knows nothing about
// simulants.
package normalizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/common"
)

// Format is a supported document format.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatPPTX    Format = "pptx"
	FormatHTML    Format = "html"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// Table is an ordered sequence of rows, each an ordered sequence of cells.
type Table [][]string

// Text serialises the table one row per line, cells separated by " | ".
func (t Table) Text() string {
	var sb strings.Builder
	for _, row := range t {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Document is the normalised form of one input file.
type Document struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Format  Format   `json:"format"`
	Text    string   `json:"text"`
	Tables  []Table  `json:"tables,omitempty"`
	UsedOCR bool     `json:"used_ocr"`
	Notes   []string `json:"notes,omitempty"`
}

// Config controls the OCR fallback.
type Config struct {
	// OCREnabled turns the fallback on.
	OCREnabled bool `mapstructure:"ocr_enabled"`
	// OCRMinChars is the direct-text length under which OCR is attempted.
	OCRMinChars int `mapstructure:"ocr_min_chars"`
	// OCRTimeout bounds one OCR pass.
	OCRTimeout time.Duration `mapstructure:"ocr_timeout"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{OCREnabled: true, OCRMinChars: 500, OCRTimeout: 5 * time.Minute}
}

// Normalizer decodes documents.  It is safe for concurrent use.
type Normalizer struct {
	cfg    Config
	ocr    Recognizer
	logger logging.Logger
}

// New builds a Normalizer.  ocr may be nil.
func New(cfg Config, ocr Recognizer, logger logging.Logger) *Normalizer {
	if cfg.OCRMinChars <= 0 {
		cfg.OCRMinChars = 500
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Normalizer{cfg: cfg, ocr: ocr, logger: logger.Named("normalizer")}
}

// NormalizeFile reads path and normalises it.
func (n *Normalizer) NormalizeFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		doc := &Document{ID: string(common.NewID()), Name: filepath.Base(path), Format: DetectFormat(path, nil)}
		return doc, errors.Wrap(err, errors.ErrCodeDecodeFailed, "read document").WithDetail(path)
	}
	return n.Normalize(ctx, filepath.Base(path), data)
}

// Normalize decodes data.  The returned Document is never nil: on a decode
// failure it carries empty text and no tables, and the error is a
// DOC_xxx AppError the caller logs and counts as a skip.
func (n *Normalizer) Normalize(ctx context.Context, name string, data []byte) (*Document, error) {
	doc := &Document{ID: string(common.NewID()), Name: name, Format: DetectFormat(name, data)}

	var (
		text   string
		tables []Table
		err    error
	)
	switch doc.Format {
	case FormatPDF:
		text, tables, err = decodePDF(data)
	case FormatDOCX:
		text, tables, err = decodeDOCX(data)
	case FormatPPTX:
		text, tables, err = decodePPTX(data)
	case FormatHTML:
		text, tables, err = decodeHTML(data)
	case FormatText:
		text = string(data)
	default:
		return doc, errors.New(errors.ErrCodeUnsupportedFormat, "unsupported document format").WithDetail(name)
	}
	if err != nil {
		return doc, errors.Wrap(err, errors.ErrCodeDecodeFailed, "decode "+string(doc.Format)).WithDetail(name)
	}

	doc.Text = Clean(text)
	for _, t := range tables {
		if ct := cleanTable(t); len(ct) > 0 {
			doc.Tables = append(doc.Tables, ct)
		}
	}

	if doc.Format == FormatPDF {
		n.ocrFallback(ctx, doc, data)
	}

	n.logger.Debug("document normalised",
		logging.String("name", name),
		logging.String("format", string(doc.Format)),
		logging.Int("chars", len(doc.Text)),
		logging.Int("tables", len(doc.Tables)),
		logging.Bool("ocr", doc.UsedOCR))
	return doc, nil
}

// ocrFallback replaces near-empty direct text with OCR output.  Any OCR
// failure leaves the direct text in place.
func (n *Normalizer) ocrFallback(ctx context.Context, doc *Document, data []byte) {
	if !n.cfg.OCREnabled || n.ocr == nil {
		return
	}
	if len(strings.TrimSpace(doc.Text)) >= n.cfg.OCRMinChars {
		return
	}
	if n.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.OCRTimeout)
		defer cancel()
	}
	text, err := n.ocr.Recognize(ctx, data)
	if err != nil {
		n.logger.Debug("ocr fallback skipped", logging.String("name", doc.Name), logging.Err(err))
		return
	}
	text = Clean(text)
	if strings.TrimSpace(text) == "" {
		return
	}
	doc.Text = text
	doc.UsedOCR = true
	doc.Notes = append(doc.Notes, "used OCR for text extraction (scanned document)")
}

func cleanTable(t Table) Table {
	var out Table
	for _, row := range t {
		cells := make([]string, len(row))
		nonEmpty := false
		for i, c := range row {
			cells[i] = strings.TrimSpace(Clean(c))
			if cells[i] != "" {
				nonEmpty = true
			}
		}
		if nonEmpty {
			out = append(out, cells)
		}
	}
	return out
}
