package extraction

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// ---------------------------------------------------------------------------
// Document sources
// ---------------------------------------------------------------------------

// DocumentRef identifies one input document within a source.
type DocumentRef struct {
	Name     string    `json:"name"`
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// DocumentSource lists and reads input documents.
type DocumentSource interface {
	List(ctx context.Context) ([]DocumentRef, error)
	Read(ctx context.Context, ref DocumentRef) ([]byte, error)
}

// DirSource reads every supported document below a local directory.
type DirSource struct {
	root string
}

// NewDirSource returns a source over root.
func NewDirSource(root string) *DirSource { return &DirSource{root: root} }

// List walks root and returns supported files sorted by path.
func (d *DirSource) List(ctx context.Context) ([]DocumentRef, error) {
	var refs []DocumentRef
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() || !Supported(e.Name()) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		refs = append(refs, DocumentRef{Name: e.Name(), Key: path, Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "list documents").WithDetail(d.root)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// Read returns the file contents.
func (d *DirSource) Read(_ context.Context, ref DocumentRef) ([]byte, error) {
	data, err := os.ReadFile(ref.Key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "read document").WithDetail(ref.Key)
	}
	return data, nil
}

// Supported reports whether a file name has a decodable extension.
func Supported(name string) bool {
	switch normalizer.DetectFormat(name, nil) {
	case normalizer.FormatPDF, normalizer.FormatDOCX, normalizer.FormatPPTX, normalizer.FormatHTML, normalizer.FormatText:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Collaborator ports
// ---------------------------------------------------------------------------

// MetadataExtractor is the LLM-backed provenance extraction capability.
type MetadataExtractor interface {
	Extract(ctx context.Context, entityName, entityID, text string) (map[string]string, error)
}

// EventPublisher announces pipeline progress.  Failures are logged by the
// caller and never abort a run.
type EventPublisher interface {
	ExtractionCompleted(ctx context.Context, e simulant.ExtractionCompleted) error
	ReviewRequired(ctx context.Context, item simulant.ReviewItem) error
	RecordUpserted(ctx context.Context, e simulant.RecordUpserted) error
}

// Metrics receives pipeline counters.
type Metrics interface {
	DocumentProcessed(format, status string)
	FieldDisposition(disposition string, n int)
	StoreWrite(category, status string)
}

// BatchMetrics is optionally implemented by a Metrics to observe each run's
// document batch.
type BatchMetrics interface {
	BatchCompleted(name string, total, succeeded, failed int, elapsed time.Duration)
}

// Action is a reviewer's decision on one field.
type Action string

const (
	ActionAccept Action = "accept"
	ActionSkip   Action = "skip"
	ActionSet    Action = "set"
)

// Decision is the answer to one review prompt.  Value is used with ActionSet.
type Decision struct {
	Action Action
	Value  string
}

// Reviewer decides review-required fields in interactive mode.
type Reviewer interface {
	Review(ctx context.Context, item simulant.ReviewItem) (Decision, error)
}

type nopEvents struct{}

func (nopEvents) ExtractionCompleted(context.Context, simulant.ExtractionCompleted) error { return nil }
func (nopEvents) ReviewRequired(context.Context, simulant.ReviewItem) error               { return nil }
func (nopEvents) RecordUpserted(context.Context, simulant.RecordUpserted) error           { return nil }

type nopMetrics struct{}

func (nopMetrics) DocumentProcessed(string, string) {}
func (nopMetrics) FieldDisposition(string, int)     {}
func (nopMetrics) StoreWrite(string, string)        {}
