package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Recognizer performs optical character recognition on a scanned PDF.
type Recognizer interface {
	Recognize(ctx context.Context, pdfData []byte) (string, error)
}

// ErrOCRUnavailable is returned when the OCR toolchain is not installed.
var ErrOCRUnavailable = errors.New(errors.ErrCodeOCRUnavailable, "ocr engine unavailable")

// TesseractOCR rasterises pages with pdftoppm and reads them with tesseract.
// Both binaries are looked up on PATH at call time.
type TesseractOCR struct {
	DPI      int
	Language string
}

// NewTesseractOCR returns a recogniser at 300 dpi, English.
func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{DPI: 300, Language: "eng"}
}

// Available reports whether both binaries are on PATH.
func (o *TesseractOCR) Available() bool {
	_, err1 := exec.LookPath("pdftoppm")
	_, err2 := exec.LookPath("tesseract")
	return err1 == nil && err2 == nil
}

// Recognize implements Recognizer.
func (o *TesseractOCR) Recognize(ctx context.Context, pdfData []byte) (string, error) {
	pdftoppm, err := exec.LookPath("pdftoppm")
	if err != nil {
		return "", ErrOCRUnavailable.WithDetail("pdftoppm not on PATH")
	}
	tesseract, err := exec.LookPath("tesseract")
	if err != nil {
		return "", ErrOCRUnavailable.WithDetail("tesseract not on PATH")
	}

	dir, err := os.MkdirTemp("", "regolith-ocr-*")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "ocr temp dir")
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(src, pdfData, 0o600); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "ocr temp file")
	}

	dpi := o.DPI
	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, pdftoppm, "-r", fmt.Sprint(dpi), "-png", src, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecodeFailed, "pdftoppm").WithDetail(strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "ocr page glob")
	}
	sort.Strings(pages)

	lang := o.Language
	if lang == "" {
		lang = "eng"
	}
	var sb strings.Builder
	for i, page := range pages {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, tesseract, page, "stdout", "-l", lang)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeDecodeFailed, "tesseract").WithDetail(strings.TrimSpace(stderr.String()))
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i+1)
		sb.Write(stdout.Bytes())
	}
	return sb.String(), nil
}
