package normalizer

import (
	"bytes"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean applies NFKC folding (subscript ₂ → 2, µ → μ, ligatures, NBSP),
// unifies line endings and strips trailing blanks from every line.  Line
// structure is preserved because multi-line block parsing depends on it.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00ad", "")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\f\v")
	}
	return strings.Join(lines, "\n")
}

// DetectFormat picks a format from the file extension, falling back to
// magic-byte sniffing when data is available.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx", ".doc":
		return FormatDOCX
	case ".pptx":
		return FormatPPTX
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".text", ".md":
		return FormatText
	}
	return sniff(data)
}

func sniff(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		if kind, err := openXMLKind(data); err == nil {
			return kind
		}
		return FormatUnknown
	}
	trimmed := bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(trimmed, []byte("<!doctype html")) || bytes.HasPrefix(trimmed, []byte("<html")) ||
		bytes.Contains(trimmed, []byte("<body")) {
		return FormatHTML
	}
	return FormatUnknown
}
