package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// cellGapFactor is the horizontal gap, in multiples of the font size, that
// separates two table cells on the same text row.
const cellGapFactor = 1.5

// decodePDF reads text row by row so that line structure (header line,
// subscript line, value line) survives.  Rows that split into three or more
// widely spaced cells are also collected as table rows.
func decodePDF(data []byte) (text string, tables []Table, err error) {
	defer func() {
		// the pdf package panics on some malformed cross-reference tables
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decoder panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("pdf reader: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rerr := page.GetTextByRow()
		if rerr != nil {
			plain, perr := page.GetPlainText(nil)
			if perr != nil {
				continue
			}
			sb.WriteString(plain)
			sb.WriteByte('\n')
			continue
		}

		var current Table
		for _, row := range rows {
			cells := rowCells(row.Content)
			sb.WriteString(strings.Join(cells, " "))
			sb.WriteByte('\n')
			if len(cells) >= 3 {
				current = append(current, cells)
				continue
			}
			if len(current) >= 2 {
				tables = append(tables, current)
			}
			current = nil
		}
		if len(current) >= 2 {
			tables = append(tables, current)
		}
	}
	return sb.String(), tables, nil
}

// rowCells joins the glyph runs of one row into words and words into cells.
func rowCells(content pdf.TextHorizontal) []string {
	var (
		cells []string
		cell  strings.Builder
		prev  *pdf.Text
	)
	for i := range content {
		t := content[i]
		if prev != nil {
			gap := t.X - (prev.X + prev.W)
			size := prev.FontSize
			if size <= 0 {
				size = 10
			}
			switch {
			case gap > size*cellGapFactor:
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case gap > size*0.15:
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(t.S)
		prev = &content[i]
	}
	if s := strings.TrimSpace(cell.String()); s != "" || len(cells) == 0 {
		cells = append(cells, s)
	}
	return cells
}
