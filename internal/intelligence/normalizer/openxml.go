package normalizer

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// openXMLKind tells DOCX from PPTX by the parts present in the archive.
func openXMLKind(data []byte) (Format, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FormatUnknown, err
	}
	hasWord, hasPpt := false, false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return FormatDOCX, nil
	case hasPpt && !hasWord:
		return FormatPPTX, nil
	default:
		return FormatUnknown, fmt.Errorf("zip does not look like docx or pptx")
	}
}

func decodeDOCX(data []byte) (string, []Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("docx archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			b, err := readZipFile(f)
			if err != nil {
				return "", nil, err
			}
			return walkOpenXML(b)
		}
	}
	return "", nil, fmt.Errorf("docx archive has no word/document.xml")
}

func decodePPTX(data []byte) (string, []Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("pptx archive: %w", err)
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(f.Name, "ppt/slides/slide"), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, f: f})
	}
	if len(slides) == 0 {
		return "", nil, fmt.Errorf("pptx archive has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var (
		sb     strings.Builder
		tables []Table
	)
	for _, s := range slides {
		b, err := readZipFile(s.f)
		if err != nil {
			return "", nil, err
		}
		text, ts, err := walkOpenXML(b)
		if err != nil {
			return "", nil, fmt.Errorf("slide %d: %w", s.n, err)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
		tables = append(tables, ts...)
	}
	return sb.String(), tables, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// walkOpenXML streams a WordprocessingML or DrawingML part.  Both use the
// local names p (paragraph), t (text run), tbl, tr and tc, so one walker
// serves DOCX and PPTX.  Paragraphs become lines; table rows are also
// emitted as tab-separated lines.
func walkOpenXML(b []byte) (string, []Table, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))

	var (
		sb     strings.Builder
		para   strings.Builder
		tables []Table
		stack  []Table
		row    []string
		cell   strings.Builder
		inCell int
	)
	flushPara := func() {
		line := para.String()
		para.Reset()
		if inCell > 0 {
			if cell.Len() > 0 && line != "" {
				cell.WriteByte(' ')
			}
			cell.WriteString(line)
			return
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &el); err == nil {
					para.WriteString(v)
				}
			case "tab":
				para.WriteByte('\t')
			case "br":
				flushPara()
			case "tbl":
				stack = append(stack, nil)
			case "tr":
				row = nil
			case "tc":
				inCell++
				cell.Reset()
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				flushPara()
			case "tc":
				if para.Len() > 0 {
					flushPara()
				}
				row = append(row, strings.TrimSpace(cell.String()))
				cell.Reset()
				inCell--
			case "tr":
				if n := len(stack); n > 0 {
					stack[n-1] = append(stack[n-1], row)
					sb.WriteString(strings.Join(row, "\t"))
					sb.WriteByte('\n')
				}
				row = nil
			case "tbl":
				if n := len(stack); n > 0 {
					if len(stack[n-1]) > 0 {
						tables = append(tables, stack[n-1])
					}
					stack = stack[:n-1]
				}
			}
		}
	}
	if para.Len() > 0 {
		flushPara()
	}
	return sb.String(), tables, nil
}
