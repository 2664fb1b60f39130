package extractor

import (
	"sort"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/taxonomy"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// ─────────────────────────────────────────────────────────────────────────────
// Table position
// ─────────────────────────────────────────────────────────────────────────────

// tableStrategy aligns the Nth recognised header with the Nth numeric token
// of a nearby value row.  Column indices are ignored because decoded tables
// often merge or split cells.
type tableStrategy struct {
	categories []category
	isHeader   func(row []string) bool
}

func (tableStrategy) Name() simulant.Method { return simulant.MethodTablePosition }

func (s tableStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	set := func(name string, v float64) {
		if !inPercentRange(v) {
			return
		}
		if _, ok := found[name]; ok {
			return
		}
		if _, ok := out[name]; ok {
			return
		}
		out[name] = v
	}

	for _, t := range in.Tables {
		for i, row := range t {
			if !s.isHeader(row) {
				continue
			}
			headers := headerCategories(row, s.categories)
			for j := i + 1; j <= i+2 && j < len(t); j++ {
				if !in.rowBelongs(t[j]) {
					continue
				}
				vals := rowNumbers(t[j])
				if len(vals) == 0 {
					continue
				}
				for k, name := range headers {
					if k >= len(vals) {
						break
					}
					set(name, vals[k])
				}
				break
			}
		}
		if in.Entity == nil {
			for name, v := range verticalPairs(t, s.categories, s.isHeader) {
				set(name, v)
			}
		}
	}
	return out
}

type labelHit struct {
	start, end int
	name       string
}

// headerCategories returns the categories named in a header row in
// left-to-right order.  With two or more non-empty cells each cell names at
// most one category; a row decoded as a single cell may name several.
func headerCategories(row []string, cats []category) []string {
	nonEmpty := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			nonEmpty++
		}
	}

	var names []string
	seen := make(map[string]bool)
	for _, cell := range row {
		hits := labelHits(cell, cats)
		if nonEmpty >= 2 && len(hits) > 1 {
			hits = hits[:1]
		}
		for _, h := range hits {
			if !seen[h.name] {
				seen[h.name] = true
				names = append(names, h.name)
			}
		}
	}
	return names
}

// labelHits finds every category label in s, ordered by position, dropping
// matches that overlap an earlier one.
func labelHits(s string, cats []category) []labelHit {
	var hits []labelHit
	for _, c := range cats {
		if loc := c.label.FindStringIndex(s); loc != nil {
			hits = append(hits, labelHit{start: loc[0], end: loc[1], name: c.Name})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end-hits[i].start > hits[j].end-hits[j].start
	})
	out := hits[:0]
	prevEnd := -1
	for _, h := range hits {
		if h.start < prevEnd {
			continue
		}
		out = append(out, h)
		prevEnd = h.end
	}
	return out
}

// verticalPairs reads "label | value" rows: the first cell names exactly one
// category and the remaining cells hold exactly one number.
func verticalPairs(t normalizer.Table, cats []category, isHeader func([]string) bool) map[string]float64 {
	out := make(map[string]float64)
	for _, row := range t {
		if len(row) < 2 || isHeader(row) {
			continue
		}
		hits := labelHits(row[0], cats)
		if len(hits) != 1 {
			continue
		}
		vals := rowNumbers(row[1:])
		if len(vals) != 1 {
			continue
		}
		if _, ok := out[hits[0].name]; !ok {
			out[hits[0].name] = vals[0]
		}
	}
	return out
}

// rowNumbers returns the numeric tokens of a row in order.  Cells that are
// not numbers as a whole are split on whitespace, so entity names and unit
// labels are skipped.
func rowNumbers(row []string) []float64 {
	var out []float64
	for _, cell := range row {
		if v, ok := numericToken(cell); ok {
			out = append(out, v)
			continue
		}
		for _, f := range strings.Fields(cell) {
			if v, ok := numericToken(f); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

func joinRow(row []string, sep string) string { return strings.Join(row, sep) }

func isOxideHeaderRow(row []string) bool {
	text := joinRow(row, " ")
	n := 0
	for _, tok := range tableOxideTokens {
		if strings.Contains(text, tok) {
			n++
		}
	}
	return n >= 3
}

func isMineralHeaderRow(row []string) bool {
	text := joinRow(row, " ")
	if isGroupHeader(strings.ToLower(text)) {
		return false
	}
	n := 0
	for _, c := range mineralCategories {
		if c.label.MatchString(text) {
			n++
		}
	}
	return n >= 3
}

// isGroupHeader reports a header naming at least four of the five coarse
// groups and no detailed mineral.
func isGroupHeader(lower string) bool {
	n := 0
	for _, g := range groupHeaders {
		if strings.Contains(lower, g.Keyword) {
			n++
		}
	}
	return n >= 4 && !hasDetailed(lower)
}

func hasDetailed(lower string) bool {
	return countDetailed(lower) > 0
}

func countDetailed(lower string) int {
	n := 0
	for _, d := range detailedHeaders {
		if strings.Contains(lower, d) {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Inline text
// ─────────────────────────────────────────────────────────────────────────────

// inlineStrategy searches "<synonym> <number>" per category, scoped to a
// named section when the text has one.  The first in-range value wins.
type inlineStrategy struct {
	categories []category
	sections   []string
}

func (inlineStrategy) Name() simulant.Method { return simulant.MethodInlineRegex }

func (s inlineStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	text := in.Text
	if sec, ok := FindSection(in.Text, s.sections); ok {
		text = sec
	}
	return inlineValues(text, s.categories, found)
}

func inlineValues(text string, cats []category, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range cats {
		if _, ok := found[c.Name]; ok {
			continue
		}
		if v, ok := firstInline(text, c); ok {
			out[c.Name] = v
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Multi-line blocks
// ─────────────────────────────────────────────────────────────────────────────

// isSubscriptLine reports a line holding only subscript digits, e.g. the
// "2 2 3 2 3" a PDF emits under an oxide header.
func isSubscriptLine(line string) bool {
	cleaned := strings.ReplaceAll(line, " ", "")
	if cleaned == "" || len(cleaned) >= 20 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func lineNumbers(line string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllStringSubmatch(line, -1) {
		if v, ok := parseFloat(m[1]); ok {
			out = append(out, v)
		}
	}
	return out
}

type position struct {
	pos  int
	name string
}

func sortPositions(ps []position) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].pos < ps[j].pos })
}

// oxideBlockStrategy reads a header line of oxide stems followed, within
// three lines, by a line of at least five decimal values.
type oxideBlockStrategy struct{}

func (oxideBlockStrategy) Name() simulant.Method { return simulant.MethodMultilineBlock }

func (oxideBlockStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	lines := strings.Split(in.Text, "\n")
	for i, line := range lines {
		n := 0
		for _, h := range oxideShortHeaders {
			if strings.Contains(line, h.Short) {
				n++
			}
		}
		if n < 5 {
			continue
		}
		for off := 1; off <= 3 && i+off < len(lines); off++ {
			values := lines[i+off]
			if isSubscriptLine(values) {
				continue
			}
			if len(blockValuePattern.FindAllString(values, -1)) < 5 {
				continue
			}
			alignOxides(line, values, found, out)
			break
		}
		if len(found)+len(out) >= 5 {
			break
		}
	}
	return out
}

func alignOxides(header, values string, found, out map[string]float64) {
	var ps []position
	for _, h := range oxideShortHeaders {
		if p := strings.Index(header, h.Short); p >= 0 {
			ps = append(ps, position{p, h.Oxide})
		}
	}
	sortPositions(ps)
	vals := lineNumbers(values)
	for k, p := range ps {
		if k >= len(vals) {
			break
		}
		assign(p.name, vals[k], found, out)
	}
}

func assign(name string, v float64, found, out map[string]float64) {
	if !inPercentRange(v) {
		return
	}
	if _, ok := found[name]; ok {
		return
	}
	if _, ok := out[name]; ok {
		return
	}
	out[name] = v
}

// mineralBlock is a header line and its value line.
type mineralBlock struct {
	header string
	values string
}

// mineralBlocks finds header lines followed within two lines by a line of
// at least three numbers.  A header wrapped onto the next line is joined.
func mineralBlocks(text string) []mineralBlock {
	lines := strings.Split(text, "\n")
	var out []mineralBlock
	for i, line := range lines {
		values, valuesOff := "", 0
		for off := 1; off <= 2 && i+off < len(lines); off++ {
			cand := lines[i+off]
			if len(lineNumbers(cand)) >= 3 && !isSubscriptLine(cand) &&
				!strings.HasPrefix(strings.ToLower(cand), "table") {
				values, valuesOff = cand, off
				break
			}
		}
		if values == "" {
			continue
		}
		header := line
		if valuesOff == 2 {
			next := lines[i+1]
			if !startsWithDigit(next) && len(next) < 50 {
				header = line + " " + next
			}
		}
		out = append(out, mineralBlock{header: header, values: values})
	}
	return out
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// mineralBlockStrategy reads detailed-mineral blocks: headers naming at
// least three specific minerals.
type mineralBlockStrategy struct{}

func (mineralBlockStrategy) Name() simulant.Method { return simulant.MethodMultilineBlock }

func (mineralBlockStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, b := range mineralBlocks(in.Text) {
		lower := strings.ToLower(b.header)
		if isGroupHeader(lower) || countDetailed(lower) < 3 {
			continue
		}
		var ps []position
		used := make(map[string]bool)
		for _, m := range detailedHeaderMinerals {
			p := strings.Index(lower, m.Keyword)
			if p < 0 || used[m.Mineral] {
				continue
			}
			near := false
			for _, q := range ps {
				if abs(p-q.pos) < 3 {
					near = true
					break
				}
			}
			if near {
				continue
			}
			used[m.Mineral] = true
			ps = append(ps, position{p, m.Mineral})
		}
		sortPositions(ps)
		vals := lineNumbers(b.values)
		for k, p := range ps {
			if k >= len(vals) {
				break
			}
			assign(p.name, vals[k], found, out)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Mineral groups
// ─────────────────────────────────────────────────────────────────────────────

// groupBlockStrategy reads the five coarse groups from a multi-line block or
// a decoded table whose header names at least four of them.
type groupBlockStrategy struct{}

func (groupBlockStrategy) Name() simulant.Method { return simulant.MethodGroupTable }

func (groupBlockStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, b := range mineralBlocks(in.Text) {
		lower := strings.ToLower(b.header)
		if isGroupHeader(lower) {
			alignGroups(lower, lineNumbers(b.values), found, out)
		}
	}
	for _, t := range in.Tables {
		for i, row := range t {
			lower := strings.ToLower(joinRow(row, " "))
			if !isGroupHeader(lower) {
				continue
			}
			for j := i + 1; j <= i+2 && j < len(t); j++ {
				if !in.rowBelongs(t[j]) {
					continue
				}
				if vals := rowNumbers(t[j]); len(vals) > 0 {
					alignGroups(lower, vals, found, out)
					break
				}
			}
		}
	}
	return out
}

func alignGroups(lowerHeader string, vals []float64, found, out map[string]float64) {
	var ps []position
	for _, g := range groupHeaders {
		if p := strings.Index(lowerHeader, g.Keyword); p >= 0 {
			ps = append(ps, position{p, g.Group})
		}
	}
	sortPositions(ps)
	for k, p := range ps {
		if k >= len(vals) {
			break
		}
		assign(p.name, vals[k], found, out)
	}
}

// groupSectionStrategy reads mineral values under a "Mineral Group"
// heading and files each under its coarse group.
type groupSectionStrategy struct{}

func (groupSectionStrategy) Name() simulant.Method { return simulant.MethodGroupSection }

func (groupSectionStrategy) Extract(in Input, found map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	sec, ok := FindSection(in.Text, groupSectionHeaders)
	if !ok {
		return out
	}
	for _, c := range mineralCategories {
		v, ok := firstInline(sec, c)
		if !ok {
			continue
		}
		if group, ok := taxonomy.GroupOf(c.Name); ok {
			assign(group, v, found, out)
		}
	}
	return out
}

func firstInline(text string, c category) (float64, bool) {
	for _, re := range c.inline {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := parseFloat(m[1]); ok && inPercentRange(v) {
				return v, true
			}
		}
	}
	return 0, false
}
