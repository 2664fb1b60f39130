package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxSectionLen bounds a section body.
const maxSectionLen = 2000

var (
	chemicalSectionHeaders = []string{"Chemical Composition", "Oxide Composition", "XRF"}
	mineralSectionHeaders  = []string{"Mineral Composition", "Mineralogy", "XRD"}
	groupSectionHeaders    = []string{"Mineral Group", "Group Classification"}

	// sectionEnd marks the line that starts the next section: a numbered
	// heading or two capitalised words.
	sectionEnd = regexp.MustCompile(`(?i)\n(?:\d+\.\s|[a-z][a-z]+\s+[a-z])`)

	sectionHeaderCache = map[string]*regexp.Regexp{}
)

func init() {
	for _, hs := range [][]string{chemicalSectionHeaders, mineralSectionHeaders, groupSectionHeaders} {
		for _, h := range hs {
			sectionHeaderCache[h] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(h) + `[:\s]*\n`)
		}
	}
}

// FindSection returns the body under the first of headers that occurs in
// text.  A header must end its line; the body runs to the next heading-like
// line or the end of text and is capped at 2000 bytes.  An empty body counts
// as not found and the next occurrence is tried.
func FindSection(text string, headers []string) (string, bool) {
	for _, h := range headers {
		re, ok := sectionHeaderCache[h]
		if !ok {
			re = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(h) + `[:\s]*\n`)
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start := loc[1]
			body := text[start:]
			if end := sectionEnd.FindStringIndex(body); end != nil {
				body = body[:end[0]]
			}
			body = truncateRunes(body, maxSectionLen)
			if strings.TrimSpace(body) != "" {
				return body, true
			}
		}
	}
	return "", false
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
