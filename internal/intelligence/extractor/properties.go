package extractor

import (
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// extractPhysical fills numeric and textual physical properties.  A capture
// outside a property's plausible range is discarded, never clamped.
func extractPhysical(text string, rec *simulant.ExtractionRecord) bool {
	added := false
	for _, rule := range physicalRules {
		if _, ok := rec.PhysicalProperties[rule.Key]; ok {
			continue
		}
		if v, ok := applyRule(text, rule); ok {
			rec.PhysicalProperties[rule.Key] = v
			added = true
		}
	}
	if m := particleRangePattern.FindStringSubmatch(text); m != nil {
		rec.PhysicalText[simulant.TextParticleSizeRange] = strings.Join(strings.Fields(m[1]), " ")
		added = true
	}
	if m := magneticPattern.FindStringSubmatch(text); m != nil {
		rec.PhysicalText[simulant.TextMagneticSusceptibility] = strings.TrimSpace(m[1])
		added = true
	}
	return added
}

func applyRule(text string, rule numericRule) (float64, bool) {
	for _, re := range rule.Patterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if rule.Reject != nil && rule.Reject(text, loc) {
				continue
			}
			v, ok := parseFloat(text[loc[2]:loc[3]])
			if ok && v >= rule.Min && v <= rule.Max {
				return v, true
			}
			// the first non-rejected match decides for this pattern
			break
		}
	}
	return 0, false
}

// extractBasicInfo fills type, reference material, series and the quality
// score.
func extractBasicInfo(text string, rec *simulant.ExtractionRecord) bool {
	added := false
	if _, ok := rec.BasicInfo[simulant.InfoType]; !ok {
		for _, re := range typePatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v := strings.TrimSpace(m[1]); v != "" && len(v) < 30 {
				rec.BasicInfo[simulant.InfoType] = v
				added = true
				break
			}
		}
	}
	if m := referenceMaterialPattern.FindStringSubmatch(text); m != nil {
		rec.BasicInfo[simulant.InfoReferenceMaterial] = truncateRunes(strings.TrimSpace(m[1]), 100)
		added = true
	}
	if m := seriesPattern.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			rec.BasicInfo[simulant.InfoSeries] = truncateRunes(v, 100)
			added = true
		}
	}
	if _, ok := rec.PhysicalProperties[simulant.PropQualityScore]; !ok {
		for _, re := range qualityScorePatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v, ok := parseFloat(m[1]); ok && inPercentRange(v) {
				rec.PhysicalProperties[simulant.PropQualityScore] = v
				added = true
				break
			}
		}
	}
	return added
}

// extractRawMaterials reads the bullet list under a "Composition" heading.
func extractRawMaterials(text string, rec *simulant.ExtractionRecord) bool {
	m := rawMaterialsPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	added := false
	for _, line := range strings.Split(m[1], "\n") {
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if len(item) <= 2 || isStopWord(item) {
			continue
		}
		rec.RawMaterials = append(rec.RawMaterials, item)
		added = true
	}
	return added
}

func isStopWord(item string) bool {
	lower := strings.ToLower(item)
	for _, w := range rawMaterialStopWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
