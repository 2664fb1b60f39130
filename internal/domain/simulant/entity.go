// Package simulant holds the domain model for regolith simulants: the Entity
// aggregate, the Catalog used to recognise entities in text, and the
// Repository port through which finalised results are persisted.
package simulant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Entity
// ─────────────────────────────────────────────────────────────────────────────

// Entity is a registered simulant.  Entities are created once when first
// registered and are never deleted by extraction.
type Entity struct {
	ID      string   `json:"simulant_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`

	variants []string
	matcher  *regexp.Regexp
}

// NewEntity validates its arguments and precomputes the textual variants
// used for matching.
func NewEntity(id, name string, aliases ...string) (*Entity, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, errors.New(errors.ErrCodeCatalogInvalid, "entity id is required")
	}
	if name == "" {
		return nil, errors.New(errors.ErrCodeCatalogInvalid, "entity name is required").WithDetail("id=" + id)
	}
	e := &Entity{ID: id, Name: name, Aliases: aliases}
	e.variants = buildVariants(name, aliases)
	e.matcher = compileMatcher(e.variants)
	return e, nil
}

// Variants returns every textual form under which the entity is recognised:
// the name and aliases, plus space-separated and unhyphenated forms.
func (e *Entity) Variants() []string {
	out := make([]string, len(e.variants))
	copy(out, e.variants)
	return out
}

// MentionedIn reports whether any variant occurs in text on word boundaries,
// ignoring case.
func (e *Entity) MentionedIn(text string) bool {
	return e.matcher.MatchString(text)
}

// Mentions returns the byte offsets [start, end) of every variant match.
func (e *Entity) Mentions(text string) [][]int {
	return e.matcher.FindAllStringIndex(text, -1)
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.ID)
}

func buildVariants(name string, aliases []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	for _, base := range append([]string{name}, aliases...) {
		add(base)
		if strings.Contains(base, "-") {
			add(strings.ReplaceAll(base, "-", " "))
			add(strings.ReplaceAll(base, "-", ""))
		}
	}
	return out
}

// compileMatcher builds one case-insensitive alternation.  Longer variants
// come first so that "LHS-1D" is preferred over a shorter alias.
func compileMatcher(variants []string) *regexp.Regexp {
	sorted := make([]string, len(variants))
	copy(sorted, variants)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j]) > len(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = regexp.QuoteMeta(v)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}
