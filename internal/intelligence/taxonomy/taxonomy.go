// Package taxonomy normalises mineral names and reconciles mineral
// compositions gathered from several extraction passes or documents so that
// overlapping and hierarchical entries are not double counted.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// The five coarse mineral groups.
const (
	GroupPlagioclase = "Plagioclase Feldspar"
	GroupPyroxene    = "Pyroxene"
	GroupOlivine     = "Olivine"
	GroupIlmenite    = "Ilmenite"
	GroupGlass       = "Glass"
)

// Groups lists the coarse groups in reporting order.
var Groups = []string{GroupPlagioclase, GroupPyroxene, GroupOlivine, GroupIlmenite, GroupGlass}

var groupMembers = map[string][]string{
	GroupPlagioclase: {"Plagioclase", "Anorthite", "Labradorite", "Bytownite", "Albite", "Anorthosite", "Feldspar"},
	GroupPyroxene:    {"Pyroxene", "Augite", "Clinopyroxene", "Orthopyroxene", "Bronzite", "Pigeonite", "Diopside", "Enstatite", "Hypersthene"},
	GroupOlivine:     {"Olivine", "Forsterite", "Fayalite"},
	GroupIlmenite:    {"Ilmenite"},
	GroupGlass:       {"Glass", "Volcanic Glass", "Agglutinate", "Basaltic Ash"},
}

// sameAs folds names that denote the same phase.
var sameAs = map[string]string{
	"anorthosite":    "Plagioclase",
	"volcanic glass": "Glass",
}

// rockTypes double count minerals itemised individually.
var rockTypes = map[string]bool{"Basalt": true, "Norite": true}

type parentRule struct {
	Parent   string
	Children []string
}

// parentChild is applied in order on the live set.
var parentChild = []parentRule{
	{"Plagioclase", []string{"Anorthite", "Labradorite", "Bytownite", "Albite"}},
	{"Pyroxene", []string{"Augite", "Clinopyroxene", "Orthopyroxene", "Bronzite", "Pigeonite"}},
	{"Olivine", []string{"Forsterite", "Fayalite"}},
	{"Feldspar", []string{"Plagioclase", "K-feldspar"}},
}

const (
	parentDominance = 1.5
	ceilingTrigger  = 115.0
	ceilingKeep     = 105.0
	ceilingFloor    = 50.0
	rockThreshold   = 30.0
)

// extraMinerals are recognised names outside the group tables.
var extraMinerals = []string{
	"K-feldspar", "Quartz", "Magnetite", "Hematite", "Hornblende", "Analcime",
	"Smectite", "Illite", "Lizardite", "Serpentine", "Spinel", "Chromite",
	"Apatite", "Basalt", "Norite", "Troctolite",
}

var (
	canonical = map[string]string{}
	groupOf   = map[string]string{}
)

func init() {
	for g, members := range groupMembers {
		canonical[strings.ToLower(g)] = g
		for _, m := range members {
			canonical[strings.ToLower(m)] = m
			groupOf[strings.ToLower(m)] = g
		}
	}
	groupOf[strings.ToLower(GroupPlagioclase)] = GroupPlagioclase
	for _, m := range extraMinerals {
		canonical[strings.ToLower(m)] = m
	}
}

// Canonical returns the standard spelling of a mineral name; unknown names
// are title-cased.
func Canonical(name string) string {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if c, ok := canonical[key]; ok {
		return c
	}
	// a Caser is stateful; one per call keeps Canonical goroutine-safe
	return cases.Title(language.English).String(key)
}

// Known reports whether name is a recognised mineral, rock or group.
func Known(name string) bool {
	_, ok := canonical[strings.ToLower(strings.Join(strings.Fields(name), " "))]
	return ok
}

// GroupOf returns the coarse group a mineral belongs to.
func GroupOf(name string) (string, bool) {
	g, ok := groupOf[strings.ToLower(strings.Join(strings.Fields(name), " "))]
	return g, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Reconcile
// ─────────────────────────────────────────────────────────────────────────────

// Result is the outcome of Reconcile.
type Result struct {
	Minerals map[string]float64
	// Dropped lists removed names in the order they were removed.
	Dropped []string
	// Notes flag parent/child decisions that may be misreadings.
	Notes []string
}

// Total sums the reconciled values.
func (r Result) Total() float64 {
	var t float64
	for _, v := range r.Minerals {
		t += v
	}
	return t
}

// Reconcile applies, in order: synonym folding, composite splitting,
// rock-type suppression, parent/child resolution and the total ceiling.
// Entries folding to the same name keep their maximum; composite shares are
// then added to their buckets.  No value absent from the input is created,
// and reconciling the output again changes nothing.
func Reconcile(in map[string]float64) Result {
	res := Result{Minerals: make(map[string]float64)}
	put := func(name string, v float64) {
		if cur, ok := res.Minerals[name]; !ok || v > cur {
			res.Minerals[name] = v
		}
	}

	var nonRock float64
	shares := make(map[string]float64)
	for _, name := range simulant.SortedKeys(in) {
		v := in[name]
		if !rockTypes[Canonical(name)] {
			nonRock += v
		}
		if strings.Contains(name, "+") {
			parts := splitComposite(name)
			if len(parts) == 0 {
				put(strings.TrimSpace(name), v)
				continue
			}
			share := simulant.Round2(v / float64(len(parts)))
			for _, p := range parts {
				shares[p] += share
			}
			continue
		}
		put(fold(name), v)
	}
	for _, name := range simulant.SortedKeys(shares) {
		res.Minerals[name] = simulant.Round2(res.Minerals[name] + shares[name])
	}

	if nonRock > rockThreshold {
		for _, name := range simulant.SortedKeys(res.Minerals) {
			if rockTypes[name] {
				res.drop(name)
			}
		}
	}

	for _, rule := range parentChild {
		res.resolveParent(rule)
	}

	if res.Total() > ceilingTrigger {
		res.applyCeiling()
	}
	return res
}

func fold(name string) string {
	c := Canonical(name)
	if s, ok := sameAs[strings.ToLower(c)]; ok {
		return s
	}
	return c
}

// splitComposite returns the recognised constituents of "A + B + C".
func splitComposite(name string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(name, "+") {
		p = strings.TrimSpace(p)
		if p == "" || !Known(p) {
			continue
		}
		c := fold(p)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (r *Result) drop(name string) {
	if _, ok := r.Minerals[name]; !ok {
		return
	}
	delete(r.Minerals, name)
	r.Dropped = append(r.Dropped, name)
}

// resolveParent keeps the parent when it exceeds 1.5x its children's sum,
// else keeps the children.
func (r *Result) resolveParent(rule parentRule) {
	parent, ok := r.Minerals[rule.Parent]
	if !ok {
		return
	}
	var present []string
	var children float64
	for _, c := range rule.Children {
		if v, ok := r.Minerals[c]; ok {
			present = append(present, c)
			children += v
		}
	}
	if len(present) == 0 {
		return
	}

	if parent+children <= 100 {
		r.Notes = append(r.Notes, fmt.Sprintf(
			"%s (%s) with %s (%s) sums to %s%%; may be a non-overlapping breakdown",
			rule.Parent, simulant.FormatNumber(parent),
			strings.Join(present, ", "), simulant.FormatNumber(children),
			simulant.FormatNumber(parent+children)))
	}

	if parent > children*parentDominance {
		for _, c := range present {
			r.drop(c)
		}
		return
	}
	r.drop(rule.Parent)
}

// applyCeiling keeps the largest entries while the running total stays at
// or under 105%, or is still under 50%.
func (r *Result) applyCeiling() {
	names := simulant.SortedKeys(r.Minerals)
	sort.SliceStable(names, func(i, j int) bool { return r.Minerals[names[i]] > r.Minerals[names[j]] })
	var running float64
	for _, n := range names {
		v := r.Minerals[n]
		if running+v <= ceilingKeep || running < ceilingFloor {
			running += v
			continue
		}
		r.drop(n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Groups
// ─────────────────────────────────────────────────────────────────────────────

// MineralGroups returns all five coarse groups.  When extracted already
// carries group values they are kept and missing groups are set to 0;
// otherwise groups are summed from the detailed minerals.  Values are
// rounded to two decimals.
func MineralGroups(minerals, extracted map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(Groups))
	if len(extracted) > 0 {
		for _, g := range Groups {
			out[g] = simulant.Round2(extracted[g])
		}
		return out
	}
	for _, g := range Groups {
		out[g] = 0
	}
	for name, v := range minerals {
		if g, ok := GroupOf(name); ok {
			out[g] += v
		}
	}
	for g, v := range out {
		out[g] = simulant.Round2(v)
	}
	return out
}
