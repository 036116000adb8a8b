package cpad

import (
	"fmt"
	"sort"
	"strings"
)

// macroHeader is the parsed form of a #def line.
type macroHeader struct {
	name   string
	params []string
	// body text of the inline form; empty for the block form
	body   string
	inline bool
}

// parseMacroHeader classifies a #def line into its inline or block form.
// The two forms are disambiguated by the presence of = after the header.
func parseMacroHeader(line string) (macroHeader, error) {
	if m := defInlineRe.FindStringSubmatch(line); m != nil {
		h := macroHeader{name: m[1], params: splitParams(m[2]), body: strings.TrimSpace(m[3]), inline: true}
		return h, validateHeader(h)
	}
	if m := defBlockRe.FindStringSubmatch(stripTrailingComment(line)); m != nil {
		h := macroHeader{name: m[1], params: splitParams(m[2])}
		return h, validateHeader(h)
	}
	return macroHeader{}, fmt.Errorf("malformed macro definition: %q", strings.TrimSpace(line))
}

func validateHeader(h macroHeader) error {
	if !macroNameRe.MatchString(h.name) {
		return fmt.Errorf("invalid macro name %q", h.name)
	}
	for _, p := range h.params {
		if !macroNameRe.MatchString(p) {
			return fmt.Errorf("invalid macro parameter %q in definition of %q", p, h.name)
		}
	}
	return nil
}

// MacroTable maps macro names to their definitions. The first definition of
// a name wins for expansion purposes; every subsequent same-name
// definition, regardless of origin, is recorded as a duplicate and excluded
// from the active table. This keeps expansion deterministic no matter how
// include content is ordered against local content.
//
// The table is caller-owned: each pipeline run gets its own instance and
// nothing here is shared between runs.
type MacroTable struct {
	defs       map[string]*MacroDefinition
	order      []string
	duplicates []DuplicateMacro
}

func NewMacroTable() *MacroTable {
	return &MacroTable{defs: make(map[string]*MacroDefinition)}
}

// Define inserts a definition, or records a duplicate when the name is
// already taken. Returns true when the definition became active.
func (t *MacroTable) Define(def *MacroDefinition) bool {
	if prev, ok := t.defs[def.Name]; ok {
		t.duplicates = append(t.duplicates, DuplicateMacro{
			Name:         def.Name,
			Line:         def.Line,
			OriginalLine: prev.Line,
		})
		return false
	}
	t.defs[def.Name] = def
	t.order = append(t.order, def.Name)
	return true
}

// Lookup returns the active definition for a name.
func (t *MacroTable) Lookup(name string) (*MacroDefinition, bool) {
	def, ok := t.defs[name]
	return def, ok
}

// Names returns the active macro names in definition order.
func (t *MacroTable) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// NamesLongestFirst returns the active names ordered by descending length,
// so that a name which is a prefix of another is never matched first.
func (t *MacroTable) NamesLongestFirst() []string {
	out := t.Names()
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func (t *MacroTable) Len() int { return len(t.defs) }

// Duplicates returns the recorded duplicate definitions in document order.
func (t *MacroTable) Duplicates() []DuplicateMacro {
	return t.duplicates
}
