package cpad

import (
	"regexp"
	"strconv"
	"strings"
)

// Definition classification over fully expanded lines. The right-hand side
// of a variable assignment is anything that is not itself a function or
// unit definition marker, which the match order below guarantees.
var (
	unitDefRe = regexp.MustCompile(`^\s*\.(` + namePattern + `)\s*=\s*(.+)$`)
	funcDefRe = regexp.MustCompile(`^\s*(` + namePattern + `)\s*\(([^)]*)\)\s*=\s*(.+)$`)
	varDefRe  = regexp.MustCompile(`^\s*(` + namePattern + `)\s*=\s*(.+)$`)
)

// Collect scans a fully expanded line set and harvests variables,
// functions, macros and custom units into symbol tables. It is a pure
// function over its inputs: no side effects on the macro table or any
// source map.
//
// The earliest definition of a given name wins; later ones are silently
// ignored. Only macro duplicates are ever flagged (during reference
// expansion), variables and functions are not.
//
// origins, when non-nil, is the per-line provenance parallel to lines.
func Collect(lines []string, origins []LineOrigin, table *MacroTable) SymbolTables {
	tables := NewSymbolTables()

	originAt := func(i int) LineOrigin {
		if origins != nil && i < len(origins) {
			return origins[i]
		}
		return LineOrigin{Origin: OriginLocal}
	}

	for i, line := range lines {
		if IsComment(line) || IsDirective(line) {
			continue
		}
		text := strings.TrimRight(stripTrailingComment(line), " \t")
		org := originAt(i)

		if m := unitDefRe.FindStringSubmatch(text); m != nil {
			insert(tables.Units, SymbolEntry{
				Name:       m[1],
				Definition: m[2],
				Origin:     org.Origin,
				SourceFile: org.SourceFile,
			})
			continue
		}
		if m := funcDefRe.FindStringSubmatch(text); m != nil {
			insert(tables.Functions, SymbolEntry{
				Name:       m[1],
				Definition: m[3],
				Params:     splitParams(m[2]),
				Origin:     org.Origin,
				SourceFile: org.SourceFile,
			})
			continue
		}
		if m := varDefRe.FindStringSubmatch(text); m != nil {
			insert(tables.Variables, SymbolEntry{
				Name:       m[1],
				Definition: m[2],
				Origin:     org.Origin,
				SourceFile: org.SourceFile,
			})
		}
	}

	if table != nil {
		for _, name := range table.Names() {
			def, _ := table.Lookup(name)
			insert(tables.Macros, SymbolEntry{
				Name:       name,
				Definition: strconv.Itoa(len(def.Params)) + " parameter(s)",
				Params:     def.Params,
				Origin:     def.Origin,
				SourceFile: def.SourceFile,
			})
		}
	}

	return tables
}

func insert(table map[string]SymbolEntry, entry SymbolEntry) {
	if _, exists := table[entry.Name]; exists {
		return
	}
	table[entry.Name] = entry
}
