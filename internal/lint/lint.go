// Package lint turns the resolver's policy records and expanded content
// into user-facing diagnostics, relocated to original-document coordinates
// through the source map and macro-expansion markers.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"cpad"
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one finding, placed at an original raw line of the user's
// document.
type Diagnostic struct {
	// 0-based original line
	Line     int
	Severity Severity
	Message  string
	// The original macro call text when the finding was redirected from a
	// line generated by macro substitution
	CallText string
}

// builtins are identifiers the undefined-identifier check never flags:
// the language's function library and mathematical constants.
var builtins = map[string]struct{}{
	"abs": {}, "sign": {}, "sqrt": {}, "cbrt": {}, "root": {},
	"sin": {}, "cos": {}, "tan": {}, "csc": {}, "sec": {}, "cot": {},
	"asin": {}, "acos": {}, "atan": {}, "atan2": {},
	"sinh": {}, "cosh": {}, "tanh": {},
	"ln": {}, "log": {}, "log_2": {}, "exp": {},
	"min": {}, "max": {}, "sum": {}, "average": {}, "product": {},
	"round": {}, "floor": {}, "ceiling": {}, "trunc": {},
	"if": {}, "switch": {}, "take": {},
	"e": {}, "pi": {}, "π": {}, "g": {},
}

var (
	identRe    = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_°′″‴⁗]*\$?`)
	funcHeadRe = regexp.MustCompile(`^\s*[\p{L}_][\p{L}\p{N}_°′″‴⁗]*\s*\(([^)]*)\)\s*=`)
	quotedRe   = regexp.MustCompile(`"[^"]*"?`)
)

// Check runs every rule over one resolver result. A pass-through result
// (the resolver degraded after an internal failure) produces no
// diagnostics at all rather than a storm of false positives.
func Check(res *cpad.Resolved) []Diagnostic {
	if res.PassThrough {
		return nil
	}

	var diags []Diagnostic
	diags = append(diags, duplicateMacros(res)...)
	diags = append(diags, contentErrors(res)...)
	diags = append(diags, argumentMismatches(res)...)
	diags = append(diags, undefinedIdentifiers(res)...)
	return diags
}

// duplicateMacros reports every second definition of an already-defined
// macro name. The records carry logical line indices, so they are placed
// through the continuation map.
func duplicateMacros(res *cpad.Resolved) []Diagnostic {
	var diags []Diagnostic
	for _, dup := range res.Duplicates {
		diags = append(diags, Diagnostic{
			Line:     logicalToRaw(res, dup.Line),
			Severity: SeverityWarning,
			Message: fmt.Sprintf("macro %q is already defined at line %d; the first definition wins",
				dup.Name, logicalToRaw(res, dup.OriginalLine)+1),
		})
	}
	return diags
}

// contentErrors reports the synthetic comment lines the pipeline inserted
// for recoverable failures (unresolved includes, malformed definitions).
func contentErrors(res *cpad.Resolved) []Diagnostic {
	var diags []Diagnostic
	for i, line := range res.Lines {
		if !cpad.IsSyntheticError(line) {
			continue
		}
		diags = append(diags, Diagnostic{
			Line:     res.SourceMap[i],
			Severity: SeverityError,
			Message:  strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "' cpad error:")),
			CallText: res.MacroExpansions[i],
		})
	}
	return diags
}

// argumentMismatches reports macro calls the expander left untouched
// because their argument count does not match the definition.
func argumentMismatches(res *cpad.Resolved) []Diagnostic {
	if res.Macros.Len() == 0 {
		return nil
	}

	var diags []Diagnostic
	forEachContentLine(res.Lines, func(i int, line string) {
		for _, name := range res.Macros.Names() {
			def, _ := res.Macros.Lookup(name)
			for _, site := range cpad.FindCallSites(line, name) {
				if len(site.Args) == len(def.Params) {
					continue
				}
				diags = append(diags, Diagnostic{
					Line:     res.SourceMap[i],
					Severity: SeverityError,
					Message: fmt.Sprintf("macro %q expects %d argument(s), got %d",
						name, len(def.Params), len(site.Args)),
					CallText: res.MacroExpansions[i],
				})
			}
		}
	})
	return diags
}

// undefinedIdentifiers reports names used in expanded content that no
// symbol table or builtin knows about. Identifiers directly following a
// digit are skipped: that position is a unit literal.
func undefinedIdentifiers(res *cpad.Resolved) []Diagnostic {
	var diags []Diagnostic
	reported := make(map[string]struct{})

	forEachContentLine(res.Lines, func(i int, line string) {
		// Quoted text regions are display content, not identifiers.
		text := quotedRe.ReplaceAllString(stripComment(line), " ")

		// Parameters of a function definition are in scope on its own
		// right-hand side.
		scope := make(map[string]struct{})
		if m := funcHeadRe.FindStringSubmatch(text); m != nil {
			for _, p := range strings.Split(m[1], ";") {
				scope[strings.TrimSpace(p)] = struct{}{}
			}
		}

		// The left-hand side of a definition is the name being defined,
		// not a use.
		if eq := strings.Index(text, "="); eq >= 0 {
			text = text[eq+1:]
		}

		for _, loc := range identRe.FindAllStringIndex(text, -1) {
			name := text[loc[0]:loc[1]]
			if _, ok := scope[name]; ok {
				continue
			}
			if loc[0] > 0 {
				prev := text[loc[0]-1]
				if prev >= '0' && prev <= '9' {
					continue
				}
				if prev == '.' {
					// Unit reference
					if _, ok := res.Symbols.Units[name]; ok {
						continue
					}
				}
			}
			if known(res, name) {
				continue
			}
			if _, dup := reported[name]; dup {
				continue
			}
			reported[name] = struct{}{}
			diags = append(diags, Diagnostic{
				Line:     res.SourceMap[i],
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("undefined identifier %q", name),
				CallText: res.MacroExpansions[i],
			})
		}
	})
	return diags
}

func known(res *cpad.Resolved, name string) bool {
	if _, ok := builtins[name]; ok {
		return true
	}
	if _, ok := res.Symbols.Variables[name]; ok {
		return true
	}
	if _, ok := res.Symbols.Functions[name]; ok {
		return true
	}
	if _, ok := res.Symbols.Macros[name]; ok {
		return true
	}
	if _, ok := res.Symbols.Units[name]; ok {
		return true
	}
	return false
}

// forEachContentLine visits each expanded line that is real content:
// comments, directives and the visible interior of block macro definitions
// are skipped.
func forEachContentLine(lines []string, visit func(i int, line string)) {
	inBlockDef := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlockDef:
			if strings.HasPrefix(trimmed, "#end") {
				inBlockDef = false
			}
			continue
		case strings.HasPrefix(trimmed, "#def") && !strings.Contains(stripComment(line), "="):
			inBlockDef = true
			continue
		case cpad.IsDirective(line) || cpad.IsComment(line):
			continue
		}
		visit(i, line)
	}
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '\''); i >= 0 {
		return line[:i]
	}
	return line
}

// logicalToRaw places a logical line index at its first original raw line.
func logicalToRaw(res *cpad.Resolved, logical int) int {
	if sources, ok := res.Continuations[logical]; ok && len(sources) > 0 {
		return sources[0]
	}
	return logical
}
