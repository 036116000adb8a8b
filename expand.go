package cpad

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxPasses bounds fixed-point macro expansion per line. A
// self-recursive macro stops expanding deterministically once it has been
// rewritten this many times on one line.
const DefaultMaxPasses = 32

// MacroExpander rewrites macro-call sites in logical lines using a
// MacroTable. It owns the stage-3 source map and the expansion markers that
// let diagnostics raised against generated lines be redirected to the
// original call site.
//
// Expansion runs to a fixed point: each line is re-scanned until a pass
// produces no change or MaxPasses is hit, so nested macro calls expand
// regardless of table iteration order.
type MacroExpander struct {
	Table *MacroTable
	// Zero means DefaultMaxPasses
	MaxPasses int

	callRes  map[string]*regexp.Regexp
	paramRes map[string]*regexp.Regexp
}

func NewMacroExpander(table *MacroTable) *MacroExpander {
	return &MacroExpander{
		Table:    table,
		callRes:  make(map[string]*regexp.Regexp),
		paramRes: make(map[string]*regexp.Regexp),
	}
}

func (e *MacroExpander) maxPasses() int {
	if e.MaxPasses > 0 {
		return e.MaxPasses
	}
	return DefaultMaxPasses
}

// Expand rewrites every macro call in the line set.
//
// The returned source map sends each output index to the input index that
// produced it; a multi-line body yields several output lines all mapped to
// the call line. Markers record the pre-expansion call text for every line
// that resulted from substitution (as opposed to literal copy). Directive
// lines and the visible interior of block definitions are copied through
// untouched.
func (e *MacroExpander) Expand(lines []string) (out []string, sourceMap map[int]int, markers map[int]string) {
	out = make([]string, 0, len(lines))
	sourceMap = make(map[int]int, len(lines))
	markers = make(map[int]string)

	inBlockDef := false
	for i, line := range lines {
		skip := false
		switch {
		case inBlockDef:
			skip = true
			if endDefRe.MatchString(line) {
				inBlockDef = false
			}
		case IsDirective(line):
			skip = true
			if isDefDirective(line) && !strings.Contains(stripTrailingComment(line), "=") {
				inBlockDef = true
			}
		case IsComment(line):
			skip = true
		}

		if skip || e.Table.Len() == 0 {
			sourceMap[len(out)] = i
			out = append(out, line)
			continue
		}

		produced, callText := e.expandLine(line)
		for _, p := range produced {
			if callText != "" {
				markers[len(out)] = callText
			}
			sourceMap[len(out)] = i
			out = append(out, p)
		}
	}

	return out, sourceMap, markers
}

// expandLine rewrites one line to a fixed point. It returns the produced
// lines and, when any substitution happened, the text of the first call
// that was rewritten (the outermost one, which is where a user-facing
// diagnostic should point).
func (e *MacroExpander) expandLine(line string) ([]string, string) {
	work := []string{line}
	counts := make(map[string]int)
	firstCall := ""
	names := e.Table.NamesLongestFirst()

	for pass := 0; pass < e.maxPasses(); pass++ {
		changed := false
		for _, name := range names {
			if counts[name] >= e.maxPasses() {
				// Self-recursive macro; abort further rewrites of it.
				continue
			}
			for j := 0; j < len(work); j++ {
				replacement, callText, ok := e.applyMacro(work[j], name)
				if !ok {
					continue
				}
				work = append(work[:j], append(replacement, work[j+1:]...)...)
				counts[name]++
				if firstCall == "" {
					firstCall = callText
				}
				changed = true
				j += len(replacement) - 1
			}
		}
		if !changed {
			break
		}
	}

	return work, firstCall
}

// applyMacro substitutes the first well-formed call of one macro in a line.
// Calls whose argument count does not match the macro's parameter count are
// left untouched; reporting the mismatch is downstream lint's job.
func (e *MacroExpander) applyMacro(text, name string) (replacement []string, callText string, ok bool) {
	def, found := e.Table.Lookup(name)
	if !found {
		return nil, "", false
	}

	for _, m := range e.callRegex(name).FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if !boundaryBefore(text, start) {
			continue
		}

		var args []string
		if m[2] >= 0 {
			args = splitParams(text[m[2]:m[3]])
		} else {
			if !boundaryAfter(text, end) {
				continue
			}
			if end < len(text) && text[end] == '(' {
				// An argument list the pattern could not consume, e.g.
				// nested parentheses. Leave the call in place.
				continue
			}
		}

		if len(args) != len(def.Params) {
			continue
		}

		body := make([]string, len(def.Body))
		for bi, bodyLine := range def.Body {
			body[bi] = e.substituteParams(def, bodyLine, args)
		}
		if len(body) == 0 {
			body = []string{""}
		}

		callText = text[start:end]
		if len(body) == 1 {
			return []string{text[:start] + body[0] + text[end:]}, callText, true
		}

		out := make([]string, 0, len(body))
		out = append(out, text[:start]+body[0])
		out = append(out, body[1:len(body)-1]...)
		out = append(out, body[len(body)-1]+text[end:])
		return out, callText, true
	}

	return nil, "", false
}

// substituteParams replaces parameter names in one body line with the call
// arguments. All parameters are matched through a single combined
// alternation in one left-to-right pass, so text inserted for an earlier
// parameter can never be re-matched by a later one.
func (e *MacroExpander) substituteParams(def *MacroDefinition, bodyLine string, args []string) string {
	if len(def.Params) == 0 {
		return bodyLine
	}

	byName := make(map[string]string, len(def.Params))
	for i, p := range def.Params {
		byName[p] = args[i]
	}

	re := e.paramRegex(def)
	var b strings.Builder
	last := 0
	for _, m := range re.FindAllStringIndex(bodyLine, -1) {
		if !boundaryBefore(bodyLine, m[0]) || !boundaryAfter(bodyLine, m[1]) {
			continue
		}
		b.WriteString(bodyLine[last:m[0]])
		b.WriteString(byName[bodyLine[m[0]:m[1]]])
		last = m[1]
	}
	if last == 0 {
		return bodyLine
	}
	b.WriteString(bodyLine[last:])
	return b.String()
}

// callRegex matches a whole-identifier occurrence of the macro name with an
// optional parenthesized argument list. Identifier boundaries are verified
// separately since the name may end in $.
func (e *MacroExpander) callRegex(name string) *regexp.Regexp {
	if re, ok := e.callRes[name]; ok {
		return re
	}
	if e.callRes == nil {
		e.callRes = make(map[string]*regexp.Regexp)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(name) + `(?:\(([^()]*)\))?`)
	e.callRes[name] = re
	return re
}

// paramRegex is the combined alternation over a definition's parameter
// names, longest first.
func (e *MacroExpander) paramRegex(def *MacroDefinition) *regexp.Regexp {
	if re, ok := e.paramRes[def.Name]; ok {
		return re
	}
	if e.paramRes == nil {
		e.paramRes = make(map[string]*regexp.Regexp)
	}
	params := make([]string, len(def.Params))
	copy(params, def.Params)
	for i := range params {
		params[i] = regexp.QuoteMeta(params[i])
	}
	// Longer alternatives first so a parameter that prefixes another is
	// never matched short.
	for i := 0; i < len(params); i++ {
		for j := i + 1; j < len(params); j++ {
			if len(params[j]) > len(params[i]) {
				params[i], params[j] = params[j], params[i]
			}
		}
	}
	re := regexp.MustCompile(strings.Join(params, "|"))
	e.paramRes[def.Name] = re
	return re
}

// CallSite is one whole-identifier occurrence of a macro name in a line.
type CallSite struct {
	// The matched text, including any argument list
	Text string
	Args []string
	// Whether a parenthesized argument list was present
	HasArgs bool
}

// FindCallSites returns every whole-identifier occurrence of name in line,
// with its parsed argument list. Occurrences whose argument list the
// matcher cannot consume (nested parentheses) are skipped, matching the
// expander's behavior of leaving them untouched.
func FindCallSites(line, name string) []CallSite {
	re := regexp.MustCompile(regexp.QuoteMeta(name) + `(?:\(([^()]*)\))?`)

	var sites []CallSite
	for _, m := range re.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[0], m[1]
		if !boundaryBefore(line, start) {
			continue
		}
		site := CallSite{Text: line[start:end]}
		if m[2] >= 0 {
			site.HasArgs = true
			site.Args = splitParams(line[m[2]:m[3]])
		} else {
			if !boundaryAfter(line, end) {
				continue
			}
			if end < len(line) && line[end] == '(' {
				continue
			}
		}
		sites = append(sites, site)
	}
	return sites
}

// boundaryBefore reports that the rune ending at idx cannot extend an
// identifier leftward into the match.
func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !IsNameRune(r)
}

// boundaryAfter reports that the rune starting at idx cannot extend an
// identifier rightward out of the match.
func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return !IsNameRune(r)
}
