package cpad

import (
	"regexp"
	"strings"
	"unicode"
)

// Lexical rules shared by the pipeline stages.
//
// Names start with a letter (the extended set, so Greek works) or an
// underscore and may continue with letters, digits, underscores and a small
// set of typographic marks. Macro names may additionally end in the $
// suffix character.
const (
	nameStartClass = `[\p{L}_]`
	nameContClass  = `[\p{L}\p{N}_°′″‴⁗]`
	namePattern    = nameStartClass + nameContClass + `*`
	// Macro names optionally carry the suffix character
	macroNamePattern = namePattern + `\$?`
)

var (
	includeRe = regexp.MustCompile(`^\s*#include\s+"?([^"\s]+)"?\s*(?:'.*)?$`)
	// Inline form: #def name(p1; p2) = body. The parameter list is optional.
	defInlineRe = regexp.MustCompile(`^\s*#def\s+(` + macroNamePattern + `)\s*(?:\(([^)]*)\))?\s*=\s*(.*)$`)
	// Block form: #def name(p1; p2) with no trailing =, body until #end def
	defBlockRe = regexp.MustCompile(`^\s*#def\s+(` + macroNamePattern + `)\s*(?:\(([^)]*)\))?\s*$`)
	endDefRe   = regexp.MustCompile(`^\s*#end\s+def\s*$`)

	macroNameRe = regexp.MustCompile(`^` + macroNamePattern + `$`)
)

// IsDirective reports whether a logical line is a resolution directive
// (include, macro definition, block terminator or any other #-keyword line)
// rather than a computation.
func IsDirective(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// IsComment reports whether a line is pure commentary: empty, or starting
// with the line-comment or text-region character.
func IsComment(line string) bool {
	t := strings.TrimSpace(line)
	return t == "" || t[0] == '\'' || t[0] == '"'
}

// IsNameRune reports whether r may appear inside an identifier. The $
// suffix counts so that a macro name is matched as a whole token.
func IsNameRune(r rune) bool {
	if r == '_' || r == '$' {
		return true
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '°', '′', '″', '‴', '⁗':
		return true
	}
	return false
}

// stripTrailingComment removes a trailing ' comment from a line, leaving
// the text before it untouched.
func stripTrailingComment(line string) string {
	if i := strings.IndexByte(line, '\''); i >= 0 {
		return line[:i]
	}
	return line
}

// splitParams splits a parameter or argument list on the language's
// semicolon separator, trimming whitespace. An all-blank list is empty.
func splitParams(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// SyntheticError renders a recoverable content error as a comment line so
// the failure is visible in the expanded text without faulting the
// pipeline.
func SyntheticError(msg string) string {
	return "' cpad error: " + msg
}

// IsSyntheticError reports whether a line was produced by SyntheticError.
func IsSyntheticError(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "' cpad error: ")
}
