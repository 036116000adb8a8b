package cpad

import (
	"log/slog"
	"strings"
)

// Resolver orchestrates the pipeline: continuation joining, reference
// expansion, macro expansion and definition collection, composed into the
// single Resolved output contract.
//
// A resolver run is synchronous and side-effect free with respect to
// concurrent edits: each call builds its own macro table and source maps,
// and the only I/O is the reference expander's local include lookup. Remote
// content must already be resident in Cache before Resolve is called.
type Resolver struct {
	// Directory of the document being resolved, for local includes
	BaseDir string
	// Pre-fetched remote include content; may be nil
	Cache *ContentCache
	// Bound for fixed-point macro expansion; zero means DefaultMaxPasses
	MaxPasses int
}

func NewResolver(baseDir string, cache *ContentCache) *Resolver {
	return &Resolver{BaseDir: baseDir, Cache: cache}
}

// Resolve runs the full pipeline over raw document text.
//
// Recoverable content errors surface as synthetic comment lines in the
// output; policy violations surface as records on the result. An internal
// failure must never crash the editor session, so Resolve recovers any
// panic into a literal pass-through result with PassThrough set.
func (r *Resolver) Resolve(text string) (res *Resolved) {
	raw := SplitLines(text)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("resolver panicked, degrading to pass-through", "panic", rec)
			res = passThrough(raw)
		}
	}()

	return r.resolve(raw)
}

// ResolveLines is Resolve over pre-split lines.
func (r *Resolver) ResolveLines(raw []string) (res *Resolved) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("resolver panicked, degrading to pass-through", "panic", rec)
			res = passThrough(raw)
		}
	}()

	return r.resolve(raw)
}

func (r *Resolver) resolve(raw []string) *Resolved {
	logical, continuations := Join(raw)

	table := NewMacroTable()

	// Fast path: no include or macro directives means the later stages are
	// line-for-line identity, so skip them entirely.
	if !hasDirectives(logical) {
		sourceMap := make(map[int]int, len(logical))
		for i := range logical {
			sourceMap[i] = continuations[i][0]
		}
		return &Resolved{
			Lines:           logical,
			SourceMap:       sourceMap,
			MacroExpansions: make(map[int]string),
			Continuations:   continuations,
			Origins:         localOrigins(len(logical)),
			Macros:          table,
			Symbols:         Collect(logical, nil, table),
		}
	}

	expander := &ReferenceExpander{BaseDir: r.BaseDir, Cache: r.Cache}
	refLines, refMap, refOrigins := expander.Expand(logical, table)

	mx := NewMacroExpander(table)
	mx.MaxPasses = r.MaxPasses
	expanded, macroMap, markers := mx.Expand(refLines)

	// Compose the final map: expanded index -> reference-stage index ->
	// logical index -> first raw line of the continuation record.
	sourceMap := make(map[int]int, len(expanded))
	origins := make([]LineOrigin, len(expanded))
	for i := range expanded {
		refIdx := macroMap[i]
		sourceMap[i] = continuations[refMap[refIdx]][0]
		origins[i] = refOrigins[refIdx]
	}

	return &Resolved{
		Lines:           expanded,
		SourceMap:       sourceMap,
		MacroExpansions: markers,
		Continuations:   continuations,
		Origins:         origins,
		Macros:          table,
		Duplicates:      table.Duplicates(),
		Symbols:         Collect(expanded, origins, table),
	}
}

// hasDirectives reports whether any logical line is a resolution directive.
func hasDirectives(logical []string) bool {
	for _, line := range logical {
		if IsDirective(line) {
			return true
		}
	}
	return false
}

// passThrough treats the document as unresolved: every line maps to itself
// and no symbols are reported.
func passThrough(raw []string) *Resolved {
	sourceMap := make(map[int]int, len(raw))
	continuations := make(map[int][]int, len(raw))
	for i := range raw {
		sourceMap[i] = i
		continuations[i] = []int{i}
	}
	return &Resolved{
		Lines:           append([]string(nil), raw...),
		SourceMap:       sourceMap,
		MacroExpansions: make(map[int]string),
		Continuations:   continuations,
		Origins:         localOrigins(len(raw)),
		Macros:          NewMacroTable(),
		Symbols:         NewSymbolTables(),
		PassThrough:     true,
	}
}

func localOrigins(n int) []LineOrigin {
	return make([]LineOrigin, n)
}

// ExpandedText renders the resolved lines back to a single document.
func (res *Resolved) ExpandedText() string {
	return strings.Join(res.Lines, "\n")
}
