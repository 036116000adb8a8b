package cpad

// Origin tags where a definition came from, for display and duplicate-report
// context.
type Origin int

const (
	// OriginLocal means the definition was written in the document itself.
	OriginLocal Origin = iota
	// OriginInclude means the definition came from a local included file.
	OriginInclude
	// OriginFetch means the definition came from pre-fetched remote content.
	OriginFetch
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginInclude:
		return "include"
	case OriginFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// MacroDefinition is a named, parameterized text template collected during
// reference expansion. Definitions are immutable once created; a later
// same-name definition never replaces an earlier one (see MacroTable).
type MacroDefinition struct {
	// The macro name, including the optional $ suffix
	Name string
	// Ordered parameter names
	Params []string
	// The body: one line for the inline form, the literal interior lines
	// for the block form
	Body []string
	// Logical line index of the definition site in the host document.
	// For include/fetch origins this is the line of the include directive.
	Line int
	// Where the definition came from
	Origin Origin
	// The source file or reference name when Origin is not local
	SourceFile string
}

// DuplicateMacro records a second definition of an already-defined macro
// name. It is purely diagnostic; the expander never consults it.
type DuplicateMacro struct {
	Name string
	// Logical line of the duplicate definition
	Line int
	// Logical line of the definition that won
	OriginalLine int
}

// LineOrigin records the provenance of a single expanded line.
type LineOrigin struct {
	Origin Origin
	// The reference name when Origin is not local
	SourceFile string
}

// SymbolEntry is one harvested definition in a symbol table.
type SymbolEntry struct {
	Name string
	// The defining right-hand text, for hover display
	Definition string
	// Parameter names, set for functions and macros
	Params []string
	Origin Origin
	// The source file or reference name when Origin is not local
	SourceFile string
}

// SymbolTables holds the definitions harvested from a fully expanded line
// set, consumed by completion and undefined-identifier checks. Names are
// unique per table; the earliest-seen definition wins.
type SymbolTables struct {
	Variables map[string]SymbolEntry
	Functions map[string]SymbolEntry
	Macros    map[string]SymbolEntry
	Units     map[string]SymbolEntry
}

// NewSymbolTables returns empty, non-nil tables.
func NewSymbolTables() SymbolTables {
	return SymbolTables{
		Variables: make(map[string]SymbolEntry),
		Functions: make(map[string]SymbolEntry),
		Macros:    make(map[string]SymbolEntry),
		Units:     make(map[string]SymbolEntry),
	}
}

// Resolved is the sole output contract of a pipeline run (see Resolver).
//
// SourceMap is total over Lines: every index in [0, len(Lines)) has exactly
// one entry. It is not monotonic: every line pulled in by an include maps to
// the directive's line, and every line produced by a macro call maps to the
// call's line.
type Resolved struct {
	// The fully expanded lines
	Lines []string
	// Expanded line index -> original raw line index
	SourceMap map[int]int
	// Expanded line index -> original call text, present only for lines
	// that resulted from macro substitution
	MacroExpansions map[int]string
	// Logical line index -> ordered original raw line indices merged into it
	Continuations map[int][]int
	// Per expanded line provenance; parallel to Lines
	Origins []LineOrigin
	// The active macro table used for expansion
	Macros *MacroTable
	// Duplicate macro definitions encountered, in document order
	Duplicates []DuplicateMacro
	Symbols    SymbolTables
	// Set when the resolver degraded to a literal pass-through after an
	// internal failure; diagnostics should be suppressed for such a run
	PassThrough bool
}
