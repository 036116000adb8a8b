package cpad

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ContentCache holds pre-fetched remote include content keyed by reference
// name. It is populated by an asynchronous collaborator before the
// synchronous pipeline starts; the pipeline itself only ever reads it.
// Writes are idempotent within one fetch attempt: a name always resolves to
// the same content until the caller invalidates it.
type ContentCache struct {
	mu      sync.RWMutex
	entries map[string][]string
}

func NewContentCache() *ContentCache {
	return &ContentCache{entries: make(map[string][]string)}
}

// Put stores the line content for a reference name.
func (c *ContentCache) Put(ref string, lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ref] = lines
}

// Get returns the cached content for a reference name.
func (c *ContentCache) Get(ref string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lines, ok := c.entries[ref]
	return lines, ok
}

// Has reports whether a reference name is resident.
func (c *ContentCache) Has(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[ref]
	return ok
}

// Invalidate drops a reference so the next pre-fetch re-resolves it.
func (c *ContentCache) Invalidate(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ref)
}

// ReferenceExpander inlines external content at include sites and collects
// macro definitions without expanding them. It owns the stage-2 source map
// and duplicate-macro detection (via the caller-owned MacroTable).
type ReferenceExpander struct {
	// Directory the document lives in; include targets resolve relative
	// to it before the cache is consulted. Empty disables local lookup.
	BaseDir string
	// Pre-fetched remote content; may be nil.
	Cache *ContentCache
}

// IncludeTarget extracts the reference name from an include directive line,
// or "" when the line is not an include.
func IncludeTarget(line string) string {
	if m := includeRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// Expand resolves include directives and collects macro definitions from
// the logical line set. Output ordering is stable: lines appear in the same
// relative order as their original directive or include sites, and macro
// definitions stay in the visible text for later lint checks.
//
// The returned source map sends every output line index to the logical line
// index that produced it; every line pulled in by an include maps to the
// directive's index. Inclusion failure never faults the expansion: the
// directive is replaced by a single synthetic comment line carrying the
// error text.
func (e *ReferenceExpander) Expand(logical []string, table *MacroTable) (lines []string, sourceMap map[int]int, origins []LineOrigin) {
	lines = make([]string, 0, len(logical))
	sourceMap = make(map[int]int, len(logical))
	origins = make([]LineOrigin, 0, len(logical))

	emit := func(line string, src int, org LineOrigin) {
		sourceMap[len(lines)] = src
		lines = append(lines, line)
		origins = append(origins, org)
	}

	for i := 0; i < len(logical); i++ {
		line := logical[i]

		if ref := IncludeTarget(line); ref != "" {
			content, org, err := e.resolve(ref)
			if err != nil {
				emit(SyntheticError(err.Error()), i, LineOrigin{Origin: OriginLocal})
				continue
			}
			// One level deep: nested includes were already resolved by
			// whichever collaborator supplied the content.
			collectDefinitions(content, table, i, org)
			for _, included := range content {
				emit(included, i, org)
			}
			continue
		}

		if isDefDirective(line) {
			header, err := parseMacroHeader(line)
			if err != nil {
				emit(line, i, LineOrigin{Origin: OriginLocal})
				emit(SyntheticError(err.Error()), i, LineOrigin{Origin: OriginLocal})
				continue
			}

			def := &MacroDefinition{
				Name:   header.name,
				Params: header.params,
				Line:   i,
				Origin: OriginLocal,
			}
			emit(line, i, LineOrigin{Origin: OriginLocal})

			if header.inline {
				def.Body = []string{header.body}
				table.Define(def)
				continue
			}

			// Block form: the interior lines become the body verbatim and
			// stay in the output.
			terminated := false
			for i+1 < len(logical) {
				i++
				next := logical[i]
				emit(next, i, LineOrigin{Origin: OriginLocal})
				if endDefRe.MatchString(next) {
					terminated = true
					break
				}
				def.Body = append(def.Body, next)
			}
			if !terminated {
				emit(SyntheticError(fmt.Sprintf("macro %q has no matching #end def", def.Name)), i, LineOrigin{Origin: OriginLocal})
				continue
			}
			table.Define(def)
			continue
		}

		emit(line, i, LineOrigin{Origin: OriginLocal})
	}

	return lines, sourceMap, origins
}

// resolve looks an include target up, first on the local filesystem
// relative to the document, then in the pre-fetched cache.
func (e *ReferenceExpander) resolve(ref string) ([]string, LineOrigin, error) {
	if e.BaseDir != "" {
		path := filepath.Join(e.BaseDir, ref)
		if data, err := os.ReadFile(path); err == nil {
			return SplitLines(string(data)), LineOrigin{Origin: OriginInclude, SourceFile: ref}, nil
		}
	}
	if e.Cache != nil {
		if content, ok := e.Cache.Get(ref); ok {
			return content, LineOrigin{Origin: OriginFetch, SourceFile: ref}, nil
		}
	}
	return nil, LineOrigin{}, fmt.Errorf("cannot resolve include %q", ref)
}

// collectDefinitions scans included content for macro definitions and
// registers them against the include directive's line. The content itself
// is not modified; definitions are only harvested.
func collectDefinitions(content []string, table *MacroTable, directiveLine int, org LineOrigin) {
	for i := 0; i < len(content); i++ {
		line := content[i]
		if !isDefDirective(line) {
			continue
		}
		header, err := parseMacroHeader(line)
		if err != nil {
			continue
		}
		def := &MacroDefinition{
			Name:       header.name,
			Params:     header.params,
			Line:       directiveLine,
			Origin:     org.Origin,
			SourceFile: org.SourceFile,
		}
		if header.inline {
			def.Body = []string{header.body}
			table.Define(def)
			continue
		}
		terminated := false
		for i+1 < len(content) {
			i++
			if endDefRe.MatchString(content[i]) {
				terminated = true
				break
			}
			def.Body = append(def.Body, content[i])
		}
		if terminated {
			table.Define(def)
		}
	}
}

// isDefDirective reports whether a line opens a macro definition.
func isDefDirective(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "#def ") || strings.HasPrefix(t, "#def\t")
}

// SplitLines splits raw document text into lines, tolerating CRLF endings.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
