package lsp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-lsp"

	"cpad"
)

// CompletionItems builds the completion list from a resolver result's
// symbol tables. Nothing else from pipeline state is consulted.
func CompletionItems(res *cpad.Resolved) []lsp.CompletionItem {
	if res == nil {
		return nil
	}

	var items []lsp.CompletionItem

	for _, entry := range res.Symbols.Variables {
		items = append(items, lsp.CompletionItem{
			Label:         entry.Name,
			Kind:          lsp.CIKVariable,
			Detail:        entry.Name + " = " + entry.Definition,
			Documentation: originNote(entry),
		})
	}
	for _, entry := range res.Symbols.Functions {
		items = append(items, lsp.CompletionItem{
			Label:         entry.Name,
			Kind:          lsp.CIKFunction,
			Detail:        fmt.Sprintf("%s(%s)", entry.Name, strings.Join(entry.Params, "; ")),
			Documentation: originNote(entry),
			InsertText:    entry.Name + "(" + strings.Join(entry.Params, "; ") + ")",
		})
	}
	for _, entry := range res.Symbols.Macros {
		item := lsp.CompletionItem{
			Label:         entry.Name,
			Kind:          lsp.CIKSnippet,
			Detail:        fmt.Sprintf("macro %s, %d parameter(s)", entry.Name, len(entry.Params)),
			Documentation: originNote(entry),
		}
		if len(entry.Params) > 0 {
			item.InsertText = entry.Name + "(" + strings.Join(entry.Params, "; ") + ")"
		}
		items = append(items, item)
	}
	for _, entry := range res.Symbols.Units {
		items = append(items, lsp.CompletionItem{
			Label:         entry.Name,
			Kind:          lsp.CIKUnit,
			Detail:        "." + entry.Name + " = " + entry.Definition,
			Documentation: originNote(entry),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

// originNote renders an entry's provenance for display next to the
// completion label.
func originNote(entry cpad.SymbolEntry) string {
	if entry.Origin == cpad.OriginLocal {
		return "defined in this document"
	}
	return fmt.Sprintf("%s: %s", entry.Origin, entry.SourceFile)
}

// Hover returns the definition text for the symbol under the cursor, if
// any. line and character are 0-based positions in the original document.
func Hover(res *cpad.Resolved, text string, line, character int) (string, bool) {
	if res == nil {
		return "", false
	}

	lines := cpad.SplitLines(text)
	if line < 0 || line >= len(lines) {
		return "", false
	}

	name := wordAt(lines[line], character)
	if name == "" {
		return "", false
	}

	if entry, ok := res.Symbols.Variables[name]; ok {
		return fmt.Sprintf("%s = %s\n\n%s", entry.Name, entry.Definition, originNote(entry)), true
	}
	if entry, ok := res.Symbols.Functions[name]; ok {
		return fmt.Sprintf("%s(%s) = %s\n\n%s", entry.Name, strings.Join(entry.Params, "; "), entry.Definition, originNote(entry)), true
	}
	if entry, ok := res.Symbols.Macros[name]; ok {
		return fmt.Sprintf("macro %s(%s)\n\n%s", entry.Name, strings.Join(entry.Params, "; "), originNote(entry)), true
	}
	if entry, ok := res.Symbols.Units[name]; ok {
		return fmt.Sprintf(".%s = %s\n\n%s", entry.Name, entry.Definition, originNote(entry)), true
	}
	return "", false
}

// wordAt extracts the identifier covering a character offset (in runes).
func wordAt(line string, character int) string {
	runes := []rune(line)
	if character < 0 || character >= len(runes) {
		return ""
	}

	if !cpad.IsNameRune(runes[character]) {
		return ""
	}
	start := character
	for start > 0 && cpad.IsNameRune(runes[start-1]) {
		start--
	}
	end := character
	for end < len(runes) && cpad.IsNameRune(runes[end]) {
		end++
	}
	return string(runes[start:end])
}
