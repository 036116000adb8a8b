package cpad

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceExpanderInlinesCachedContent(t *testing.T) {
	cache := NewContentCache()
	cache.Put("a.cpd", []string{"p = 1", "q = 2"})

	e := &ReferenceExpander{Cache: cache}
	table := NewMacroTable()

	lines, sourceMap, origins := e.Expand([]string{
		"x = 1",
		`#include "a.cpd"`,
		"y = x",
	}, table)

	require.Equal(t, []string{"x = 1", "p = 1", "q = 2", "y = x"}, lines)
	// Both included lines map to the directive's line index
	require.Equal(t, map[int]int{0: 0, 1: 1, 2: 1, 3: 2}, sourceMap)

	require.Equal(t, OriginLocal, origins[0].Origin)
	require.Equal(t, OriginFetch, origins[1].Origin)
	require.Equal(t, "a.cpd", origins[1].SourceFile)
	require.Equal(t, OriginFetch, origins[2].Origin)
	require.Equal(t, OriginLocal, origins[3].Origin)
}

func TestReferenceExpanderPrefersLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.cpd"), []byte("g = 9.81"), 0644))

	cache := NewContentCache()
	cache.Put("lib.cpd", []string{"g = 10"})

	e := &ReferenceExpander{BaseDir: dir, Cache: cache}
	table := NewMacroTable()

	lines, _, origins := e.Expand([]string{"#include lib.cpd"}, table)

	require.Equal(t, []string{"g = 9.81"}, lines)
	require.Equal(t, OriginInclude, origins[0].Origin)
	require.Equal(t, "lib.cpd", origins[0].SourceFile)
}

func TestReferenceExpanderMissingIncludeIsRecoverable(t *testing.T) {
	e := &ReferenceExpander{}
	table := NewMacroTable()

	lines, sourceMap, _ := e.Expand([]string{
		"x = 1",
		`#include "gone.cpd"`,
		"y = 2",
	}, table)

	require.Len(t, lines, 3)
	require.True(t, IsSyntheticError(lines[1]))
	require.Contains(t, lines[1], "gone.cpd")
	require.Equal(t, 1, sourceMap[1])
}

func TestReferenceExpanderCollectsMacrosWithoutExpanding(t *testing.T) {
	e := &ReferenceExpander{}
	table := NewMacroTable()

	lines, _, _ := e.Expand([]string{
		"#def area$(r$) = 3.14*r$^2",
		"#def block$(n$)",
		"row = n$",
		"#end def",
		"a = area$(2)",
	}, table)

	// Definitions are never deleted from the visible text, and no call is
	// rewritten at this stage.
	require.Equal(t, []string{
		"#def area$(r$) = 3.14*r$^2",
		"#def block$(n$)",
		"row = n$",
		"#end def",
		"a = area$(2)",
	}, lines)

	require.Equal(t, 2, table.Len())

	inline, ok := table.Lookup("area$")
	require.True(t, ok)
	require.Equal(t, []string{"3.14*r$^2"}, inline.Body)
	require.Equal(t, 0, inline.Line)

	block, ok := table.Lookup("block$")
	require.True(t, ok)
	require.Equal(t, []string{"row = n$"}, block.Body)
	require.Equal(t, []string{"n$"}, block.Params)
}

func TestReferenceExpanderDuplicateFromInclude(t *testing.T) {
	cache := NewContentCache()
	cache.Put("lib.cpd", []string{"#def m$ = 2"})

	e := &ReferenceExpander{Cache: cache}
	table := NewMacroTable()

	e.Expand([]string{
		"#def m$ = 1",
		`#include "lib.cpd"`,
	}, table)

	// The active entry is the first one encountered in document order,
	// regardless of which side is local vs. included.
	def, ok := table.Lookup("m$")
	require.True(t, ok)
	require.Equal(t, []string{"1"}, def.Body)
	require.Equal(t, OriginLocal, def.Origin)

	dups := table.Duplicates()
	require.Len(t, dups, 1)
	require.Equal(t, "m$", dups[0].Name)
	require.Equal(t, 1, dups[0].Line)
	require.Equal(t, 0, dups[0].OriginalLine)
}

func TestReferenceExpanderUnterminatedBlock(t *testing.T) {
	e := &ReferenceExpander{}
	table := NewMacroTable()

	lines, _, _ := e.Expand([]string{
		"#def broken$(x$)",
		"body = x$",
	}, table)

	require.Len(t, lines, 3)
	require.True(t, IsSyntheticError(lines[2]))
	require.Equal(t, 0, table.Len())
}

func TestContentCacheInvalidate(t *testing.T) {
	cache := NewContentCache()
	cache.Put("r", []string{"a"})

	got, ok := cache.Get("r")
	require.True(t, ok)
	require.Equal(t, []string{"a"}, got)

	cache.Invalidate("r")
	_, ok = cache.Get("r")
	require.False(t, ok)
}
