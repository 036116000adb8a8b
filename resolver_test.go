package cpad

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func TestResolverFullPipeline(t *testing.T) {
	cache := NewContentCache()
	cache.Put("steel.cpd", []string{"fy = 235", "#def E$ = 200000"})

	r := NewResolver("", cache)
	res := r.Resolve(strings.Join([]string{
		"' Beam check",
		"#def w$ = 12",
		"b = 4 _",
		"   + w$",
		`#include "steel.cpd"`,
		"#def area$(b$;h$) = b$*h$",
		"A = area$(b; 10)",
	}, "\n"))

	require.False(t, res.PassThrough)
	golden.Assert(t, res.ExpandedText()+"\n", "resolver/full_pipeline.golden.cpd")

	require.Equal(t, map[int]int{0: 0, 1: 1, 2: 2, 3: 4, 4: 4, 5: 5, 6: 6}, res.SourceMap)
	require.Equal(t, map[int]string{2: "w$", 6: "area$(b; 10)"}, res.MacroExpansions)
	require.Equal(t, map[int][]int{0: {0}, 1: {1}, 2: {2, 3}, 3: {4}, 4: {5}, 5: {6}}, res.Continuations)

	require.Equal(t, 3, res.Macros.Len())
	eDef, ok := res.Macros.Lookup("E$")
	require.True(t, ok)
	require.Equal(t, OriginFetch, eDef.Origin)
	require.Equal(t, "steel.cpd", eDef.SourceFile)

	require.Contains(t, res.Symbols.Variables, "b")
	require.Contains(t, res.Symbols.Variables, "fy")
	require.Contains(t, res.Symbols.Variables, "A")
	require.Equal(t, OriginFetch, res.Symbols.Variables["fy"].Origin)
	require.Contains(t, res.Symbols.Macros, "area$")
}

func TestResolverSourceMapTotality(t *testing.T) {
	cache := NewContentCache()
	cache.Put("lib.cpd", []string{"a = 1", "b = 2", "#def m$(x$) = x$*2"})

	docs := []string{
		"x = 1\ny = 2",
		"#include lib.cpd\nz = m$(3)",
		"#def rows$(n$)\nr = n$\n#end def\nrows$(4)",
		"broken _",
		"",
	}

	for _, doc := range docs {
		res := NewResolver("", cache).Resolve(doc)
		require.Len(t, res.SourceMap, len(res.Lines))
		for i := range res.Lines {
			_, ok := res.SourceMap[i]
			require.True(t, ok, "line %d must have a source map entry", i)
		}
	}
}

func TestResolverFastPathWithoutDirectives(t *testing.T) {
	res := NewResolver("", nil).Resolve("x = 1\ny = x _\n + 1")

	require.Equal(t, []string{"x = 1", "y = x  + 1"}, res.Lines)
	require.Equal(t, map[int]int{0: 0, 1: 1}, res.SourceMap)
	require.Empty(t, res.MacroExpansions)
	require.Equal(t, 0, res.Macros.Len())
	require.Contains(t, res.Symbols.Variables, "y")
}

func TestResolverIdentityOnPlainDocument(t *testing.T) {
	text := "a = 1\nb = a + 2\nc = b"

	res := NewResolver("", nil).Resolve(text)

	require.Equal(t, SplitLines(text), res.Lines)
	for i := range res.Lines {
		require.Equal(t, i, res.SourceMap[i])
		require.Equal(t, []int{i}, res.Continuations[i])
	}
}

func TestResolverUnresolvedIncludeKeepsGoing(t *testing.T) {
	res := NewResolver("", nil).Resolve("#include missing.cpd\nx = 1")

	require.Len(t, res.Lines, 2)
	require.True(t, IsSyntheticError(res.Lines[0]))
	require.Equal(t, "x = 1", res.Lines[1])
	require.Contains(t, res.Symbols.Variables, "x")
}

func TestPassThroughResult(t *testing.T) {
	raw := []string{"x = 1", "#def broken"}

	res := passThrough(raw)

	require.True(t, res.PassThrough)
	require.Equal(t, raw, res.Lines)
	for i := range raw {
		require.Equal(t, i, res.SourceMap[i])
	}
	require.Empty(t, res.Symbols.Variables)
}
