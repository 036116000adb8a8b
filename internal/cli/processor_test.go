package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cpad/internal/lint"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestProcessSingleFileWithInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib.cpd"), "#def twice$(v$) = v$*2")
	writeFile(t, filepath.Join(dir, "main.cpd"), "#include lib.cpd\nx = twice$(3)")

	p, err := NewProcessor(Options{})
	require.NoError(t, err)

	results, err := p.ProcessPath(context.Background(), filepath.Join(dir, "main.cpd"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Empty(t, results[0].Diagnostics)
}

func TestProcessFileReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.cpd"), "#include missing.cpd\nx = ghost")

	p, err := NewProcessor(Options{})
	require.NoError(t, err)

	results, err := p.ProcessPath(context.Background(), filepath.Join(dir, "bad.cpd"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEmpty(t, results[0].Diagnostics)
}

func TestExpandModeWritesOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.cpd")
	writeFile(t, src, "#def m$ = 5\nx = m$")

	p, err := NewProcessor(Options{Expand: true, NoBackup: true})
	require.NoError(t, err)

	results, err := p.ProcessPath(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	out, err := os.ReadFile(results[0].OutPath)
	require.NoError(t, err)
	require.Equal(t, "#def m$ = 5\nx = 5\n", string(out))
}

func TestExpandModeBacksUpExistingOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.cpd")
	writeFile(t, src, "x = 1")
	writeFile(t, filepath.Join(dir, "doc.expanded.cpd"), "stale")

	p, err := NewProcessor(Options{Expand: true})
	require.NoError(t, err)

	_, err = p.ProcessPath(context.Background(), src)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "doc.expanded.cpd.*.bak"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	stale, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "stale", string(stale))
}

func TestProcessDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cpd"), "x = 1")
	writeFile(t, filepath.Join(dir, "sub", "b.cpd"), "y = 2")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	p, err := NewProcessor(Options{})
	require.NoError(t, err)

	results, err := p.ProcessPath(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, strings.HasSuffix(results[0].Path, "a.cpd"))
	require.True(t, strings.HasSuffix(results[1].Path, "b.cpd"))
}

func TestProcessMarkdownShiftsDiagnosticLines(t *testing.T) {
	dir := t.TempDir()
	md := strings.Join([]string{
		"# Notes",
		"",
		"```cpd",
		"x = 1",
		"y = ghost",
		"```",
	}, "\n")
	writeFile(t, filepath.Join(dir, "notes.md"), md)

	p, err := NewProcessor(Options{})
	require.NoError(t, err)

	results, err := p.ProcessPath(context.Background(), filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Diagnostics, 1)
	// ghost is used on markdown line 5 (0-based 4)
	require.Equal(t, 4, results[0].Diagnostics[0].Line)
}

func TestReportCountsErrors(t *testing.T) {
	var buf bytes.Buffer
	n := Report(&buf, []FileResult{
		{
			Path: "/tmp/a.cpd",
			Diagnostics: []lint.Diagnostic{
				{Line: 0, Severity: lint.SeverityError, Message: "boom"},
				{Line: 1, Severity: lint.SeverityWarning, Message: "meh"},
			},
		},
		{Path: "/tmp/b.cpd"},
	}, "/tmp")

	require.Equal(t, 1, n)
	out := buf.String()
	require.Contains(t, out, "a.cpd:1:")
	require.Contains(t, out, "boom")
	require.Contains(t, out, "ok")
}
