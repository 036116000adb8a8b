package lsp

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpad"
	"cpad/internal/lint"
)

func newTestService(t *testing.T) *DocumentService {
	t.Helper()
	s, err := NewDocumentService(DocumentServiceOptions{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	return s
}

func TestOpenResolvesImmediately(t *testing.T) {
	s := newTestService(t)

	var mu sync.Mutex
	var published []string
	s.SetResolvedHandler(func(uri string, res *cpad.Resolved, diags []lint.Diagnostic) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, uri)
	})

	s.Open("file:///doc.cpd", "#def m$ = 1\nx = m$", 1)

	res, ok := s.Resolved("file:///doc.cpd")
	require.True(t, ok)
	require.Equal(t, []string{"#def m$ = 1", "x = 1"}, res.Lines)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"file:///doc.cpd"}, published)
}

func TestChangeDebouncesAndDiscardsStaleRuns(t *testing.T) {
	s := newTestService(t)

	resolved := make(chan int, 8)
	s.SetResolvedHandler(func(uri string, res *cpad.Resolved, diags []lint.Diagnostic) {
		resolved <- len(res.Lines)
	})

	s.Open("file:///doc.cpd", "a = 1", 1)
	<-resolved

	// Rapid edits: only the last version should resolve.
	s.Change("file:///doc.cpd", "a = 1\nb = 2", 2)
	s.Change("file:///doc.cpd", "a = 1\nb = 2\nc = 3", 3)

	select {
	case n := <-resolved:
		require.Equal(t, 3, n)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced resolution")
	}

	select {
	case n := <-resolved:
		t.Fatalf("unexpected extra resolution with %d lines", n)
	case <-time.After(100 * time.Millisecond):
	}

	res, ok := s.Resolved("file:///doc.cpd")
	require.True(t, ok)
	require.Len(t, res.Lines, 3)
}

func TestCloseForgetsDocument(t *testing.T) {
	s := newTestService(t)
	s.Open("file:///doc.cpd", "a = 1", 1)

	s.Close("file:///doc.cpd")

	_, ok := s.Resolved("file:///doc.cpd")
	require.False(t, ok)
	_, ok = s.Text("file:///doc.cpd")
	require.False(t, ok)
}

func TestCompletionItemsFromSymbolTables(t *testing.T) {
	res := cpad.NewResolver("", nil).Resolve(strings.Join([]string{
		"#def twice$(v$) = v$*2",
		"width = 10",
		"area(b; h) = b*h",
		".kip = 4.448*kN",
	}, "\n"))

	items := CompletionItems(res)

	labels := make(map[string]string)
	for _, item := range items {
		labels[item.Label] = item.Detail
	}

	require.Contains(t, labels, "width")
	require.Contains(t, labels, "area")
	require.Contains(t, labels, "twice$")
	require.Contains(t, labels, "kip")
	require.Contains(t, labels["area"], "area(b; h)")
	require.Contains(t, labels["twice$"], "1 parameter(s)")
}

func TestCompletionItemsCarryOrigin(t *testing.T) {
	cache := cpad.NewContentCache()
	cache.Put("lib.cpd", []string{"gravity = 9.81"})

	res := cpad.NewResolver("", cache).Resolve(`#include "lib.cpd"` + "\nx = gravity")

	items := CompletionItems(res)
	for _, item := range items {
		if item.Label == "gravity" {
			require.Contains(t, item.Documentation, "lib.cpd")
			return
		}
	}
	t.Fatal("gravity completion not found")
}

func TestHover(t *testing.T) {
	text := "width = 10\nx = width + 1"
	res := cpad.NewResolver("", nil).Resolve(text)

	// Cursor on "width" in the second line
	content, ok := Hover(res, text, 1, 5)
	require.True(t, ok)
	require.Contains(t, content, "width = 10")

	_, ok = Hover(res, text, 1, 2)
	require.False(t, ok)
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{uri: "file:///home/user/doc.cpd", want: "/home/user/doc.cpd"},
		{uri: "https://example.com/doc.cpd", wantErr: true},
		{uri: "file://", wantErr: true},
	}

	for _, tc := range tests {
		got, err := URIToPath(tc.uri)
		if tc.wantErr {
			require.Error(t, err, tc.uri)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}
