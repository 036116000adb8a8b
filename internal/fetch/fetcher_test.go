package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cpad"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"base_url = \"https://calc.example.com/includes\"\ntoken = \"s3cret\"\ntimeout_seconds = 3\n",
	), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://calc.example.com/includes", cfg.BaseURL)
	require.Equal(t, "s3cret", cfg.Token)
	require.Equal(t, int64(3), int64(cfg.Timeout().Seconds()))
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch.toml")
	require.NoError(t, os.WriteFile(path, []byte("token = \"x\"\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestPrefetchPopulatesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/inc/steel.cpd":
			w.Write([]byte("fy = 235\nE = 200000\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cache := cpad.NewContentCache()
	f := NewFetcher(Config{BaseURL: srv.URL + "/inc", Token: "tok"}, cache)

	f.Prefetch(context.Background(), []string{
		`#include "steel.cpd"`,
		`#include "missing.cpd"`,
		"x = 1",
	}, "")

	got, ok := cache.Get("steel.cpd")
	require.True(t, ok)
	require.Equal(t, []string{"fy = 235", "E = 200000"}, got)

	// Failure is content, not an error: a synthetic comment line under the ref.
	failed, ok := cache.Get("missing.cpd")
	require.True(t, ok)
	require.Len(t, failed, 1)
	require.True(t, cpad.IsSyntheticError(failed[0]))
}

func TestPrefetchSkipsLocalAndResidentRefs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.cpd"), []byte("a = 1"), 0644))

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("remote = 1"))
	}))
	defer srv.Close()

	cache := cpad.NewContentCache()
	cache.Put("resident.cpd", []string{"cached = 1"})
	f := NewFetcher(Config{BaseURL: srv.URL}, cache)

	lines := []string{
		"#include local.cpd",
		"#include resident.cpd",
		"#include remote.cpd",
	}

	f.Prefetch(context.Background(), lines, dir)
	require.Equal(t, 1, hits)

	// Idempotent: nothing is re-fetched until an entry is invalidated.
	f.Prefetch(context.Background(), lines, dir)
	require.Equal(t, 1, hits)

	cache.Invalidate("remote.cpd")
	f.Prefetch(context.Background(), lines, dir)
	require.Equal(t, 2, hits)
}

func TestReferences(t *testing.T) {
	refs := References([]string{
		`#include "a.cpd"`,
		"x = 1",
		"#include b.cpd",
		`#include "a.cpd"`,
	})
	require.Equal(t, []string{"a.cpd", "b.cpd"}, refs)
}
