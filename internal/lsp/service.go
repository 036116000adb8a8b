package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"cpad"
	"cpad/internal/fetch"
	"cpad/internal/lint"
)

// DefaultDebounce is how long a document must be idle before an edit
// triggers re-resolution.
const DefaultDebounce = 500 * time.Millisecond

type DocumentServiceOptions struct {
	// Optional path to the remote-include fetch configuration; empty
	// disables remote pre-fetching entirely.
	FetchConfigPath string
	// Idle time before a change is resolved; zero means DefaultDebounce
	Debounce time.Duration
	// Bound for fixed-point macro expansion; zero means the pipeline default
	MaxPasses int
}

// documentState is everything tracked for one open document. The resolved
// result is replaced atomically: a run that finishes after a newer edit
// arrived is simply discarded.
type documentState struct {
	text     string
	version  int
	timer    *time.Timer
	resolved *cpad.Resolved
	diags    []lint.Diagnostic
}

// DocumentService owns per-document resolution for the language server:
// it caches open document text, debounces edits, runs the pipeline plus
// lint, and hands results to the publish callback.
type DocumentService struct {
	mu   sync.Mutex
	docs map[string]*documentState

	cache     *cpad.ContentCache
	fetcher   *fetch.Fetcher
	debounce  time.Duration
	maxPasses int

	// Called with fresh results after every completed resolution
	onResolved func(uri string, res *cpad.Resolved, diags []lint.Diagnostic)
}

func NewDocumentService(opts DocumentServiceOptions) (*DocumentService, error) {
	s := &DocumentService{
		docs:      make(map[string]*documentState),
		cache:     cpad.NewContentCache(),
		debounce:  opts.Debounce,
		maxPasses: opts.MaxPasses,
	}
	if s.debounce == 0 {
		s.debounce = DefaultDebounce
	}

	if opts.FetchConfigPath != "" {
		cfg, err := fetch.LoadConfig(opts.FetchConfigPath)
		if err != nil {
			return nil, err
		}
		s.fetcher = fetch.NewFetcher(cfg, s.cache)
	}

	return s, nil
}

// SetResolvedHandler registers the callback invoked after every completed
// resolution. Must be set before documents are opened.
func (s *DocumentService) SetResolvedHandler(fn func(uri string, res *cpad.Resolved, diags []lint.Diagnostic)) {
	s.onResolved = fn
}

// Open registers a document and resolves it immediately, so diagnostics
// show up without waiting out the debounce interval.
func (s *DocumentService) Open(uri, text string, version int) {
	s.mu.Lock()
	s.docs[uri] = &documentState{text: text, version: version}
	s.mu.Unlock()

	s.resolveNow(uri, version)
}

// Change stores new content and schedules resolution once the document has
// been idle for the debounce interval. A newer change simply restarts the
// timer; the stale run never happens.
func (s *DocumentService) Change(uri, text string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		doc = &documentState{}
		s.docs[uri] = doc
	}
	doc.text = text
	doc.version = version

	if doc.timer != nil {
		doc.timer.Stop()
	}
	doc.timer = time.AfterFunc(s.debounce, func() {
		s.resolveNow(uri, version)
	})
}

// Close forgets a document.
func (s *DocumentService) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[uri]; ok && doc.timer != nil {
		doc.timer.Stop()
	}
	delete(s.docs, uri)
}

// Resolved returns the latest result for a document.
func (s *DocumentService) Resolved(uri string) (*cpad.Resolved, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok || doc.resolved == nil {
		return nil, false
	}
	return doc.resolved, true
}

// Text returns the current content of an open document.
func (s *DocumentService) Text(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return "", false
	}
	return doc.text, true
}

// Diagnostics returns the latest lint findings for a document.
func (s *DocumentService) Diagnostics(uri string) []lint.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[uri]; ok {
		return doc.diags
	}
	return nil
}

// InvalidateRef drops one pre-fetched reference so the next resolution
// re-fetches it.
func (s *DocumentService) InvalidateRef(ref string) {
	s.cache.Invalidate(ref)
}

// resolveNow runs the full pipeline for a document. The result is discarded
// if the document has changed since the run was scheduled.
func (s *DocumentService) resolveNow(uri string, version int) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || doc.version != version {
		s.mu.Unlock()
		return
	}
	text := doc.text
	s.mu.Unlock()

	baseDir := ""
	if path, err := URIToPath(uri); err == nil {
		baseDir = filepath.Dir(path)
	}

	lines := cpad.SplitLines(text)

	// Remote content is pre-fetched before the synchronous pipeline so
	// resolution never awaits network I/O mid-run.
	if s.fetcher != nil {
		s.fetcher.Prefetch(context.Background(), lines, baseDir)
	}

	resolver := cpad.NewResolver(baseDir, s.cache)
	resolver.MaxPasses = s.maxPasses
	res := resolver.ResolveLines(lines)
	diags := lint.Check(res)

	s.mu.Lock()
	doc, ok = s.docs[uri]
	if !ok || doc.version != version {
		// A newer edit won; drop this run.
		s.mu.Unlock()
		return
	}
	doc.resolved = res
	doc.diags = diags
	s.mu.Unlock()

	slog.Debug("resolved document",
		"uri", uri,
		"version", version,
		"expanded_lines", len(res.Lines),
		"diagnostics", len(diags),
	)

	if s.onResolved != nil {
		s.onResolved(uri, res, diags)
	}
}

// URIToPath converts an LSP document URI to a filesystem path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "" && u.Scheme != "file" {
		return "", fmt.Errorf("unsupported URI scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("URI %q has no path", uri)
	}
	return u.Path, nil
}

// PathToURI converts a filesystem path to an LSP document URI.
func PathToURI(path string) string {
	return "file://" + path
}
