package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cpad"
)

// Fetcher populates a content cache with remote include content before the
// synchronous resolver runs. The resolver itself never awaits network I/O:
// everything it might need has to be resident by the time it starts, and a
// failed reference is represented as a synthetic error line, never as an
// error return.
type Fetcher struct {
	cfg    Config
	client *http.Client
	cache  *cpad.ContentCache
}

func NewFetcher(cfg Config, cache *cpad.ContentCache) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		cache:  cache,
	}
}

// Cache returns the cache this fetcher populates.
func (f *Fetcher) Cache() *cpad.ContentCache {
	return f.cache
}

// Prefetch scans raw document lines for include directives whose targets
// are not locally resolvable and fetches each one into the cache. Already
// resident references are skipped, so repeated calls are idempotent until
// the caller invalidates an entry.
func (f *Fetcher) Prefetch(ctx context.Context, lines []string, baseDir string) {
	for _, ref := range References(lines) {
		if f.cache.Has(ref) {
			continue
		}
		if baseDir != "" {
			if _, err := os.Stat(filepath.Join(baseDir, ref)); err == nil {
				continue
			}
		}
		f.cache.Put(ref, f.fetch(ctx, ref))
	}
}

// fetch retrieves one reference. On any failure the result is a single
// synthetic comment line carrying the error text.
func (f *Fetcher) fetch(ctx context.Context, ref string) []string {
	content, err := f.get(ctx, ref)
	if err != nil {
		slog.Warn("remote include fetch failed", "ref", ref, "error", err)
		return []string{cpad.SyntheticError(fmt.Sprintf("cannot fetch %q: %v", ref, err))}
	}
	slog.Debug("fetched remote include", "ref", ref, "lines", len(content))
	return content
}

func (f *Fetcher) get(ctx context.Context, ref string) ([]string, error) {
	target, err := url.JoinPath(f.cfg.BaseURL, ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return cpad.SplitLines(strings.TrimRight(string(body), "\n")), nil
}

// References returns the unique include targets of a document in first-use
// order.
func References(lines []string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, line := range lines {
		ref := cpad.IncludeTarget(line)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}
