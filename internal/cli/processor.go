package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/sync/errgroup"

	"cpad"
	"cpad/internal/fetch"
	"cpad/internal/lint"
)

const (
	maxFiles   = 200
	maxWorkers = 4

	calcExtension     = ".cpd"
	markdownExtension = ".md"
	expandedSuffix    = ".expanded.cpd"
)

type Options struct {
	// Write the fully expanded document next to the source instead of
	// only reporting diagnostics
	Expand bool
	// Skip the pre-overwrite backup of an existing expanded output
	NoBackup bool
	// Optional TOML configuration for remote includes
	FetchConfigPath string
}

// FileResult is the outcome for one processed file.
type FileResult struct {
	Path string
	// Path of the expanded output, when expansion was requested
	OutPath     string
	Diagnostics []lint.Diagnostic
	Err         error
}

// Processor resolves and lints calculation files in batch: plain .cpd
// documents and markdown files with embedded cpd blocks.
type Processor struct {
	opts      Options
	cache     *cpad.ContentCache
	fetcher   *fetch.Fetcher
	extractor *cpad.Extractor
}

func NewProcessor(opts Options) (*Processor, error) {
	p := &Processor{
		opts:      opts,
		cache:     cpad.NewContentCache(),
		extractor: cpad.NewExtractor(),
	}

	if opts.FetchConfigPath != "" {
		cfg, err := fetch.LoadConfig(opts.FetchConfigPath)
		if err != nil {
			return nil, err
		}
		p.fetcher = fetch.NewFetcher(cfg, p.cache)
	}

	return p, nil
}

// ProcessPath resolves a single file or every matching file under a
// directory. Results come back in path order.
func (p *Processor) ProcessPath(ctx context.Context, path string) ([]FileResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path: %w", err)
	}

	if info.IsDir() {
		return p.processDirectory(ctx, path)
	}

	return []FileResult{p.processFile(ctx, path)}, nil
}

// findFiles walks the directory tree starting at root and returns every
// processable file.
//
// If a .git directory is found, .gitignore patterns are honored.
func (p *Processor) findFiles(root string) ([]string, error) {
	var files []string
	var patterns []gitignore.Pattern

	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		patterns = append(patterns, gitignore.ParsePattern(".git/", nil))

		if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
					patterns = append(patterns, gitignore.ParsePattern(line, nil))
				}
			}
		}
	}

	matcher := gitignore.NewMatcher(patterns)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if len(patterns) > 0 {
			components := strings.Split(relPath, string(os.PathSeparator))
			if matcher.Match(components, info.IsDir()) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if info.IsDir() || strings.HasSuffix(path, expandedSuffix) {
			return nil
		}
		if strings.HasSuffix(path, calcExtension) || strings.HasSuffix(path, markdownExtension) {
			if len(files) >= maxFiles {
				return fmt.Errorf("max files limit reached (%d)", maxFiles)
			}
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no %s or %s files found", calcExtension, markdownExtension)
	}

	return files, nil
}

func (p *Processor) processDirectory(ctx context.Context, root string) ([]FileResult, error) {
	startTime := time.Now()
	slog.Debug("starting directory processing", "path", root)

	files, err := p.findFiles(root)
	if err != nil {
		return nil, err
	}
	slog.Debug("found files to process", "count", len(files), "duration", time.Since(startTime))

	var mu sync.Mutex
	var results []FileResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			result := p.processFile(gctx, file)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	slog.Debug("directory processing completed", "duration", time.Since(startTime), "processed", len(results))
	return results, nil
}

func (p *Processor) processFile(ctx context.Context, path string) FileResult {
	startTime := time.Now()
	result := FileResult{Path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		result.Err = fmt.Errorf("error reading file: %w", err)
		return result
	}

	if strings.HasSuffix(path, markdownExtension) {
		result.Diagnostics, result.Err = p.lintMarkdown(ctx, path, content)
		return result
	}

	res := p.resolve(ctx, path, string(content))
	result.Diagnostics = lint.Check(res)

	if p.opts.Expand {
		outPath := strings.TrimSuffix(path, calcExtension) + expandedSuffix
		if err := p.writeExpanded(res, outPath); err != nil {
			result.Err = err
			return result
		}
		result.OutPath = outPath
	}

	slog.Debug("file processed", "path", path, "duration", time.Since(startTime))
	return result
}

// lintMarkdown checks every embedded cpd block of a literate document,
// shifting diagnostic lines to markdown coordinates.
func (p *Processor) lintMarkdown(ctx context.Context, path string, content []byte) ([]lint.Diagnostic, error) {
	blocks, err := p.extractor.Extract(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("error extracting cpd blocks: %w", err)
	}

	var diags []lint.Diagnostic
	for _, block := range blocks {
		res := p.resolve(ctx, path, block.Code)
		for _, d := range lint.Check(res) {
			// Diagnostic lines are 0-based within the block; StartLine is
			// the 1-based markdown line of the block's first content line.
			d.Line += block.StartLine - 1
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func (p *Processor) resolve(ctx context.Context, path, text string) *cpad.Resolved {
	baseDir := filepath.Dir(path)
	lines := cpad.SplitLines(text)

	if p.fetcher != nil {
		p.fetcher.Prefetch(ctx, lines, baseDir)
	}

	return cpad.NewResolver(baseDir, p.cache).ResolveLines(lines)
}

// writeExpanded writes the resolved text, backing up an existing output
// first unless backups are disabled.
func (p *Processor) writeExpanded(res *cpad.Resolved, outPath string) error {
	if !p.opts.NoBackup {
		bkPath, err := backupFile(outPath)
		if err != nil {
			return fmt.Errorf("backup error: %w", err)
		}
		if bkPath != "" {
			slog.Info("output file already existed. Created a backup.", "backup", bkPath, "output", outPath)
		}
	}

	return os.WriteFile(outPath, []byte(res.ExpandedText()+"\n"), 0644)
}
