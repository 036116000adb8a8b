package cpad

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// EmbeddedBlock is one fenced calculation block extracted from a literate
// markdown document.
type EmbeddedBlock struct {
	// The raw block content
	Code string
	// 1-based line of the first content line in the markdown source
	StartLine int
}

// Extractor pulls fenced cpd code blocks out of markdown documents so the
// CLI can lint embedded calculation code and report at true markdown
// positions.
type Extractor struct {
	gm goldmark.Markdown
}

func NewExtractor() *Extractor {
	return &Extractor{
		gm: goldmark.New(),
	}
}

// Extract returns the cpd blocks of a markdown document in document order.
// A document with no cpd blocks yields an empty slice, not an error.
func (e *Extractor) Extract(r io.Reader) ([]EmbeddedBlock, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var blocks []EmbeddedBlock
	root := e.gm.Parser().Parse(text.NewReader(content))

	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		cb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if string(cb.Language(content)) != "cpd" {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		l := cb.Lines().Len()
		slog.Debug("extracting cpd code block", "lines", l)
		for i := 0; i < l; i++ {
			seg := cb.Lines().At(i)
			buf.Write(seg.Value(content))
		}

		start := 0
		if l > 0 {
			start = lineNumberAt(content, cb.Lines().At(0).Start)
		}

		blocks = append(blocks, EmbeddedBlock{
			Code:      buf.String(),
			StartLine: start,
		})
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	return blocks, nil
}

func lineNumberAt(content []byte, byteOffset int) int {
	return bytes.Count(content[:byteOffset], []byte("\n")) + 1
}
