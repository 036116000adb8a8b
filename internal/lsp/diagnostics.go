package lsp

import (
	"fmt"

	"github.com/sourcegraph/go-lsp"

	"cpad"
	"cpad/internal/lint"
)

// ToLSPDiagnostics converts lint findings into LSP diagnostics in
// original-document coordinates. The resolver already relocated every
// finding through the source map; lines generated by macro substitution
// additionally carry the call text, which is folded into the message so
// the user sees what expansion the finding came from.
func ToLSPDiagnostics(res *cpad.Resolved, diags []lint.Diagnostic) []lsp.Diagnostic {
	out := make([]lsp.Diagnostic, 0, len(diags))
	for _, d := range diags {
		msg := d.Message
		if d.CallText != "" {
			msg = fmt.Sprintf("in expansion of %s: %s", d.CallText, d.Message)
		}

		out = append(out, lsp.Diagnostic{
			Range: lsp.Range{
				Start: lsp.Position{Line: d.Line, Character: 0},
				End:   lsp.Position{Line: d.Line, Character: lineLength(res, d.Line)},
			},
			Severity: toLSPSeverity(d.Severity),
			Source:   "cpad",
			Message:  msg,
		})
	}
	return out
}

func toLSPSeverity(s lint.Severity) lsp.DiagnosticSeverity {
	if s == lint.SeverityError {
		return lsp.Error
	}
	return lsp.Warning
}

// lineLength approximates the flagged range as the whole original line.
// The resolver only keeps expanded text, so the length of an expanded line
// mapped to the raw line stands in when possible.
func lineLength(res *cpad.Resolved, rawLine int) int {
	for expanded, orig := range res.SourceMap {
		if orig == rawLine && expanded < len(res.Lines) {
			return len([]rune(res.Lines[expanded]))
		}
	}
	return 1
}
