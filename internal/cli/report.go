package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"cpad/internal/lint"
)

var (
	errorLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	warnLabel  = color.New(color.FgYellow, color.Bold).SprintFunc()
	pathLabel  = color.New(color.FgCyan).SprintFunc()
	okLabel    = color.New(color.FgGreen).SprintFunc()
)

// Report prints per-file results in a compact, colorized form and returns
// the number of error-severity findings.
func Report(w io.Writer, results []FileResult, root string) int {
	errors := 0

	for _, result := range results {
		rel := result.Path
		if root != "" {
			if r, err := filepath.Rel(root, result.Path); err == nil {
				rel = r
			}
		}

		if result.Err != nil {
			errors++
			fmt.Fprintf(w, "%s %s: %v\n", errorLabel("error"), pathLabel(rel), result.Err)
			continue
		}

		for _, d := range result.Diagnostics {
			label := warnLabel("warning")
			if d.Severity == lint.SeverityError {
				label = errorLabel("error")
				errors++
			}

			msg := d.Message
			if d.CallText != "" {
				msg = fmt.Sprintf("in expansion of %s: %s", d.CallText, d.Message)
			}
			fmt.Fprintf(w, "%s:%d: %s %s\n", pathLabel(rel), d.Line+1, label, msg)
		}

		if len(result.Diagnostics) == 0 {
			suffix := ""
			if result.OutPath != "" {
				suffix = " -> " + filepath.Base(result.OutPath)
			}
			fmt.Fprintf(w, "%s %s%s\n", okLabel("ok"), pathLabel(rel), suffix)
		}
	}

	return errors
}
