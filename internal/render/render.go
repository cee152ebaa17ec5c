// Package render implements the three output formats spec.md §6
// names: text, JSON, and SARIF 2.1.0. Grounded on internal/cli/output.go's
// OutputFormatter (format-switched Success/Error) for the text/JSON
// split, and on original_source/src/sarif/reporter.rs for the SARIF
// document shape (translated to idiomatic Go encoding/json struct tags
// rather than transliterated from its serde derive macros).
package render

import (
	"fmt"
	"io"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

// Format is one of the three renderers spec.md §6 names.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// Render writes res to w in the given format.
func Render(w io.Writer, format Format, res finding.AnalysisResult) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, res)
	case FormatSARIF:
		return RenderSARIF(w, res)
	case FormatText, "":
		return RenderText(w, res)
	default:
		return fmt.Errorf("render: unknown format %q", format)
	}
}
