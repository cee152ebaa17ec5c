package render

import (
	"fmt"
	"io"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

// RenderText writes res as fixed-width human-readable lines, in the
// style of internal/cli/output.go's plain Fprintln/Fprintf fallback
// rather than a templated report.
func RenderText(w io.Writer, res finding.AnalysisResult) error {
	for _, v := range res.Findings {
		loc := v.Location.Module + "::" + v.Location.Function
		if v.Location.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, v.Location.Line)
		}
		if _, err := fmt.Fprintf(w, "[%s] %s %s: %s\n", v.Severity, v.Kind, loc, v.Message); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "\n%d findings (critical=%d high=%d medium=%d low=%d info=%d)\n",
		len(res.Findings), res.Summary.Critical, res.Summary.High, res.Summary.Medium, res.Summary.Low, res.Summary.Info)
	return nil
}
