package render

import (
	"encoding/json"
	"io"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

// jsonFinding is the flattened per-finding shape spec.md §6's "JSON
// output schema" names: `{kind, severity, module, function, line,
// column, message, suggestion?}` — the location fields promoted out of
// the nested Location the internal model uses, since external tooling
// consuming this schema should not need to know Hydra's internal
// representation.
type jsonFinding struct {
	Kind       finding.Kind `json:"kind"`
	Severity   string       `json:"severity"`
	Module     string       `json:"module"`
	Function   string       `json:"function"`
	Line       int          `json:"line,omitempty"`
	Column     int          `json:"column,omitempty"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// jsonReport is the top-level JSON document: `{findings: [...], summary:
// {...}, version}` per spec.md §6, with run_id carried alongside as an
// additional field (not excluded by the schema, only required by it).
type jsonReport struct {
	RunID    string            `json:"run_id"`
	Findings []jsonFinding     `json:"findings"`
	Summary  finding.Summary   `json:"summary"`
	Version  string            `json:"version"`
}

func toJSONFinding(v finding.SafetyViolation) jsonFinding {
	return jsonFinding{
		Kind:       v.Kind,
		Severity:   v.Severity.String(),
		Module:     v.Location.Module,
		Function:   v.Location.Function,
		Line:       v.Location.Line,
		Column:     v.Location.Column,
		Message:    v.Message,
		Suggestion: v.SuggestedFix,
	}
}

// RenderJSON writes res as indented, deterministic JSON (spec.md §8
// "Finding stability": running analysis twice produces byte-identical
// output, so field order and indentation must be fixed, not driven by
// map iteration).
func RenderJSON(w io.Writer, res finding.AnalysisResult) error {
	out := jsonReport{
		RunID:   res.RunID,
		Summary: res.Summary,
		Version: res.Version,
	}
	for _, v := range res.Findings {
		out.Findings = append(out.Findings, toJSONFinding(v))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
