package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool    `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Version        string      `json:"version"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	ShortDescription sarifMessage     `json:"shortDescription"`
	FullDescription  sarifMessage     `json:"fullDescription"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string           `json:"ruleId"`
	Level     string           `json:"level"`
	Message   sarifMessage     `json:"message"`
	Locations []sarifLocation  `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

// severityToSARIFLevel implements spec.md §6's SARIF severity mapping:
// Critical/High -> error, Medium -> warning, Low/Info -> note.
func severityToSARIFLevel(sev finding.Severity) string {
	switch sev {
	case finding.Critical, finding.High:
		return "error"
	case finding.Medium:
		return "warning"
	default:
		return "note"
	}
}

// sarifRuleCatalog lists one SARIF rule definition per rule finding.Kind,
// grounded on original_source/src/sarif/reporter.rs's HYDRA001-style rule
// table, generalized from its six hand-written entries to every rule
// Kind. The operational kinds AnalysisWarning, ModuleSkipped and
// TimeoutSkipped have no entry; ruleID reports them as HYDRA000.
var sarifRuleCatalog = []finding.Kind{
	finding.KindReferenceEscape, finding.KindBoundaryCrossing, finding.KindStoredReference,
	finding.KindUnsafeTransfer, finding.KindUseAfterTransfer, finding.KindInvalidSharedAccess,
	finding.KindInvariantViolation, finding.KindUncheckedArithmetic, finding.KindPossibleUnderflow,
	finding.KindDivByZero, finding.KindResourceLeak, finding.KindDynamicFieldNotRemoved,
	finding.KindCapabilityLeak, finding.KindUnsafeDelegation, finding.KindMissingExpiryCheck,
	finding.KindCapabilityResourceMismatch, finding.KindPrivilegeEscalation,
	finding.KindMissingConsensus, finding.KindMissingTimestampCheck, finding.KindUnusedClock,
	finding.KindExternalCallInLoop, finding.KindNestedExternalLoops, finding.KindDynamicLoopBound,
}

func ruleID(kind finding.Kind) string {
	for i, k := range sarifRuleCatalog {
		if k == kind {
			return fmt.Sprintf("HYDRA%03d", i+1)
		}
	}
	return "HYDRA000"
}

func buildRules() []sarifRule {
	rules := make([]sarifRule, 0, len(sarifRuleCatalog))
	for i, k := range sarifRuleCatalog {
		rules = append(rules, sarifRule{
			ID:               fmt.Sprintf("HYDRA%03d", i+1),
			Name:             string(k),
			ShortDescription: sarifMessage{Text: string(k) + " detected"},
			FullDescription:  sarifMessage{Text: "Hydra safety rule: " + string(k)},
		})
	}
	return rules
}

// RenderSARIF writes res as a SARIF 2.1.0 document, one run per
// invocation and one result per finding (spec.md §6).
func RenderSARIF(w io.Writer, res finding.AnalysisResult) error {
	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:           "hydra",
			InformationURI: "https://github.com/hydra-analyzer/hydra",
			Version:        res.Version,
			Rules:          buildRules(),
		}},
	}
	for _, v := range res.Findings {
		run.Results = append(run.Results, sarifResult{
			RuleID:  ruleID(v.Kind),
			Level:   severityToSARIFLevel(v.Severity),
			Message: sarifMessage{Text: v.Message},
			Locations: []sarifLocation{{PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: v.Location.Module + ".move"},
				Region:           sarifRegion{StartLine: v.Location.Line, StartColumn: v.Location.Column},
			}}},
		})
	}

	doc := sarifReport{Schema: sarifSchema, Version: "2.1.0", Runs: []sarifRun{run}}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}
