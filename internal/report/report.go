// Package report implements the aggregator described in spec.md §4
// "Report aggregator": it merges the per-module findings produced by
// internal/object, internal/capability, and internal/verifier into one
// AnalysisResult, deduplicates, assigns a deterministic order, applies
// suppression pragmas, and promotes severities in --strict mode.
//
// Grounded on internal/store/marshal.go's canonical-output posture
// (deterministic serialization matters, spec.md §8 "Finding stability")
// and internal/cli/output.go's CLIResponse/exit-code split, adapted from
// a single CLI response into the run-wide AnalysisResult.
package report

import (
	"sort"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/suppress"
)

// RunIDGenerator produces the top-level AnalysisResult.RunID. Mirrors
// the teacher's engine.UUIDv7Generator/FixedGenerator split so golden
// tests get a deterministic ID instead of a fresh UUIDv7 every run.
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates a time-sortable UUIDv7 run ID.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.Must(uuid.NewV7()).String() }

// FixedRunID returns a constant ID, for golden tests.
type FixedRunID string

func (f FixedRunID) Generate() string { return string(f) }

// ModuleFindings is one module's raw rule-pack output, the input unit
// the aggregator merges (one per worker in internal/engine's pool).
type ModuleFindings struct {
	Module     string
	Violations []finding.SafetyViolation
	// Suppressions, when non-nil, is consulted to drop findings whose
	// location falls under a `// hydra-ignore[-next]:` pragma for that
	// module's source text.
	Suppressions suppress.Map
}

// Aggregator merges ModuleFindings across a whole `hydra analyze` run.
type Aggregator struct {
	Strict      bool
	RunID       RunIDGenerator
	collator    *collate.Collator
	moduleOrder []string
	dedup       map[dedupKey]bool
	byModule    map[string][]finding.SafetyViolation
}

// New returns an Aggregator ready to accept Merge calls. strict
// implements spec.md §6's --strict flag (promote Medium -> High, and
// raise AnalysisWarning findings below Low to Low so they count toward
// the exit code).
func New(strict bool, gen RunIDGenerator) *Aggregator {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return &Aggregator{
		Strict:   strict,
		RunID:    gen,
		collator: collate.New(language.Und),
		dedup:    make(map[dedupKey]bool),
		byModule: make(map[string][]finding.SafetyViolation),
	}
}

type dedupKey struct {
	Module    string
	Function  string
	StmtIndex int
	Kind      finding.Kind
}

// Merge folds one module's findings into the running aggregate. Safe to
// call from multiple goroutines only if the caller serializes calls
// itself; the aggregator is the single shared mutable resource spec.md
// §5 describes as "protected by a lock or lock-free append channel" —
// internal/engine owns that lock and calls Merge from one place at a
// time.
func (a *Aggregator) Merge(mf ModuleFindings) {
	if _, seen := a.byModule[mf.Module]; !seen {
		a.moduleOrder = append(a.moduleOrder, mf.Module)
	}
	for _, v := range mf.Violations {
		if mf.Suppressions != nil && mf.Suppressions.ShouldSuppress(v) {
			continue
		}
		key := dedupKey{Module: v.Location.Module, Function: v.Location.Function, StmtIndex: v.Location.StmtIndex, Kind: v.Kind}
		if a.dedup[key] {
			continue
		}
		a.dedup[key] = true

		if a.Strict && v.Severity == finding.Medium {
			v.Severity = finding.High
		}
		if a.Strict && v.Kind == finding.KindAnalysisWarning && v.Severity < finding.Low {
			v.Severity = finding.Low
		}
		a.byModule[mf.Module] = append(a.byModule[mf.Module], v)
	}
}

// Build produces the final AnalysisResult: modules ordered by name and,
// within a module, findings ordered by function name, then statement
// index, then kind; bucketed by family, and summarized.
func (a *Aggregator) Build(version string) finding.AnalysisResult {
	modules := append([]string(nil), a.moduleOrder...)
	sort.Slice(modules, func(i, j int) bool { return a.collator.CompareString(modules[i], modules[j]) < 0 })

	res := finding.AnalysisResult{RunID: a.RunID.Generate(), Version: version}
	for _, mod := range modules {
		vs := a.byModule[mod]
		sort.SliceStable(vs, func(i, j int) bool {
			if vs[i].Location.Function != vs[j].Location.Function {
				return vs[i].Location.Function < vs[j].Location.Function
			}
			if vs[i].Location.StmtIndex != vs[j].Location.StmtIndex {
				return vs[i].Location.StmtIndex < vs[j].Location.StmtIndex
			}
			return vs[i].Kind < vs[j].Kind
		})
		for _, v := range vs {
			res.Findings = append(res.Findings, v)
			res.Summary.Add(v.Severity)
			bucketAppend(&res, v)
		}
	}
	return res
}

// bucketAppend sorts v into the family-specific AnalysisResult slices
// spec.md §3 names alongside the flat Findings slice.
func bucketAppend(res *finding.AnalysisResult, v finding.SafetyViolation) {
	switch v.Kind {
	case finding.KindReferenceEscape, finding.KindBoundaryCrossing, finding.KindStoredReference:
		res.ReferenceLeaks = append(res.ReferenceLeaks, v)
	case finding.KindUnsafeTransfer, finding.KindUseAfterTransfer, finding.KindInvalidSharedAccess,
		finding.KindInvariantViolation, finding.KindUncheckedArithmetic, finding.KindPossibleUnderflow,
		finding.KindDivByZero, finding.KindResourceLeak, finding.KindDynamicFieldNotRemoved:
		res.ObjectSafety = append(res.ObjectSafety, v)
	case finding.KindCapabilityLeak, finding.KindUnsafeDelegation, finding.KindMissingExpiryCheck,
		finding.KindCapabilityResourceMismatch, finding.KindPrivilegeEscalation:
		res.CapabilitySafety = append(res.CapabilitySafety, v)
	case finding.KindMissingConsensus, finding.KindMissingTimestampCheck, finding.KindUnusedClock:
		res.SharedObject = append(res.SharedObject, v)
	case finding.KindExternalCallInLoop, finding.KindNestedExternalLoops, finding.KindDynamicLoopBound:
		res.Dos = append(res.Dos, v)
	default:
		res.Dos = append(res.Dos, v)
	}
}

// ExitCode implements spec.md §6's exit-code table: 0 none/Info, 1 Low+,
// 2 High+, and the caller is responsible for 3 (fatal, never reaches the
// aggregator). §7's strict-mode promotion of AnalysisWarning is applied
// earlier, by Merge.
func ExitCode(res finding.AnalysisResult) int {
	switch res.Summary.HighestSeverity() {
	case finding.Critical, finding.High:
		return 2
	case finding.Medium, finding.Low:
		return 1
	default:
		return 0
	}
}
