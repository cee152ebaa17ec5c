package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/suppress"
)

func loc(module, fn string, idx int) finding.Location {
	return finding.Location{Module: module, Function: fn, StmtIndex: idx}
}

func TestMergeDeduplicatesIdenticalFinding(t *testing.T) {
	a := New(false, FixedRunID("run-1"))
	v := finding.SafetyViolation{Kind: finding.KindDivByZero, Severity: finding.Medium, Location: loc("bank", "split", 0)}
	a.Merge(ModuleFindings{Module: "bank", Violations: []finding.SafetyViolation{v, v}})

	res := a.Build("test")
	require.Len(t, res.Findings, 1)
}

func TestBuildOrdersModulesByName(t *testing.T) {
	a := New(false, FixedRunID("run-1"))
	a.Merge(ModuleFindings{Module: "zeta", Violations: []finding.SafetyViolation{
		{Kind: finding.KindResourceLeak, Severity: finding.Low, Location: loc("zeta", "f", 0)},
	}})
	a.Merge(ModuleFindings{Module: "alpha", Violations: []finding.SafetyViolation{
		{Kind: finding.KindResourceLeak, Severity: finding.Low, Location: loc("alpha", "f", 0)},
	}})

	res := a.Build("test")
	require.Len(t, res.Findings, 2)
	require.Equal(t, "alpha", res.Findings[0].Location.Module)
	require.Equal(t, "zeta", res.Findings[1].Location.Module)
}

func TestBuildOrdersWithinModuleByFunctionThenStmtIndex(t *testing.T) {
	a := New(false, FixedRunID("run-1"))
	a.Merge(ModuleFindings{Module: "bank", Violations: []finding.SafetyViolation{
		{Kind: finding.KindDivByZero, Severity: finding.Medium, Location: loc("bank", "b", 1)},
		{Kind: finding.KindDivByZero, Severity: finding.Medium, Location: loc("bank", "a", 5)},
		{Kind: finding.KindDivByZero, Severity: finding.Medium, Location: loc("bank", "a", 0)},
	}})

	res := a.Build("test")
	require.Len(t, res.Findings, 3)
	require.Equal(t, "a", res.Findings[0].Location.Function)
	require.Equal(t, 0, res.Findings[0].Location.StmtIndex)
	require.Equal(t, "a", res.Findings[1].Location.Function)
	require.Equal(t, 5, res.Findings[1].Location.StmtIndex)
	require.Equal(t, "b", res.Findings[2].Location.Function)
}

func TestStrictPromotesMediumToHigh(t *testing.T) {
	a := New(true, FixedRunID("run-1"))
	a.Merge(ModuleFindings{Module: "bank", Violations: []finding.SafetyViolation{
		{Kind: finding.KindUncheckedArithmetic, Severity: finding.Medium, Location: loc("bank", "f", 0)},
	}})

	res := a.Build("test")
	require.Equal(t, finding.High, res.Findings[0].Severity)
	require.Equal(t, 2, ExitCode(res))
}

func TestSuppressionDropsMatchingFinding(t *testing.T) {
	src := "// hydra-ignore: reviewed\nfun f() {}\n"
	sup := suppress.Build(src)

	a := New(false, FixedRunID("run-1"))
	a.Merge(ModuleFindings{
		Module:       "bank",
		Suppressions: sup,
		Violations: []finding.SafetyViolation{
			{Kind: finding.KindDivByZero, Severity: finding.Medium, Location: finding.Location{Module: "bank", Function: "f", Line: 2}},
		},
	})

	res := a.Build("test")
	require.Empty(t, res.Findings)
}

func TestExitCodeMonotonicityWithStrict(t *testing.T) {
	medium := finding.SafetyViolation{Kind: finding.KindUncheckedArithmetic, Severity: finding.Medium, Location: loc("bank", "f", 0)}

	nonStrict := New(false, FixedRunID("run-1"))
	nonStrict.Merge(ModuleFindings{Module: "bank", Violations: []finding.SafetyViolation{medium}})
	nonStrictExit := ExitCode(nonStrict.Build("test"))

	strict := New(true, FixedRunID("run-1"))
	strict.Merge(ModuleFindings{Module: "bank", Violations: []finding.SafetyViolation{medium}})
	strictExit := ExitCode(strict.Build("test"))

	require.GreaterOrEqual(t, strictExit, nonStrictExit)
}
