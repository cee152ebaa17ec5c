package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/finding"
	"github.com/hydra-analyzer/hydra/internal/report"
)

func TestAnnotateGasEstimatesFillsDosContextOnly(t *testing.T) {
	fn := &ast.Function{
		Name: "drain",
		Body: []ast.Statement{
			&ast.WhileStmt{Cond: &ast.LiteralExpr{Kind: ast.LiteralBool, Bool: true}, Body: []ast.Statement{
				&ast.CallStmt{Call: &ast.CallExpr{Module: "other", Function: "withdraw"}},
			}},
		},
	}
	vs := []finding.SafetyViolation{
		{Kind: finding.KindExternalCallInLoop},
		{Kind: finding.KindUnsafeTransfer},
	}
	annotateGasEstimates(fn, vs)

	require.NotEmpty(t, vs[0].ContextSnippet)
	require.Contains(t, vs[0].ContextSnippet, "estimated gas")
	require.Empty(t, vs[1].ContextSnippet)
}

func trivialModule(name string) *ast.Module {
	return &ast.Module{
		Name: name,
		Funcs: []*ast.Function{
			{
				Name:       "noop",
				Visibility: ast.VisibilityPrivate,
				Body:       []ast.Statement{&ast.ReturnStmt{}},
			},
			{
				Name:       "test_helper",
				Visibility: ast.VisibilityPublic,
				Body:       []ast.Statement{&ast.ReturnStmt{}},
			},
		},
	}
}

func TestAnalyzeModuleRunsEveryFunction(t *testing.T) {
	mod := trivialModule("coin")
	vs := AnalyzeModule(mod, config.Default())
	require.NotNil(t, vs) // may be empty; must not panic on a minimal module
}

func TestAnalyzeModuleSkipsTestFunctionsWhenIgnoreTestsSet(t *testing.T) {
	cfg := config.Default()
	cfg.Hydra.IgnoreTests = true
	mod := trivialModule("coin")

	// With no external calls or transfers, the fixture produces no
	// findings either way; this asserts the skip path executes without
	// error rather than asserting on violation counts.
	require.NotPanics(t, func() { AnalyzeModule(mod, cfg) })
}

func TestIsTestFunctionHeuristic(t *testing.T) {
	require.True(t, isTestFunction("test_mint"))
	require.True(t, isTestFunction("mint_test"))
	require.False(t, isTestFunction("mint"))
}

func TestRunMergesEachModuleIntoAggregator(t *testing.T) {
	e := New(config.Default())
	e.Workers = 2
	agg := report.New(false, report.FixedRunID("run-test"))

	sources := []Source{
		{Module: trivialModule("alpha"), Text: "module alpha {}"},
		{Module: trivialModule("beta"), Text: "module beta {}"},
	}

	err := e.Run(context.Background(), sources, agg)
	require.NoError(t, err)

	res := agg.Build("0.1.0")
	seen := map[string]bool{}
	for _, v := range res.Findings {
		seen[v.Location.Module] = true
	}
	// No assertion on finding contents (the fixtures are deliberately
	// inert); this exercises that both modules fed the same aggregator
	// without a data race (run with -race in CI).
	_ = seen
}

func TestRunRespectsContextCancellation(t *testing.T) {
	e := New(config.Default())
	agg := report.New(false, report.FixedRunID("run-test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []Source{{Module: trivialModule("gamma"), Text: ""}}
	err := e.Run(ctx, sources, agg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeOneEmitsTimeoutSkippedOnExpiry(t *testing.T) {
	e := &Engine{Config: config.Default(), clock: NewClock()}

	// A context whose deadline has already passed propagates
	// synchronously into the per-module context.WithTimeout derived
	// from it, so analyzeOne's early-exit check fires deterministically
	// rather than racing the (near-instant) analysis goroutine.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	mf := e.analyzeOne(ctx, Source{Module: trivialModule("delta"), Text: ""})
	require.Len(t, mf.Violations, 1)
	require.Equal(t, finding.KindTimeoutSkipped, mf.Violations[0].Kind)
}

func TestFilterByCheckFamilyDropsDisabledFamily(t *testing.T) {
	checks := config.ChecksSection{Transfer: false, Capability: true}
	vs := []finding.SafetyViolation{
		{Kind: finding.KindUnsafeTransfer},
		{Kind: finding.KindCapabilityLeak},
	}
	out := filterByCheckFamily(vs, checks)
	require.Len(t, out, 1)
	require.Equal(t, finding.KindCapabilityLeak, out[0].Kind)
}

func TestCancelStopsFurtherModulesFromStarting(t *testing.T) {
	e := New(config.Default())
	e.Cancel()
	require.True(t, e.cancelledNow())
}
