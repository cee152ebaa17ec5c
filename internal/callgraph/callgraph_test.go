package callgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

func ringModule() *ast.Module {
	m := &ast.Module{
		Name:    "ring",
		Address: "0x1",
		Imports: []string{"sui::transfer", "vector"},
		Funcs: []*ast.Function{
			{
				Name:       "step_a",
				Visibility: ast.VisibilityPublic,
				Body: []ast.Statement{
					&ast.CallStmt{Call: &ast.CallExpr{Function: "step_b"}},
					&ast.ReturnStmt{},
				},
			},
			{
				Name:       "step_b",
				Visibility: ast.VisibilityPrivate,
				Body: []ast.Statement{
					&ast.CallStmt{Call: &ast.CallExpr{Function: "step_a"}},
					&ast.ReturnStmt{},
				},
			},
			{
				Name:       "transfer_out",
				Visibility: ast.VisibilityPublic,
				Body: []ast.Statement{
					&ast.CallStmt{Call: &ast.CallExpr{Module: "transfer", Function: "transfer"}},
					&ast.ReturnStmt{},
				},
			},
		},
	}
	_ = m.Validate()
	return m
}

// TestBuildRecordsCallsAndCalledBy exercises the two-pass Node wiring:
// step_a calls step_b and vice versa, so each must appear in the other's
// CalledBy set.
func TestBuildRecordsCallsAndCalledBy(t *testing.T) {
	m := ringModule()
	g := Build(m)

	require.Contains(t, g.Nodes, "step_a")
	require.Contains(t, g.Nodes, "step_b")
	require.True(t, g.Nodes["step_a"].Calls["step_b"])
	require.True(t, g.Nodes["step_b"].CalledBy["step_a"])
	require.True(t, g.Nodes["step_b"].Calls["step_a"])
	require.True(t, g.Nodes["step_a"].CalledBy["step_b"])
}

// TestModuleDependenciesNormalized exercises normalizeImport: an
// already sui::-prefixed import is kept as-is, a bare one gets std::
// prefixed.
func TestModuleDependenciesNormalized(t *testing.T) {
	m := ringModule()
	g := Build(m)

	require.True(t, g.ModuleDependencies["sui::transfer"])
	require.True(t, g.ModuleDependencies["std::vector"])
}

// TestTarjanCyclesFindsMutualRecursion exercises the retargeted Tarjan
// SCC: step_a <-> step_b is a 2-cycle and must appear in g.Cycles, while
// transfer_out (no recursion) must not appear in any cycle.
func TestTarjanCyclesFindsMutualRecursion(t *testing.T) {
	m := ringModule()
	g := Build(m)

	require.Len(t, g.Cycles, 1)
	require.ElementsMatch(t, []string{"step_a", "step_b"}, g.Cycles[0])
}

// TestRecursiveEntryWarningsFlagsPublicCycleMember exercises
// RecursiveEntryWarnings: step_a is public and in a cycle, so it gets an
// AnalysisWarning; step_b is private and must not.
func TestRecursiveEntryWarningsFlagsPublicCycleMember(t *testing.T) {
	m := ringModule()
	g := Build(m)

	warnings := RecursiveEntryWarnings(m.Name, g)
	require.Len(t, warnings, 1)
	require.Equal(t, finding.KindAnalysisWarning, warnings[0].Kind)
	require.Equal(t, "step_a", warnings[0].Location.Function)
}

// TestMissingChecksNamePatternHeuristic exercises checkVulnerabilities:
// a public function named "transfer_out" with no assertions is flagged
// with the "missing resource validation" heuristic.
func TestMissingChecksNamePatternHeuristic(t *testing.T) {
	m := ringModule()
	g := Build(m)

	require.Contains(t, g.Nodes["transfer_out"].MissingChecks, "missing resource validation")
}
