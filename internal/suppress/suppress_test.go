package suppress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/finding"
)

const sample = `module example {
// hydra-ignore: known false positive, helper checks this elsewhere
fun a() {}
// hydra-ignore-next: UnsafeTransfer
fun b() {}
fun c() {}
}
`

func TestBuildIndexesByFollowingLine(t *testing.T) {
	m := Build(sample)
	require.Contains(t, m, 3)
	require.Contains(t, m, 5)
	require.NotContains(t, m, 6)
}

func TestShouldSuppressIgnoreAll(t *testing.T) {
	m := Build(sample)
	v := finding.SafetyViolation{Kind: finding.KindResourceLeak, Severity: finding.Medium, Location: finding.Location{Line: 3}}
	require.True(t, m.ShouldSuppress(v))
}

func TestShouldSuppressIgnoreNextRestrictsToRule(t *testing.T) {
	m := Build(sample)
	matching := finding.SafetyViolation{Kind: finding.KindUnsafeTransfer, Severity: finding.High, Location: finding.Location{Line: 5}}
	other := finding.SafetyViolation{Kind: finding.KindDivByZero, Severity: finding.High, Location: finding.Location{Line: 5}}
	require.True(t, m.ShouldSuppress(matching))
	require.False(t, m.ShouldSuppress(other))
}

func TestCriticalNeverSuppressed(t *testing.T) {
	m := Build(sample)
	v := finding.SafetyViolation{Kind: finding.KindCapabilityLeak, Severity: finding.Critical, Location: finding.Location{Line: 3}}
	require.False(t, m.ShouldSuppress(v))
}

func TestUnusedReportsUnconsultedPragma(t *testing.T) {
	m := Build(sample)
	require.Len(t, m.Unused(), 2)

	v := finding.SafetyViolation{Kind: finding.KindUnsafeTransfer, Severity: finding.High, Location: finding.Location{Line: 5}}
	require.True(t, m.ShouldSuppress(v))
	u := m.Unused()
	require.Len(t, u, 1)
	require.Equal(t, "3", u[0].Line)
}
