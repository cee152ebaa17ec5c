package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/ast"
	"github.com/hydra-analyzer/hydra/internal/config"
)

func writeFixtureModule(t *testing.T, dir, name string) string {
	t.Helper()
	mod := &ast.Module{
		Name:    name,
		Address: "0x1",
		Funcs: []*ast.Function{
			{
				Name:       "noop",
				Visibility: ast.VisibilityPrivate,
				Body:       []ast.Statement{&ast.ReturnStmt{}},
			},
		},
	}
	path := filepath.Join(dir, name+".move")
	require.NoError(t, os.WriteFile(path, []byte(ast.Print(mod)), 0o644))
	return path
}

func TestAnalyzeCommandRunsEndToEndWithNoFindings(t *testing.T) {
	dir := t.TempDir()
	writeFixtureModule(t, dir, "coin")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--format", "json", "analyze", dir})

	err := cmd.Execute()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	summary := decoded["summary"].(map[string]any)
	require.Equal(t, float64(0), summary["critical"])
	require.Equal(t, float64(0), summary["high"])
}

func TestAnalyzeCommandFailsFastOnEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"analyze", dir})

	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitFatal, GetExitCode(err))
}

func TestAnalyzeCommandRejectsUnreadablePath(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"analyze", filepath.Join(t.TempDir(), "does-not-exist")})

	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitFatal, GetExitCode(err))
}

func TestApplyFlagOverridesNarrowsChecks(t *testing.T) {
	cfg := config.Default()
	opts := &AnalyzeOptions{RootOptions: &RootOptions{Format: "text"}, Check: []string{"transfer", "dos"}}
	applyFlagOverrides(&cfg, opts)

	require.True(t, cfg.Checks.Transfer)
	require.True(t, cfg.Checks.Dos)
	require.False(t, cfg.Checks.Capability)
	require.False(t, cfg.Checks.Reference)
}
