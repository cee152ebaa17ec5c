package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hydra.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[hydra]
strict = true
max_loop_depth = 5

[checks]
dos = false
`), 0o644))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Hydra.Strict)
	require.Equal(t, 5, cfg.Hydra.MaxLoopDepth)
	require.False(t, cfg.Checks.Dos)
	require.True(t, cfg.Checks.Transfer, "unset checks keep their default")
}

func TestLoadUnknownKeyWarnsInsteadOfFailing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hydra.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[hydra]
strict = true
nonsense_key = 1
`), 0o644))

	cfg, warnings, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.True(t, cfg.Hydra.Strict)
}
