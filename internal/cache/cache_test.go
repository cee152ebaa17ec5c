package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/config"
	"github.com/hydra-analyzer/hydra/internal/finding"
)

func TestGetMissReturnsFalse(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	key := Key("module bank {}", config.Default())
	vs := []finding.SafetyViolation{
		{Kind: finding.KindResourceLeak, Severity: finding.Medium, Location: finding.Location{Module: "bank", Function: "f"}},
	}
	require.NoError(t, c.Put(key, "bank", vs))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, finding.KindResourceLeak, got[0].Kind)
}

func TestKeyChangesWithStrictFlag(t *testing.T) {
	base := config.Default()
	strict := config.Default()
	strict.Hydra.Strict = true

	require.NotEqual(t, Key("module bank {}", base), Key("module bank {}", strict))
}

func TestPutOverwritesExistingEntry(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	key := Key("module bank {}", config.Default())
	require.NoError(t, c.Put(key, "bank", []finding.SafetyViolation{
		{Kind: finding.KindResourceLeak, Severity: finding.Medium},
	}))
	require.NoError(t, c.Put(key, "bank", []finding.SafetyViolation{
		{Kind: finding.KindDivByZero, Severity: finding.High},
	}))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, finding.KindDivByZero, got[0].Kind)
}
