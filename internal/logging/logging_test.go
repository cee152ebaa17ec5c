package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevelRecognizesEachName(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), "input %q", in)
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger := New()
	require.NotNil(t, logger)
	require.NotPanics(t, func() { logger.Info("analysis started", "modules", 3) })
}

func TestNewWithVerboseEnablesDebug(t *testing.T) {
	t.Setenv("HYDRA_LOG", "")
	logger := NewWithVerbose(true)
	require.True(t, logger.Enabled(nil, slog.LevelDebug))
}

func TestNewWithVerboseFalseKeepsEnvLevel(t *testing.T) {
	t.Setenv("HYDRA_LOG", "error")
	logger := NewWithVerbose(false)
	require.False(t, logger.Enabled(nil, slog.LevelWarn))
}
