package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetExitCodeFromExitError(t *testing.T) {
	err := NewExitError(ExitHighFindings, "high-severity finding")
	require.Equal(t, ExitHighFindings, GetExitCode(err))
}

func TestGetExitCodeDefaultsToFatalForPlainError(t *testing.T) {
	require.Equal(t, ExitFatal, GetExitCode(errors.New("boom")))
}

func TestWrapExitErrorUnwraps(t *testing.T) {
	cause := errors.New("no such file")
	err := WrapExitError(ExitFatal, "could not read module", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "no such file")
	require.Contains(t, err.Error(), "could not read module")
}
