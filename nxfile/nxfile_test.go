package nxfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunNumberExtractsDigits(t *testing.T) {
	n, ok := RunNumber("run-00123")
	require.True(t, ok)
	require.EqualValues(t, 123, n)
}

func TestRunNumberEmptyYieldsZero(t *testing.T) {
	n, ok := RunNumber("no-digits-here")
	require.False(t, ok)
	require.EqualValues(t, 0, n)
}

func TestPathErrorWrapsUnderlying(t *testing.T) {
	underlying := errors.New("boom")
	err := pathErr("write", "entry/start_time", underlying)
	require.ErrorIs(t, err, underlying)
	require.Contains(t, err.Error(), "entry/start_time")
	require.Contains(t, err.Error(), "write")
}

func TestPathErrNilIsNil(t *testing.T) {
	require.NoError(t, pathErr("write", "x", nil))
}
