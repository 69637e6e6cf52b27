package nexusrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunStopBeforeRunStartIsError(t *testing.T) {
	c := NewCache()
	err := c.StopRun(time.Unix(10, 0), time.Unix(10, 0))
	require.ErrorIs(t, err, ErrRunStopUnexpected)
}

func TestSuccessiveRunStartsAbortPrevious(t *testing.T) {
	c := NewCache()
	start1 := time.Unix(100, 0)
	start2 := time.Unix(200, 0)
	now := time.Unix(1000, 0)

	run1 := New(start1, "run-one", "run-one.nxs")
	require.NoError(t, c.StartRun(run1, start1, now))

	run2 := New(start2, "run-two", "run-two.nxs")
	require.NoError(t, c.StartRun(run2, start2, now))

	require.Equal(t, 2, c.Len())
	until, ok := run1.CollectUntil()
	require.True(t, ok, "first run should have a synthesised stop")
	require.True(t, until.Equal(start2))
	require.Equal(t, Stopping, run1.Phase())
	require.Equal(t, Running, run2.Phase())
}

func TestSetStopIfValidRejectsDoubleStop(t *testing.T) {
	r := New(time.Unix(0, 0), "run", "run.nxs")
	require.NoError(t, r.SetStopIfValid(time.Unix(10, 0), time.Unix(10, 0)))
	err := r.SetStopIfValid(time.Unix(20, 0), time.Unix(20, 0))
	require.ErrorIs(t, err, ErrStopCommandBeforeStartCommand)
}

func TestSetStopIfValidRejectsStopNotAfterStart(t *testing.T) {
	r := New(time.Unix(10, 0), "run", "run.nxs")
	err := r.SetStopIfValid(time.Unix(10, 0), time.Unix(10, 0))
	require.ErrorIs(t, err, ErrStopTimeEarlierThanStartTime)

	err = r.SetStopIfValid(time.Unix(5, 0), time.Unix(10, 0))
	require.ErrorIs(t, err, ErrStopTimeEarlierThanStartTime)
}

func TestContainsTimestampHonoursOpenAndClosedWindows(t *testing.T) {
	r := New(time.Unix(100, 0), "run", "run.nxs")
	require.False(t, r.ContainsTimestamp(time.Unix(100, 0)), "boundary at collect_from must be excluded")
	require.True(t, r.ContainsTimestamp(time.Unix(150, 0)), "open-ended run accepts anything after start")

	require.NoError(t, r.SetStopIfValid(time.Unix(200, 0), time.Unix(200, 0)))
	require.True(t, r.ContainsTimestamp(time.Unix(150, 0)))
	require.False(t, r.ContainsTimestamp(time.Unix(200, 0)), "boundary at collect_until must be excluded")
}

func TestNotEndingBeforeWeakerTestForLogs(t *testing.T) {
	r := New(time.Unix(100, 0), "run", "run.nxs")
	require.True(t, r.NotEndingBefore(time.Unix(50, 0)), "no stop yet: anything passes")

	require.NoError(t, r.SetStopIfValid(time.Unix(200, 0), time.Unix(200, 0)))
	require.True(t, r.NotEndingBefore(time.Unix(199, 0)))
	require.False(t, r.NotEndingBefore(time.Unix(200, 0)))
}

func TestDrainCompletedRespectsDelay(t *testing.T) {
	c := NewCache()
	start := time.Unix(0, 0)
	r := New(start, "run", "run.nxs")
	c.Add(r)
	require.NoError(t, r.SetStopIfValid(time.Unix(10, 0), time.Unix(10, 0)))

	require.Empty(t, c.DrainCompleted(time.Unix(11, 0), time.Minute))
	require.Equal(t, 1, c.Len())

	completed := c.DrainCompleted(time.Unix(10, 0).Add(time.Minute+time.Second), time.Minute)
	require.Len(t, completed, 1)
	require.Equal(t, 0, c.Len())
}
