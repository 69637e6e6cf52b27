package framecache

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

func dummyEvents(n int) messages.EventList {
	e := messages.EventList{}
	for i := 0; i < n; i++ {
		e.Time = append(e.Time, int64(i))
		e.Intensity = append(e.Intensity, float64(i))
		e.Channel = append(e.Channel, 0)
	}
	return e
}

func newTestCache(ttl time.Duration) *Cache {
	return New(ttl, []uint8{0, 1, 4, 8}, zerolog.Nop())
}

func TestPushFourDigitisersDispatchesOnFourthPush(t *testing.T) {
	c := newTestCache(100 * time.Millisecond)
	meta := messages.FrameMetadata{Timestamp: time.Unix(100, 0), FrameNumber: 1}

	for _, id := range []uint8{0, 1, 4, 8} {
		require.NoError(t, c.Push(id, meta, dummyEvents(15)))
	}

	frame, ok := c.Poll()
	require.True(t, ok, "expected an aggregated frame after the fourth push")
	require.Equal(t, []uint8{0, 1, 4, 8}, frame.DigitiserIDs)
	require.Equal(t, 60, frame.Events.Len())
	require.True(t, frame.Complete)
}

func TestMissingDigitiserTimesOutAndDispatchesIncomplete(t *testing.T) {
	c := newTestCache(50 * time.Millisecond)
	c.now = func() time.Time { return time.Unix(0, 0) }
	meta := messages.FrameMetadata{Timestamp: time.Unix(100, 0), FrameNumber: 1}

	for _, id := range []uint8{0, 1, 8} {
		require.NoError(t, c.Push(id, meta, dummyEvents(15)))
	}

	_, ok := c.Poll()
	require.False(t, ok, "poll before expiry should be a no-op")

	c.now = func() time.Time { return time.Unix(0, 0).Add(55 * time.Millisecond) }
	frame, ok := c.Poll()
	require.True(t, ok, "poll after expiry should dispatch the incomplete frame")
	require.Equal(t, []uint8{0, 1, 8}, frame.DigitiserIDs)
	require.Equal(t, 45, frame.Events.Len())
	require.False(t, frame.Complete)

	pushLateMessageRejected(t, c, meta)
}

// pushLateMessageRejected pushes a contribution against an already
// advanced watermark and checks it is rejected without corrupting the
// cache.
func pushLateMessageRejected(t *testing.T, c *Cache, meta messages.FrameMetadata) {
	err := c.Push(4, meta, dummyEvents(15))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIDAlreadyPresent) || errors.Is(err, ErrTimestampTooEarly))
	require.Equal(t, 0, c.Len(), "cache must not regrow from a rejected late push")
}

func TestVetoFlagsFoldTogether(t *testing.T) {
	c := newTestCache(time.Second)
	base := messages.FrameMetadata{Timestamp: time.Unix(200, 0), FrameNumber: 2}

	m1 := base
	m1.VetoFlags = 4
	require.NoError(t, c.Push(0, m1, dummyEvents(1)))

	m2 := base
	m2.VetoFlags = 5
	require.NoError(t, c.Push(1, m2, dummyEvents(1)))

	c.now = func() time.Time { return time.Now().Add(time.Hour) } // force expiry to inspect an incomplete frame
	frame, ok := c.Poll()
	require.True(t, ok)
	require.EqualValues(t, 5, frame.Metadata.VetoFlags)
}

func TestPushRejectsAtWatermarkBoundary(t *testing.T) {
	c := newTestCache(time.Second)
	meta := messages.FrameMetadata{Timestamp: time.Unix(100, 0), FrameNumber: 1}
	for _, id := range []uint8{0, 1, 4, 8} {
		require.NoError(t, c.Push(id, meta, dummyEvents(1)))
	}
	_, ok := c.Poll()
	require.True(t, ok)

	// Exactly at the new watermark: rejected.
	err := c.Push(0, messages.FrameMetadata{Timestamp: time.Unix(100, 0), FrameNumber: 2}, dummyEvents(1))
	require.ErrorIs(t, err, ErrTimestampTooEarly)

	// Strictly greater: accepted.
	err = c.Push(0, messages.FrameMetadata{Timestamp: time.Unix(100, 1), FrameNumber: 2}, dummyEvents(1))
	require.NoError(t, err)
}

func TestPollOnEmptyCacheIsNoOp(t *testing.T) {
	c := newTestCache(time.Second)
	_, ok := c.Poll()
	require.False(t, ok)
}

func TestPushUniquePairsAllSucceed(t *testing.T) {
	c := newTestCache(time.Hour)
	meta1 := messages.FrameMetadata{Timestamp: time.Unix(10, 0), FrameNumber: 1}
	meta2 := messages.FrameMetadata{Timestamp: time.Unix(20, 0), FrameNumber: 2}
	for _, meta := range []messages.FrameMetadata{meta1, meta2} {
		for _, id := range []uint8{0, 1} {
			require.NoError(t, c.Push(id, meta, dummyEvents(1)))
		}
	}
}
