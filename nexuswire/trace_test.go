package nexuswire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/multiverse-hardware-labs/nexus-pipeline/aggregator"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

func TestDigitiserTraceRoundTrips(t *testing.T) {
	want := messages.DigitiserTrace{
		DigitiserID: 3,
		Metadata: messages.FrameMetadata{
			Timestamp:       time.Unix(40, 0).UTC(),
			FrameNumber:     9,
			PeriodNumber:    0,
			ProtonsPerPulse: 100,
			Running:         true,
			VetoFlags:       0,
		},
		Channels: []messages.ChannelTrace{
			{Channel: 0, Samples: []int16{1, -2, 3}, SampleRate: 1e8},
			{Channel: 1, Samples: []int16{-5, 6}, SampleRate: 1e8},
		},
	}
	got, err := DecodeDigitiserTrace(EncodeDigitiserTrace(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDigitiserEventListRoundTrips(t *testing.T) {
	want := messages.DigitiserEventList{
		DigitiserID: 2,
		Metadata: messages.FrameMetadata{
			Timestamp:       time.Unix(50, 0).UTC(),
			FrameNumber:     11,
			PeriodNumber:    1,
			ProtonsPerPulse: 100,
			Running:         true,
			VetoFlags:       0,
		},
		Events: messages.EventList{
			Time:      []int64{1, 2, 3},
			Intensity: []float64{0.5, -0.5, 1.5},
			Channel:   []uint32{0, 0, 1},
		},
	}
	got, err := aggregator.Codec{}.DecodeDigitiserEventList(EncodeDigitiserEventList(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}
