package eventdata

import (
	"testing"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

func TestProcessTraceFixedThreshold(t *testing.T) {
	samples := []int16{0, 1, 2, 1, 0, 1, 2, 1, 8, 0, 2, 8, 3, 1, 2}
	trace := messages.DigitiserTrace{
		DigitiserID: 3,
		Metadata: messages.FrameMetadata{
			FrameNumber: 7,
		},
		Channels: []messages.ChannelTrace{
			{Channel: 0, Samples: samples, SampleRate: 1e9}, // 1 ns/sample
		},
	}
	cfg := ProcessorConfig{
		Default: ChannelConfig{
			Polarity: 1,
			NewDetector: func() SampleDetector {
				return NewFixedThresholdDetector(5, 1, 0)
			},
		},
	}

	out := ProcessTrace(trace, cfg)
	if out.DigitiserID != 3 {
		t.Errorf("DigitiserID = %d, want 3", out.DigitiserID)
	}
	if out.Metadata.FrameNumber != 7 {
		t.Errorf("Metadata not copied unchanged")
	}
	if got, want := out.Events.Len(), 2; got != want {
		t.Fatalf("got %d events, want %d", got, want)
	}
	if out.Events.Time[0] != 8 || out.Events.Time[1] != 11 {
		t.Errorf("event times = %v, want [8 11]", out.Events.Time)
	}
	for _, ch := range out.Events.Channel {
		if ch != 0 {
			t.Errorf("event channel = %d, want 0", ch)
		}
	}
}

func TestProcessTraceParallelInvariant(t *testing.T) {
	// Two channels, each independently detects; total length must equal
	// the sum of per-channel lengths, and the lengths of the three
	// parallel vectors must all match.
	ch0 := make([]int16, 20)
	ch0[5] = 9
	ch1 := make([]int16, 20)
	ch1[10] = 9
	ch1[15] = 9

	trace := messages.DigitiserTrace{
		Channels: []messages.ChannelTrace{
			{Channel: 0, Samples: ch0, SampleRate: 1e9},
			{Channel: 1, Samples: ch1, SampleRate: 1e9},
		},
	}
	cfg := ProcessorConfig{
		Default: ChannelConfig{
			Polarity: 1,
			NewDetector: func() SampleDetector {
				return NewFixedThresholdDetector(5, 1, 0)
			},
		},
	}
	out := ProcessTrace(trace, cfg)
	if l := out.Events.Len(); l != 3 {
		t.Fatalf("got %d events, want 3", l)
	}
	if n := len(out.Events.Time); n != len(out.Events.Intensity) || n != len(out.Events.Channel) {
		t.Errorf("parallel vectors have mismatched lengths: %d/%d/%d",
			len(out.Events.Time), len(out.Events.Intensity), len(out.Events.Channel))
	}
}
