// Package messages defines the data model shared by every stage of the
// pipeline: frame metadata, events, and the bus message identifiers that
// flow between the detector, aggregator, and NeXus engine.
package messages

import "time"

// FlatbufferID is one of the bit-exact schema identifiers carried on the
// wire bus, preserved from the upstream flatbuffer schemas.
type FlatbufferID string

// Wire identifiers. Never change these: consumers elsewhere on the bus key
// off these exact four-character codes.
const (
	IDDigitiserAnalogTraceV2   FlatbufferID = "dat2"
	IDDigitiserEventListV2     FlatbufferID = "dev2"
	IDFrameAssembledEventListV2 FlatbufferID = "fae2"
	IDRunStart                 FlatbufferID = "pl72"
	IDRunStop                  FlatbufferID = "6s4t"
	IDLogData                 FlatbufferID = "f144"
	IDSampleEnvironmentData    FlatbufferID = "se00"
	IDAlarm                    FlatbufferID = "al00"
)

// FrameMetadata uniquely identifies a frame across digitisers.
//
// Two FrameMetadata values identify the same frame iff SameFrame reports true;
// VetoFlags is excluded from that comparison and is OR-combined across
// digitisers at aggregation time (see framecache).
type FrameMetadata struct {
	Timestamp        time.Time
	FrameNumber      uint64
	PeriodNumber     uint64
	ProtonsPerPulse  uint32
	Running          bool
	VetoFlags        uint16
}

// SameFrame reports whether m and other identify the same frame, ignoring
// VetoFlags.
func (m FrameMetadata) SameFrame(other FrameMetadata) bool {
	return m.Timestamp.Equal(other.Timestamp) &&
		m.FrameNumber == other.FrameNumber &&
		m.PeriodNumber == other.PeriodNumber &&
		m.ProtonsPerPulse == other.ProtonsPerPulse &&
		m.Running == other.Running
}

// ChannelTrace is a dense sequence of signed samples for one channel,
// sampled at a fixed rate.
type ChannelTrace struct {
	Channel    uint32
	Samples    []int16
	SampleRate float64 // samples per second
}

// NanosPerSample derives the sample period in nanoseconds from SampleRate.
func (t ChannelTrace) NanosPerSample() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return 1e9 / t.SampleRate
}

// DigitiserTrace is the "digitiser analog trace v2" ingest message: one
// frame's worth of samples across all channels of one digitiser.
type DigitiserTrace struct {
	DigitiserID uint8
	Metadata    FrameMetadata
	Channels    []ChannelTrace
}

// EventList holds three parallel, equal-length vectors describing a set of
// detected events. All three slices must have the same length.
type EventList struct {
	Time      []int64 // nanoseconds since the frame's start
	Intensity []float64
	Channel   []uint32
}

// Len returns the shared length of the parallel vectors.
func (e EventList) Len() int { return len(e.Time) }

// Append returns a new EventList holding e followed by other; e and other
// are left unchanged.
func (e EventList) Append(other EventList) EventList {
	return EventList{
		Time:      append(append([]int64{}, e.Time...), other.Time...),
		Intensity: append(append([]float64{}, e.Intensity...), other.Intensity...),
		Channel:   append(append([]uint32{}, e.Channel...), other.Channel...),
	}
}

// DigitiserEventList is the "digitiser event list v2" message: one
// digitiser's contribution to a frame, produced by the per-channel
// processor from a DigitiserTrace.
type DigitiserEventList struct {
	DigitiserID uint8
	Metadata    FrameMetadata
	Events      EventList
}

// AggregatedFrame is a frame sealed for dispatch by the frame cache: the
// concatenated contribution of every digitiser that responded in time.
type AggregatedFrame struct {
	Metadata       FrameMetadata
	Complete       bool
	DigitiserIDs   []uint8 // sorted ascending
	Events         EventList
}

// RunStart announces the beginning of a new run.
type RunStart struct {
	Time            time.Time
	RunName         string
	Filename        string
	InstrumentName  string
	Periods         []uint32
}

// RunStop announces the (intended) end of the current run.
type RunStop struct {
	Time    time.Time
	RunName string
}
