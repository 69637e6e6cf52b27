package nexuswire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/multiverse-hardware-labs/nexus-pipeline/aggregator"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

func TestRunStartRoundTrips(t *testing.T) {
	want := messages.RunStart{
		Time:           time.Unix(1000, 0).UTC(),
		RunName:        "run-42",
		Filename:       "run-42.nxs",
		InstrumentName: "LARMOR",
		Periods:        []uint32{0, 1, 2},
	}
	got, err := DecodeRunStart(EncodeRunStart(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRunStopRoundTrips(t *testing.T) {
	want := messages.RunStop{Time: time.Unix(2000, 0).UTC(), RunName: "run-42"}
	got, err := DecodeRunStop(EncodeRunStop(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLogDataRoundTripsScalar(t *testing.T) {
	want := messages.LogData{
		SourceName: "temperature",
		Timestamp:  time.Unix(3000, 0).UTC(),
		Value:      messages.LogValue{Kind: messages.KindFloat64, F64: 293.15},
	}
	got, err := DecodeLogData(EncodeLogData(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLogDataRoundTripsArray(t *testing.T) {
	want := messages.LogData{
		SourceName: "waveform",
		Timestamp:  time.Unix(3001, 0).UTC(),
		Value:      messages.LogValue{Kind: messages.KindArrayInt32, ArrI32: []int32{1, -2, 3, 400}},
	}
	got, err := DecodeLogData(EncodeLogData(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSampleEnvironmentDataRoundTrips(t *testing.T) {
	want := messages.SampleEnvironmentData{
		Name:       "pressure",
		Timestamps: []time.Time{time.Unix(10, 0).UTC(), time.Unix(11, 0).UTC()},
		Values: []messages.LogValue{
			{Kind: messages.KindFloat32, F32: 1.5},
			{Kind: messages.KindFloat32, F32: 1.6},
		},
	}
	got, err := DecodeSampleEnvironmentData(EncodeSampleEnvironmentData(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestAlarmRoundTrips(t *testing.T) {
	want := messages.Alarm{
		SourceName: "vacuum",
		Timestamp:  time.Unix(20, 0).UTC(),
		Severity:   messages.SeverityMajor,
		Message:    "pressure exceeded threshold",
	}
	got, err := DecodeAlarm(EncodeAlarm(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestAggregatedFrameRoundTrips(t *testing.T) {
	want := messages.AggregatedFrame{
		Metadata: messages.FrameMetadata{
			Timestamp:       time.Unix(30, 0).UTC(),
			FrameNumber:     7,
			PeriodNumber:    1,
			ProtonsPerPulse: 42,
			Running:         true,
			VetoFlags:       3,
		},
		Complete:     true,
		DigitiserIDs: []uint8{0, 1},
		Events: messages.EventList{
			Time:      []int64{100, 200},
			Intensity: []float64{1.5, -2.5},
			Channel:   []uint32{0, 1},
		},
	}
	got, err := DecodeAggregatedFrame(aggregator.Codec{}.EncodeAggregatedFrame(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}
