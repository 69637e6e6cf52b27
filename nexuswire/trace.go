package nexuswire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// DecodeDigitiserTrace parses a bus payload tagged
// messages.IDDigitiserAnalogTraceV2: trace-to-events' ingest side.
func DecodeDigitiserTrace(payload []byte) (messages.DigitiserTrace, error) {
	var trace messages.DigitiserTrace
	const headerLen = 1 + 8 + 8 + 8 + 4 + 1 + 2 + 4
	if len(payload) < headerLen {
		return trace, fmt.Errorf("nexuswire: digitiser trace payload too short (%d bytes)", len(payload))
	}
	off := 0
	trace.DigitiserID = payload[off]
	off++
	timestampNanos := int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	trace.Metadata.Timestamp = time.Unix(0, timestampNanos).UTC()
	trace.Metadata.FrameNumber = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	trace.Metadata.PeriodNumber = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	trace.Metadata.ProtonsPerPulse = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	trace.Metadata.Running = payload[off] != 0
	off++
	trace.Metadata.VetoFlags = binary.LittleEndian.Uint16(payload[off:])
	off += 2
	nChannels := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4

	for i := 0; i < nChannels; i++ {
		if len(payload) < off+4+8+4 {
			return trace, fmt.Errorf("nexuswire: digitiser trace truncated at channel %d", i)
		}
		channel := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		sampleRate := math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))
		off += 8
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if len(payload) < off+n*2 {
			return trace, fmt.Errorf("nexuswire: digitiser trace truncated samples for channel %d", channel)
		}
		samples := make([]int16, n)
		for j := 0; j < n; j++ {
			samples[j] = int16(binary.LittleEndian.Uint16(payload[off:]))
			off += 2
		}
		trace.Channels = append(trace.Channels, messages.ChannelTrace{
			Channel:    channel,
			Samples:    samples,
			SampleRate: sampleRate,
		})
	}
	return trace, nil
}

// EncodeDigitiserTrace is DecodeDigitiserTrace's inverse, used by tests and
// by any upstream simulator feeding the detector binary.
func EncodeDigitiserTrace(trace messages.DigitiserTrace) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, trace.DigitiserID)
	buf = putUint64(buf, uint64(trace.Metadata.Timestamp.UnixNano()))
	buf = putUint64(buf, trace.Metadata.FrameNumber)
	buf = putUint64(buf, trace.Metadata.PeriodNumber)
	buf = binary.LittleEndian.AppendUint32(buf, trace.Metadata.ProtonsPerPulse)
	if trace.Metadata.Running {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint16(buf, trace.Metadata.VetoFlags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(trace.Channels)))
	for _, ch := range trace.Channels {
		buf = binary.LittleEndian.AppendUint32(buf, ch.Channel)
		buf = putUint64(buf, math.Float64bits(ch.SampleRate))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ch.Samples)))
		for _, s := range ch.Samples {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
		}
	}
	return buf
}

// EncodeDigitiserEventList serializes a DigitiserEventList for
// messages.IDDigitiserEventListV2, the inverse of
// aggregator.Codec.DecodeDigitiserEventList.
func EncodeDigitiserEventList(evl messages.DigitiserEventList) []byte {
	buf := make([]byte, 0, 64+evl.Events.Len()*20)
	buf = append(buf, evl.DigitiserID)
	buf = putUint64(buf, uint64(evl.Metadata.Timestamp.UnixNano()))
	buf = putUint64(buf, evl.Metadata.FrameNumber)
	buf = putUint64(buf, evl.Metadata.PeriodNumber)
	buf = binary.LittleEndian.AppendUint32(buf, evl.Metadata.ProtonsPerPulse)
	if evl.Metadata.Running {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint16(buf, evl.Metadata.VetoFlags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(evl.Events.Len()))
	for i := 0; i < evl.Events.Len(); i++ {
		buf = putUint64(buf, uint64(evl.Events.Time[i]))
		buf = putUint64(buf, math.Float64bits(evl.Events.Intensity[i]))
		buf = binary.LittleEndian.AppendUint32(buf, evl.Events.Channel[i])
	}
	return buf
}
