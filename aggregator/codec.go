package aggregator

import (
	"encoding/binary"
	"fmt"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// Codec turns DigitiserEventList bus payloads into the internal event
// model and turns sealed AggregatedFrame values back into wire payloads.
// The flatbuffer schemas themselves live outside this package; this is a
// small self-describing binary encoding that stands in for them so the
// runtime below has something concrete to decode.
type Codec struct{}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DecodeDigitiserEventList parses a bus payload tagged
// messages.IDDigitiserEventListV2.
func (Codec) DecodeDigitiserEventList(payload []byte) (messages.DigitiserEventList, error) {
	const headerLen = 1 + 8 + 8 + 8 + 4 + 1 + 2 + 4
	if len(payload) < headerLen {
		return messages.DigitiserEventList{}, fmt.Errorf("aggregator: digitiser event list payload too short (%d bytes)", len(payload))
	}
	off := 0
	digitiserID := payload[off]
	off++
	timestampNanos := int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	frameNumber := binary.LittleEndian.Uint64(payload[off:])
	off += 8
	periodNumber := binary.LittleEndian.Uint64(payload[off:])
	off += 8
	protonsPerPulse := binary.LittleEndian.Uint32(payload[off:])
	off += 4
	running := payload[off] != 0
	off++
	vetoFlags := binary.LittleEndian.Uint16(payload[off:])
	off += 2
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4

	events := messages.EventList{}
	for i := 0; i < n; i++ {
		if len(payload) < off+20 {
			return messages.DigitiserEventList{}, fmt.Errorf("aggregator: digitiser event list truncated at event %d", i)
		}
		t := int64(binary.LittleEndian.Uint64(payload[off:]))
		off += 8
		bits := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		ch := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		events.Time = append(events.Time, t)
		events.Intensity = append(events.Intensity, float64frombits(bits))
		events.Channel = append(events.Channel, ch)
	}

	return messages.DigitiserEventList{
		DigitiserID: digitiserID,
		Metadata: messages.FrameMetadata{
			Timestamp:       unixNanoToTime(timestampNanos),
			FrameNumber:     frameNumber,
			PeriodNumber:    periodNumber,
			ProtonsPerPulse: protonsPerPulse,
			Running:         running,
			VetoFlags:       vetoFlags,
		},
		Events: events,
	}, nil
}

// EncodeAggregatedFrame serializes a sealed frame for dispatch under
// messages.IDFrameAssembledEventListV2.
func (Codec) EncodeAggregatedFrame(frame messages.AggregatedFrame) []byte {
	buf := make([]byte, 0, 64+frame.Events.Len()*20)
	buf = append(buf, encodeUint64(uint64(frame.Metadata.Timestamp.UnixNano()))...)
	buf = append(buf, encodeUint64(frame.Metadata.FrameNumber)...)
	buf = append(buf, encodeUint64(frame.Metadata.PeriodNumber)...)
	buf = binary.LittleEndian.AppendUint32(buf, frame.Metadata.ProtonsPerPulse)
	if frame.Metadata.Running {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint16(buf, frame.Metadata.VetoFlags)
	if frame.Complete {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(len(frame.DigitiserIDs)))
	buf = append(buf, frame.DigitiserIDs...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(frame.Events.Len()))
	for i := 0; i < frame.Events.Len(); i++ {
		buf = append(buf, encodeUint64(uint64(frame.Events.Time[i]))...)
		buf = append(buf, encodeUint64(float64bits(frame.Events.Intensity[i]))...)
		buf = binary.LittleEndian.AppendUint32(buf, frame.Events.Channel[i])
	}
	return buf
}
