// Package nexuswire is the bus-facing encode/decode layer for the message
// kinds aggregator.Codec does not cover. It extends aggregator.Codec's
// small self-describing binary encoding to DigitiserTrace, RunStart,
// RunStop, LogData, SampleEnvironmentData, and Alarm, and adds the
// counterparts of aggregator.Codec's own two directions
// (EncodeDigitiserEventList, DecodeAggregatedFrame) so cmd/trace-to-events
// and cmd/nexus-writer have something concrete to encode and decode.
package nexuswire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

func putUint64(buf []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(buf, v) }

func putString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(payload []byte, off int) (string, int, error) {
	if len(payload) < off+4 {
		return "", 0, fmt.Errorf("nexuswire: truncated string length at offset %d", off)
	}
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if len(payload) < off+n {
		return "", 0, fmt.Errorf("nexuswire: truncated string body at offset %d", off)
	}
	return string(payload[off : off+n]), off + n, nil
}

func putTime(buf []byte, t time.Time) []byte { return putUint64(buf, uint64(t.UnixNano())) }

func readTime(payload []byte, off int) (time.Time, int, error) {
	if len(payload) < off+8 {
		return time.Time{}, 0, fmt.Errorf("nexuswire: truncated timestamp at offset %d", off)
	}
	nanos := int64(binary.LittleEndian.Uint64(payload[off:]))
	return time.Unix(0, nanos).UTC(), off + 8, nil
}

// EncodeRunStart serializes a RunStart for messages.IDRunStart.
func EncodeRunStart(rs messages.RunStart) []byte {
	buf := make([]byte, 0, 64+len(rs.RunName)+len(rs.Filename)+len(rs.InstrumentName))
	buf = putTime(buf, rs.Time)
	buf = putString(buf, rs.RunName)
	buf = putString(buf, rs.Filename)
	buf = putString(buf, rs.InstrumentName)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rs.Periods)))
	for _, p := range rs.Periods {
		buf = binary.LittleEndian.AppendUint32(buf, p)
	}
	return buf
}

// DecodeRunStart parses a bus payload tagged messages.IDRunStart.
func DecodeRunStart(payload []byte) (messages.RunStart, error) {
	var rs messages.RunStart
	t, off, err := readTime(payload, 0)
	if err != nil {
		return rs, err
	}
	rs.Time = t
	if rs.RunName, off, err = readString(payload, off); err != nil {
		return rs, err
	}
	if rs.Filename, off, err = readString(payload, off); err != nil {
		return rs, err
	}
	if rs.InstrumentName, off, err = readString(payload, off); err != nil {
		return rs, err
	}
	if len(payload) < off+4 {
		return rs, fmt.Errorf("nexuswire: run start truncated period count")
	}
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	for i := 0; i < n; i++ {
		if len(payload) < off+4 {
			return rs, fmt.Errorf("nexuswire: run start truncated at period %d", i)
		}
		rs.Periods = append(rs.Periods, binary.LittleEndian.Uint32(payload[off:]))
		off += 4
	}
	return rs, nil
}

// EncodeRunStop serializes a RunStop for messages.IDRunStop.
func EncodeRunStop(rs messages.RunStop) []byte {
	buf := make([]byte, 0, 16+len(rs.RunName))
	buf = putTime(buf, rs.Time)
	buf = putString(buf, rs.RunName)
	return buf
}

// DecodeRunStop parses a bus payload tagged messages.IDRunStop.
func DecodeRunStop(payload []byte) (messages.RunStop, error) {
	var rs messages.RunStop
	t, off, err := readTime(payload, 0)
	if err != nil {
		return rs, err
	}
	rs.Time = t
	if rs.RunName, _, err = readString(payload, off); err != nil {
		return rs, err
	}
	return rs, nil
}

// putLogValue encodes a LogValue's Kind byte followed by its payload; an
// array kind is length-prefixed.
func putLogValue(buf []byte, v messages.LogValue) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case messages.KindInt8:
		buf = append(buf, byte(v.I8))
	case messages.KindUint8:
		buf = append(buf, v.U8)
	case messages.KindInt16:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v.I16))
	case messages.KindUint16:
		buf = binary.LittleEndian.AppendUint16(buf, v.U16)
	case messages.KindInt32:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v.I32))
	case messages.KindUint32:
		buf = binary.LittleEndian.AppendUint32(buf, v.U32)
	case messages.KindInt64:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.I64))
	case messages.KindUint64:
		buf = binary.LittleEndian.AppendUint64(buf, v.U64)
	case messages.KindFloat32:
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.F32))
	case messages.KindFloat64:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case messages.KindArrayInt8:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrI8)))
		for _, x := range v.ArrI8 {
			buf = append(buf, byte(x))
		}
	case messages.KindArrayUint8:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrU8)))
		buf = append(buf, v.ArrU8...)
	case messages.KindArrayInt16:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrI16)))
		for _, x := range v.ArrI16 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(x))
		}
	case messages.KindArrayUint16:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrU16)))
		for _, x := range v.ArrU16 {
			buf = binary.LittleEndian.AppendUint16(buf, x)
		}
	case messages.KindArrayInt32:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrI32)))
		for _, x := range v.ArrI32 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(x))
		}
	case messages.KindArrayUint32:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrU32)))
		for _, x := range v.ArrU32 {
			buf = binary.LittleEndian.AppendUint32(buf, x)
		}
	case messages.KindArrayInt64:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrI64)))
		for _, x := range v.ArrI64 {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(x))
		}
	case messages.KindArrayUint64:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrU64)))
		for _, x := range v.ArrU64 {
			buf = binary.LittleEndian.AppendUint64(buf, x)
		}
	case messages.KindArrayFloat32:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrF32)))
		for _, x := range v.ArrF32 {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	case messages.KindArrayFloat64:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.ArrF64)))
		for _, x := range v.ArrF64 {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
		}
	}
	return buf
}

func readLogValue(payload []byte, off int) (messages.LogValue, int, error) {
	if len(payload) < off+1 {
		return messages.LogValue{}, 0, fmt.Errorf("nexuswire: truncated log value kind at offset %d", off)
	}
	kind := messages.LogValueKind(payload[off])
	off++
	v := messages.LogValue{Kind: kind}

	need := func(n int) error {
		if len(payload) < off+n {
			return fmt.Errorf("nexuswire: truncated log value body at offset %d", off)
		}
		return nil
	}

	switch kind {
	case messages.KindInt8:
		if err := need(1); err != nil {
			return v, 0, err
		}
		v.I8 = int8(payload[off])
		off++
	case messages.KindUint8:
		if err := need(1); err != nil {
			return v, 0, err
		}
		v.U8 = payload[off]
		off++
	case messages.KindInt16:
		if err := need(2); err != nil {
			return v, 0, err
		}
		v.I16 = int16(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
	case messages.KindUint16:
		if err := need(2); err != nil {
			return v, 0, err
		}
		v.U16 = binary.LittleEndian.Uint16(payload[off:])
		off += 2
	case messages.KindInt32:
		if err := need(4); err != nil {
			return v, 0, err
		}
		v.I32 = int32(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
	case messages.KindUint32:
		if err := need(4); err != nil {
			return v, 0, err
		}
		v.U32 = binary.LittleEndian.Uint32(payload[off:])
		off += 4
	case messages.KindInt64:
		if err := need(8); err != nil {
			return v, 0, err
		}
		v.I64 = int64(binary.LittleEndian.Uint64(payload[off:]))
		off += 8
	case messages.KindUint64:
		if err := need(8); err != nil {
			return v, 0, err
		}
		v.U64 = binary.LittleEndian.Uint64(payload[off:])
		off += 8
	case messages.KindFloat32:
		if err := need(4); err != nil {
			return v, 0, err
		}
		v.F32 = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
	case messages.KindFloat64:
		if err := need(8); err != nil {
			return v, 0, err
		}
		v.F64 = math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))
		off += 8
	case messages.KindArrayInt8, messages.KindArrayUint8:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n); err != nil {
			return v, 0, err
		}
		if kind == messages.KindArrayInt8 {
			for i := 0; i < n; i++ {
				v.ArrI8 = append(v.ArrI8, int8(payload[off+i]))
			}
		} else {
			v.ArrU8 = append([]uint8{}, payload[off:off+n]...)
		}
		off += n
	case messages.KindArrayInt16, messages.KindArrayUint16:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n * 2); err != nil {
			return v, 0, err
		}
		for i := 0; i < n; i++ {
			x := binary.LittleEndian.Uint16(payload[off:])
			off += 2
			if kind == messages.KindArrayInt16 {
				v.ArrI16 = append(v.ArrI16, int16(x))
			} else {
				v.ArrU16 = append(v.ArrU16, x)
			}
		}
	case messages.KindArrayInt32, messages.KindArrayUint32:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n * 4); err != nil {
			return v, 0, err
		}
		for i := 0; i < n; i++ {
			x := binary.LittleEndian.Uint32(payload[off:])
			off += 4
			if kind == messages.KindArrayInt32 {
				v.ArrI32 = append(v.ArrI32, int32(x))
			} else {
				v.ArrU32 = append(v.ArrU32, x)
			}
		}
	case messages.KindArrayInt64, messages.KindArrayUint64:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n * 8); err != nil {
			return v, 0, err
		}
		for i := 0; i < n; i++ {
			x := binary.LittleEndian.Uint64(payload[off:])
			off += 8
			if kind == messages.KindArrayInt64 {
				v.ArrI64 = append(v.ArrI64, int64(x))
			} else {
				v.ArrU64 = append(v.ArrU64, x)
			}
		}
	case messages.KindArrayFloat32:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n * 4); err != nil {
			return v, 0, err
		}
		for i := 0; i < n; i++ {
			v.ArrF32 = append(v.ArrF32, math.Float32frombits(binary.LittleEndian.Uint32(payload[off:])))
			off += 4
		}
	case messages.KindArrayFloat64:
		if err := need(4); err != nil {
			return v, 0, err
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if err := need(n * 8); err != nil {
			return v, 0, err
		}
		for i := 0; i < n; i++ {
			v.ArrF64 = append(v.ArrF64, math.Float64frombits(binary.LittleEndian.Uint64(payload[off:])))
			off += 8
		}
	default:
		return v, 0, fmt.Errorf("nexuswire: unknown log value kind %d", kind)
	}
	return v, off, nil
}

// EncodeLogData serializes a LogData for messages.IDLogData.
func EncodeLogData(d messages.LogData) []byte {
	buf := make([]byte, 0, 32+len(d.SourceName))
	buf = putString(buf, d.SourceName)
	buf = putTime(buf, d.Timestamp)
	buf = putLogValue(buf, d.Value)
	return buf
}

// DecodeLogData parses a bus payload tagged messages.IDLogData.
func DecodeLogData(payload []byte) (messages.LogData, error) {
	var d messages.LogData
	name, off, err := readString(payload, 0)
	if err != nil {
		return d, err
	}
	d.SourceName = name
	ts, off, err := readTime(payload, off)
	if err != nil {
		return d, err
	}
	d.Timestamp = ts
	v, _, err := readLogValue(payload, off)
	if err != nil {
		return d, err
	}
	d.Value = v
	return d, nil
}

// EncodeSampleEnvironmentData serializes data for messages.IDSampleEnvironmentData.
func EncodeSampleEnvironmentData(data messages.SampleEnvironmentData) []byte {
	buf := make([]byte, 0, 32+len(data.Name))
	buf = putString(buf, data.Name)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data.Timestamps)))
	for i, ts := range data.Timestamps {
		buf = putTime(buf, ts)
		buf = putLogValue(buf, data.Values[i])
	}
	return buf
}

// DecodeSampleEnvironmentData parses a bus payload tagged
// messages.IDSampleEnvironmentData.
func DecodeSampleEnvironmentData(payload []byte) (messages.SampleEnvironmentData, error) {
	var d messages.SampleEnvironmentData
	name, off, err := readString(payload, 0)
	if err != nil {
		return d, err
	}
	d.Name = name
	if len(payload) < off+4 {
		return d, fmt.Errorf("nexuswire: sample environment data truncated count")
	}
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	for i := 0; i < n; i++ {
		var ts time.Time
		ts, off, err = readTime(payload, off)
		if err != nil {
			return d, err
		}
		var v messages.LogValue
		v, off, err = readLogValue(payload, off)
		if err != nil {
			return d, err
		}
		d.Timestamps = append(d.Timestamps, ts)
		d.Values = append(d.Values, v)
	}
	return d, nil
}

// EncodeAlarm serializes an Alarm for messages.IDAlarm.
func EncodeAlarm(a messages.Alarm) []byte {
	buf := make([]byte, 0, 32+len(a.SourceName)+len(a.Message))
	buf = putString(buf, a.SourceName)
	buf = putTime(buf, a.Timestamp)
	buf = append(buf, byte(a.Severity))
	buf = putString(buf, a.Message)
	return buf
}

// DecodeAlarm parses a bus payload tagged messages.IDAlarm.
func DecodeAlarm(payload []byte) (messages.Alarm, error) {
	var a messages.Alarm
	name, off, err := readString(payload, 0)
	if err != nil {
		return a, err
	}
	a.SourceName = name
	ts, off, err := readTime(payload, off)
	if err != nil {
		return a, err
	}
	a.Timestamp = ts
	if len(payload) < off+1 {
		return a, fmt.Errorf("nexuswire: alarm truncated severity")
	}
	a.Severity = messages.AlarmSeverity(payload[off])
	off++
	if a.Message, _, err = readString(payload, off); err != nil {
		return a, err
	}
	return a, nil
}

// DecodeAggregatedFrame parses a bus payload tagged
// messages.IDFrameAssembledEventListV2, the counterpart to
// aggregator.Codec.EncodeAggregatedFrame.
func DecodeAggregatedFrame(payload []byte) (messages.AggregatedFrame, error) {
	var f messages.AggregatedFrame
	const headerLen = 8 + 8 + 8 + 4 + 1 + 2 + 1 + 1
	if len(payload) < headerLen {
		return f, fmt.Errorf("nexuswire: aggregated frame payload too short (%d bytes)", len(payload))
	}
	off := 0
	timestampNanos := int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	f.Metadata.Timestamp = time.Unix(0, timestampNanos).UTC()
	f.Metadata.FrameNumber = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	f.Metadata.PeriodNumber = binary.LittleEndian.Uint64(payload[off:])
	off += 8
	f.Metadata.ProtonsPerPulse = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	f.Metadata.Running = payload[off] != 0
	off++
	f.Metadata.VetoFlags = binary.LittleEndian.Uint16(payload[off:])
	off += 2
	f.Complete = payload[off] != 0
	off++
	nDigitisers := int(payload[off])
	off++
	if len(payload) < off+nDigitisers {
		return f, fmt.Errorf("nexuswire: aggregated frame truncated digitiser list")
	}
	f.DigitiserIDs = append([]uint8{}, payload[off:off+nDigitisers]...)
	off += nDigitisers
	if len(payload) < off+4 {
		return f, fmt.Errorf("nexuswire: aggregated frame truncated event count")
	}
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	for i := 0; i < n; i++ {
		if len(payload) < off+20 {
			return f, fmt.Errorf("nexuswire: aggregated frame truncated at event %d", i)
		}
		t := int64(binary.LittleEndian.Uint64(payload[off:]))
		off += 8
		bits := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		ch := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		f.Events.Time = append(f.Events.Time, t)
		f.Events.Intensity = append(f.Events.Intensity, math.Float64frombits(bits))
		f.Events.Channel = append(f.Events.Channel, ch)
	}
	return f, nil
}
