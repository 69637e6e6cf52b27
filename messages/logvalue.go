package messages

import "time"

// LogValueKind is the closed set of scalar and variable-length-array types
// carried by f144 (log data) and se00 (sample environment) messages, keyed
// off the flatbuffer value union discriminator, dispatched on this closed
// listing rather than a generic "any" value.
type LogValueKind int

const (
	KindInt8 LogValueKind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindArrayInt8
	KindArrayUint8
	KindArrayInt16
	KindArrayUint16
	KindArrayInt32
	KindArrayUint32
	KindArrayInt64
	KindArrayUint64
	KindArrayFloat32
	KindArrayFloat64
)

// LogValue is a single typed payload from an f144 or se00 message. Exactly
// one of the fields matching Kind is populated; the rest are left zero.
type LogValue struct {
	Kind LogValueKind

	I8  int8
	U8  uint8
	I16 int16
	U16 uint16
	I32 int32
	U32 uint32
	I64 int64
	U64 uint64
	F32 float32
	F64 float64

	ArrI8  []int8
	ArrU8  []uint8
	ArrI16 []int16
	ArrU16 []uint16
	ArrI32 []int32
	ArrU32 []uint32
	ArrI64 []int64
	ArrU64 []uint64
	ArrF32 []float32
	ArrF64 []float64
}

// IsArray reports whether Kind denotes a variable-length-array variant.
func (v LogValue) IsArray() bool {
	return v.Kind >= KindArrayInt8
}

// LogData is the f144 message: a single scalar or array sample of a named
// log channel at a point in time.
type LogData struct {
	SourceName string
	Timestamp  time.Time
	Value      LogValue
}

// SampleEnvironmentData is the se00 message: one se00 packet may carry a
// slice of timestamped values for a named log channel.
type SampleEnvironmentData struct {
	Name       string
	Timestamps []time.Time
	Values     []LogValue
}

// AlarmSeverity mirrors the al00 severity enumeration.
type AlarmSeverity int

const (
	SeverityOK AlarmSeverity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
)

// Alarm is the al00 message.
type Alarm struct {
	SourceName string
	Timestamp  time.Time
	Severity   AlarmSeverity
	Message    string
}

// LogOrigin names where a log/alarm message should be filed within the
// NeXus structure: runlog or selog.
type LogOrigin int

const (
	OriginRunLog LogOrigin = iota
	OriginSampleEnvironment
)
