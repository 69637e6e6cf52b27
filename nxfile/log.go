package nxfile

import (
	"fmt"

	hdf5 "github.com/sbinet/go-hdf5"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// logGroup is either the runlog or selog NXgroup, holding one nxLog
// subgroup per named channel, created lazily on first sight of that name.
type logGroup struct {
	group  *hdf5.Group
	nxName string // "runlog" or "selog"
	logs   map[string]*nxLog
	alarms map[string]*alarmSink // only populated for selog
}

func createLogGroup(entry *hdf5.Group, name string) (*logGroup, error) {
	g, err := createGroup(entry, name, "NXcollection")
	if err != nil {
		return nil, err
	}
	return &logGroup{group: g, nxName: name, logs: map[string]*nxLog{}}, nil
}

// nxLog is one NXlog subgroup: a "time" column (seconds since run start)
// and a dynamically-typed "value" sink dispatched over
// messages.LogValueKind's closed tagged-variant listing.
type nxLog struct {
	group *hdf5.Group
	time  *column[float64]
	value valueSink
	kind  messages.LogValueKind
}

// valueSink abstracts the twenty LogValueKind variants behind one append
// call, so nxLog.Append need not switch on Kind itself.
type valueSink interface {
	append(vs []messages.LogValue) error
	close() error
}

func (lg *logGroup) logFor(name string, first messages.LogValueKind) (*nxLog, error) {
	if l, ok := lg.logs[name]; ok {
		if l.kind != first {
			return nil, fmt.Errorf("nxfile: log %q/%s changed kind from %d to %d", lg.nxName, name, l.kind, first)
		}
		return l, nil
	}
	g, err := createGroup(lg.group, name, "NXlog")
	if err != nil {
		return nil, err
	}
	if err := writeKindAttribute(g, first); err != nil {
		return nil, err
	}
	timeCol, err := newColumn[float64](g, "time", hdf5.T_NATIVE_DOUBLE)
	if err != nil {
		return nil, err
	}
	sink, err := newValueSink(g, first)
	if err != nil {
		return nil, err
	}
	l := &nxLog{group: g, time: timeCol, value: sink, kind: first}
	lg.logs[name] = l
	return l, nil
}

// writeKindAttribute records the dispatched LogValueKind on the NXlog
// group so reopenLogGroup can resume without replaying the first message.
func writeKindAttribute(g *hdf5.Group, kind messages.LogValueKind) error {
	sp, err := hdf5.CreateScalarDataspace()
	if err != nil {
		return pathErr("dataspace", "kind", err)
	}
	defer sp.Close()
	attr, err := g.CreateAttribute("nexus_pipeline_kind", hdf5.T_NATIVE_INT32, sp)
	if err != nil {
		return pathErr("create-attribute", "kind", err)
	}
	defer attr.Close()
	v := int32(kind)
	if err := attr.Write(&v, hdf5.T_NATIVE_INT32); err != nil {
		return pathErr("write-attribute", "kind", err)
	}
	return nil
}

func readKindAttribute(g *hdf5.Group) (messages.LogValueKind, error) {
	attr, err := g.OpenAttribute("nexus_pipeline_kind")
	if err != nil {
		return 0, pathErr("open-attribute", "kind", err)
	}
	defer attr.Close()
	var v int32
	if err := attr.Read(&v, hdf5.T_NATIVE_INT32); err != nil {
		return 0, pathErr("read-attribute", "kind", err)
	}
	return messages.LogValueKind(v), nil
}

// reopenLogGroup reattaches to every NXlog subgroup already present under
// an existing runlog/selog group, for the resume-on-startup path.
func reopenLogGroup(entry *hdf5.Group, name string) (*logGroup, error) {
	g, err := entry.OpenGroup(name)
	if err != nil {
		return nil, pathErr("open-group", name, err)
	}
	lg := &logGroup{group: g, nxName: name, logs: map[string]*nxLog{}}

	count, err := g.NumObjects()
	if err != nil {
		return nil, pathErr("num-objects", name, err)
	}
	for i := uint(0); i < count; i++ {
		childName, err := g.ObjectNameByIndex(i)
		if err != nil {
			return nil, pathErr("object-name", name, err)
		}
		child, err := g.OpenGroup(childName)
		if err != nil {
			return nil, pathErr("open-group", childName, err)
		}
		kind, err := readKindAttribute(child)
		if err != nil {
			return nil, err
		}
		timeCol, err := openColumn[float64](child, "time", hdf5.T_NATIVE_DOUBLE)
		if err != nil {
			return nil, err
		}
		sink, err := openValueSink(child, kind)
		if err != nil {
			return nil, err
		}
		lg.logs[childName] = &nxLog{group: child, time: timeCol, value: sink, kind: kind}
	}
	return lg, nil
}

// AppendLogData writes one f144-style scalar or array sample.
func (lg *logGroup) AppendLogData(d messages.LogData, runStartNanos int64) error {
	l, err := lg.logFor(d.SourceName, d.Value.Kind)
	if err != nil {
		return err
	}
	seconds := float64(d.Timestamp.UnixNano()-runStartNanos) / 1e9
	if err := l.time.Append([]float64{seconds}); err != nil {
		return err
	}
	return l.value.append([]messages.LogValue{d.Value})
}

// AppendSampleEnvironment writes one se00 packet's slice of timestamped
// values.
func (lg *logGroup) AppendSampleEnvironment(d messages.SampleEnvironmentData, runStartNanos int64) error {
	if len(d.Values) == 0 {
		return nil
	}
	l, err := lg.logFor(d.Name, d.Values[0].Kind)
	if err != nil {
		return err
	}
	seconds := make([]float64, len(d.Timestamps))
	for i, ts := range d.Timestamps {
		seconds[i] = float64(ts.UnixNano()-runStartNanos) / 1e9
	}
	if err := l.time.Append(seconds); err != nil {
		return err
	}
	return l.value.append(d.Values)
}

// scalarSink stores one value per sample directly in a column[T].
type scalarSink[T any] struct {
	col     *column[T]
	extract func(messages.LogValue) T
}

func (s *scalarSink[T]) append(vs []messages.LogValue) error {
	xs := make([]T, len(vs))
	for i, v := range vs {
		xs[i] = s.extract(v)
	}
	return s.col.Append(xs)
}

func (s *scalarSink[T]) close() error { return s.col.Close() }

// arraySink stores variable-length-array samples as a flat data column
// plus a cumulative-length index column, the same index-before-record
// idiom as eventDataset's event_index.
type arraySink[T any] struct {
	data    *column[T]
	index   *column[uint64]
	extract func(messages.LogValue) []T
	total   uint64
}

func (s *arraySink[T]) append(vs []messages.LogValue) error {
	indices := make([]uint64, len(vs))
	var flat []T
	for i, v := range vs {
		indices[i] = s.total
		xs := s.extract(v)
		flat = append(flat, xs...)
		s.total += uint64(len(xs))
	}
	if err := s.index.Append(indices); err != nil {
		return err
	}
	return s.data.Append(flat)
}

func (s *arraySink[T]) close() error {
	if err := s.data.Close(); err != nil {
		return err
	}
	return s.index.Close()
}

func newValueSink(g *hdf5.Group, kind messages.LogValueKind) (valueSink, error) {
	switch kind {
	case messages.KindInt8:
		return newScalarSink[int8](g, hdf5.T_NATIVE_INT8, func(v messages.LogValue) int8 { return v.I8 })
	case messages.KindUint8:
		return newScalarSink[uint8](g, hdf5.T_NATIVE_UINT8, func(v messages.LogValue) uint8 { return v.U8 })
	case messages.KindInt16:
		return newScalarSink[int16](g, hdf5.T_NATIVE_INT16, func(v messages.LogValue) int16 { return v.I16 })
	case messages.KindUint16:
		return newScalarSink[uint16](g, hdf5.T_NATIVE_UINT16, func(v messages.LogValue) uint16 { return v.U16 })
	case messages.KindInt32:
		return newScalarSink[int32](g, hdf5.T_NATIVE_INT32, func(v messages.LogValue) int32 { return v.I32 })
	case messages.KindUint32:
		return newScalarSink[uint32](g, hdf5.T_NATIVE_UINT32, func(v messages.LogValue) uint32 { return v.U32 })
	case messages.KindInt64:
		return newScalarSink[int64](g, hdf5.T_NATIVE_INT64, func(v messages.LogValue) int64 { return v.I64 })
	case messages.KindUint64:
		return newScalarSink[uint64](g, hdf5.T_NATIVE_UINT64, func(v messages.LogValue) uint64 { return v.U64 })
	case messages.KindFloat32:
		return newScalarSink[float32](g, hdf5.T_NATIVE_FLOAT, func(v messages.LogValue) float32 { return v.F32 })
	case messages.KindFloat64:
		return newScalarSink[float64](g, hdf5.T_NATIVE_DOUBLE, func(v messages.LogValue) float64 { return v.F64 })
	case messages.KindArrayInt8:
		return newArraySink[int8](g, hdf5.T_NATIVE_INT8, func(v messages.LogValue) []int8 { return v.ArrI8 })
	case messages.KindArrayUint8:
		return newArraySink[uint8](g, hdf5.T_NATIVE_UINT8, func(v messages.LogValue) []uint8 { return v.ArrU8 })
	case messages.KindArrayInt16:
		return newArraySink[int16](g, hdf5.T_NATIVE_INT16, func(v messages.LogValue) []int16 { return v.ArrI16 })
	case messages.KindArrayUint16:
		return newArraySink[uint16](g, hdf5.T_NATIVE_UINT16, func(v messages.LogValue) []uint16 { return v.ArrU16 })
	case messages.KindArrayInt32:
		return newArraySink[int32](g, hdf5.T_NATIVE_INT32, func(v messages.LogValue) []int32 { return v.ArrI32 })
	case messages.KindArrayUint32:
		return newArraySink[uint32](g, hdf5.T_NATIVE_UINT32, func(v messages.LogValue) []uint32 { return v.ArrU32 })
	case messages.KindArrayInt64:
		return newArraySink[int64](g, hdf5.T_NATIVE_INT64, func(v messages.LogValue) []int64 { return v.ArrI64 })
	case messages.KindArrayUint64:
		return newArraySink[uint64](g, hdf5.T_NATIVE_UINT64, func(v messages.LogValue) []uint64 { return v.ArrU64 })
	case messages.KindArrayFloat32:
		return newArraySink[float32](g, hdf5.T_NATIVE_FLOAT, func(v messages.LogValue) []float32 { return v.ArrF32 })
	case messages.KindArrayFloat64:
		return newArraySink[float64](g, hdf5.T_NATIVE_DOUBLE, func(v messages.LogValue) []float64 { return v.ArrF64 })
	default:
		return nil, fmt.Errorf("nxfile: unknown log value kind %d", kind)
	}
}

func newScalarSink[T any](g *hdf5.Group, dtype *hdf5.Datatype, extract func(messages.LogValue) T) (valueSink, error) {
	col, err := newColumn[T](g, "value", dtype)
	if err != nil {
		return nil, err
	}
	return &scalarSink[T]{col: col, extract: extract}, nil
}

func newArraySink[T any](g *hdf5.Group, dtype *hdf5.Datatype, extract func(messages.LogValue) []T) (valueSink, error) {
	data, err := newColumn[T](g, "value", dtype)
	if err != nil {
		return nil, err
	}
	index, err := newColumn[uint64](g, "value_index", hdf5.T_NATIVE_UINT64)
	if err != nil {
		return nil, err
	}
	return &arraySink[T]{data: data, index: index, extract: extract}, nil
}

// openValueSink reattaches to an existing NXlog's value dataset(s),
// recovering T and the extractor from kind exactly as newValueSink does.
func openValueSink(g *hdf5.Group, kind messages.LogValueKind) (valueSink, error) {
	switch kind {
	case messages.KindInt8:
		return openScalarSink[int8](g, hdf5.T_NATIVE_INT8, func(v messages.LogValue) int8 { return v.I8 })
	case messages.KindUint8:
		return openScalarSink[uint8](g, hdf5.T_NATIVE_UINT8, func(v messages.LogValue) uint8 { return v.U8 })
	case messages.KindInt16:
		return openScalarSink[int16](g, hdf5.T_NATIVE_INT16, func(v messages.LogValue) int16 { return v.I16 })
	case messages.KindUint16:
		return openScalarSink[uint16](g, hdf5.T_NATIVE_UINT16, func(v messages.LogValue) uint16 { return v.U16 })
	case messages.KindInt32:
		return openScalarSink[int32](g, hdf5.T_NATIVE_INT32, func(v messages.LogValue) int32 { return v.I32 })
	case messages.KindUint32:
		return openScalarSink[uint32](g, hdf5.T_NATIVE_UINT32, func(v messages.LogValue) uint32 { return v.U32 })
	case messages.KindInt64:
		return openScalarSink[int64](g, hdf5.T_NATIVE_INT64, func(v messages.LogValue) int64 { return v.I64 })
	case messages.KindUint64:
		return openScalarSink[uint64](g, hdf5.T_NATIVE_UINT64, func(v messages.LogValue) uint64 { return v.U64 })
	case messages.KindFloat32:
		return openScalarSink[float32](g, hdf5.T_NATIVE_FLOAT, func(v messages.LogValue) float32 { return v.F32 })
	case messages.KindFloat64:
		return openScalarSink[float64](g, hdf5.T_NATIVE_DOUBLE, func(v messages.LogValue) float64 { return v.F64 })
	case messages.KindArrayInt8:
		return openArraySink[int8](g, hdf5.T_NATIVE_INT8, func(v messages.LogValue) []int8 { return v.ArrI8 })
	case messages.KindArrayUint8:
		return openArraySink[uint8](g, hdf5.T_NATIVE_UINT8, func(v messages.LogValue) []uint8 { return v.ArrU8 })
	case messages.KindArrayInt16:
		return openArraySink[int16](g, hdf5.T_NATIVE_INT16, func(v messages.LogValue) []int16 { return v.ArrI16 })
	case messages.KindArrayUint16:
		return openArraySink[uint16](g, hdf5.T_NATIVE_UINT16, func(v messages.LogValue) []uint16 { return v.ArrU16 })
	case messages.KindArrayInt32:
		return openArraySink[int32](g, hdf5.T_NATIVE_INT32, func(v messages.LogValue) []int32 { return v.ArrI32 })
	case messages.KindArrayUint32:
		return openArraySink[uint32](g, hdf5.T_NATIVE_UINT32, func(v messages.LogValue) []uint32 { return v.ArrU32 })
	case messages.KindArrayInt64:
		return openArraySink[int64](g, hdf5.T_NATIVE_INT64, func(v messages.LogValue) []int64 { return v.ArrI64 })
	case messages.KindArrayUint64:
		return openArraySink[uint64](g, hdf5.T_NATIVE_UINT64, func(v messages.LogValue) []uint64 { return v.ArrU64 })
	case messages.KindArrayFloat32:
		return openArraySink[float32](g, hdf5.T_NATIVE_FLOAT, func(v messages.LogValue) []float32 { return v.ArrF32 })
	case messages.KindArrayFloat64:
		return openArraySink[float64](g, hdf5.T_NATIVE_DOUBLE, func(v messages.LogValue) []float64 { return v.ArrF64 })
	default:
		return nil, fmt.Errorf("nxfile: unknown log value kind %d", kind)
	}
}

func openScalarSink[T any](g *hdf5.Group, dtype *hdf5.Datatype, extract func(messages.LogValue) T) (valueSink, error) {
	col, err := openColumn[T](g, "value", dtype)
	if err != nil {
		return nil, err
	}
	return &scalarSink[T]{col: col, extract: extract}, nil
}

func openArraySink[T any](g *hdf5.Group, dtype *hdf5.Datatype, extract func(messages.LogValue) []T) (valueSink, error) {
	data, err := openColumn[T](g, "value", dtype)
	if err != nil {
		return nil, err
	}
	index, err := openColumn[uint64](g, "value_index", hdf5.T_NATIVE_UINT64)
	if err != nil {
		return nil, err
	}
	total := uint64(0)
	if n := index.Len(); n > 0 {
		total = uint64(data.Len())
	}
	return &arraySink[T]{data: data, index: index, extract: extract, total: total}, nil
}
