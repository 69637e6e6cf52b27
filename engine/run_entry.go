// Package engine implements the NeXus run engine: an insertion-ordered
// cache of runs plus a bus-subscription-mode handle, matching incoming
// messages to runs by timestamp, periodic flush to a local completed
// directory, and resume-on-startup. One struct owns the whole collection
// of stateful sub-objects; it holds no lock and is not safe for concurrent
// use, so callers drive it from a single goroutine.
package engine

import (
	"time"

	"github.com/multiverse-hardware-labs/nexus-pipeline/dispatch"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nexusrun"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nxfile"
)

// runEntry pairs a nexusrun.Run's in-memory lifecycle state with the open
// NeXus file handle that backs it, and implements dispatch.Handler by
// delegating straight to the nxfile.Writer.
type runEntry struct {
	run          *nexusrun.Run
	writer       *nxfile.Writer
	runStartNanos int64
}

var _ dispatch.Handler = (*runEntry)(nil)

func (e *runEntry) InitialiseNewNexusStructure(p nxfile.Parameters) error {
	e.runStartNanos = p.StartTime.UnixNano()
	return e.writer.InitialiseNewNexusStructure(p)
}

func (e *runEntry) PushRunStart(rs messages.RunStart) error {
	// The run's own identity (collect_from, run_name, file_name) is
	// already set at construction (nexusrun.New); PushRunStart only
	// updates the period list the RunStart message carries.
	return e.writer.UpdatePeriodList(periodsOf(rs))
}

func periodsOf(rs messages.RunStart) []uint32 { return rs.Periods }

func (e *runEntry) SetEndTime(t time.Time) error {
	return e.writer.SetEndTime(t)
}

func (e *runEntry) PushFrameEventList(frame messages.AggregatedFrame) error {
	return e.writer.PushFrameEventList(frame, e.runStartNanos)
}

func (e *runEntry) UpdatePeriodList(periods []uint32) error {
	return e.writer.UpdatePeriodList(periods)
}

func (e *runEntry) PushRunLog(d messages.LogData, origin messages.LogOrigin) error {
	return e.writer.PushRunLog(d, origin, e.runStartNanos)
}

func (e *runEntry) PushSampleEnvironmentLog(d messages.SampleEnvironmentData, origin messages.LogOrigin) error {
	return e.writer.PushSampleEnvironmentLog(d, origin, e.runStartNanos)
}

func (e *runEntry) PushAlarm(a messages.Alarm) error {
	return e.writer.PushAlarm(a, e.runStartNanos)
}

func (e *runEntry) PushRunResumeWarning(resumeTime time.Time) error {
	return e.writer.PushRunLog(messages.LogData{
		SourceName: "nexus_pipeline_internal",
		Timestamp:  resumeTime,
		Value:      messages.LogValue{Kind: messages.KindUint8, U8: 1},
	}, messages.OriginRunLog, e.runStartNanos)
}

func (e *runEntry) PushIncompleteFrameWarning(frame messages.AggregatedFrame) error {
	return e.writer.PushRunLog(messages.LogData{
		SourceName: "nexus_pipeline_internal",
		Timestamp:  frame.Metadata.Timestamp,
		Value:      messages.LogValue{Kind: messages.KindUint64, U64: frame.Metadata.FrameNumber},
	}, messages.OriginRunLog, e.runStartNanos)
}

func (e *runEntry) PushAbortRunWarning(stopTimeMillis uint64) error {
	return e.writer.PushRunLog(messages.LogData{
		SourceName: "nexus_pipeline_internal",
		Timestamp:  time.UnixMilli(int64(stopTimeMillis)),
		Value:      messages.LogValue{Kind: messages.KindUint64, U64: stopTimeMillis},
	}, messages.OriginRunLog, e.runStartNanos)
}
