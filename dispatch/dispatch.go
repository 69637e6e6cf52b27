// Package dispatch defines the closed set of typed messages an Engine can
// receive and routes each to the group handler that owns it, expressed as
// a closed Go interface plus a type switch instead of per-topic payload
// identifier checks. Wire decoding is out of scope here; dispatch starts
// from already-decoded messages.
package dispatch

import (
	"time"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nxfile"
)

// Message is the closed set of variants an Engine can receive. Each
// concrete type implements Message via the unexported marker method,
// sealing the set against external variants.
type Message interface {
	isMessage()
}

type InitialiseNewNexusStructure struct {
	Parameters    nxfile.Parameters
	Configuration string
}

type PushRunStart struct {
	RunStart messages.RunStart
}

type SetEndTime struct {
	EndTime time.Time
}

type PushFrameEventList struct {
	Frame messages.AggregatedFrame
}

type UpdatePeriodList struct {
	Periods []uint32
}

type PushRunLog struct {
	LogData messages.LogData
	Origin  messages.LogOrigin
}

type PushSampleEnvironmentLog struct {
	Data   messages.SampleEnvironmentData
	Origin messages.LogOrigin
}

type PushAlarm struct {
	Alarm messages.Alarm
}

// InternalWarning is the inner variant set of
// PushInternallyGeneratedLogWarning: warnings the engine raises about
// itself, logged into the run rather than discarded.
type InternalWarning interface {
	isInternalWarning()
}

type RunResume struct{ ResumeTime time.Time }
type IncompleteFrame struct{ Frame messages.AggregatedFrame }
type AbortRun struct{ StopTimeMillis uint64 }

func (RunResume) isInternalWarning()      {}
func (IncompleteFrame) isInternalWarning() {}
func (AbortRun) isInternalWarning()        {}

type PushInternallyGeneratedLogWarning struct {
	Warning InternalWarning
}

func (InitialiseNewNexusStructure) isMessage()      {}
func (PushRunStart) isMessage()                     {}
func (SetEndTime) isMessage()                       {}
func (PushFrameEventList) isMessage()                {}
func (UpdatePeriodList) isMessage()                  {}
func (PushRunLog) isMessage()                        {}
func (PushSampleEnvironmentLog) isMessage()          {}
func (PushAlarm) isMessage()                         {}
func (PushInternallyGeneratedLogWarning) isMessage() {}

// Handler is implemented by whatever owns one run's NeXus structure
// (engine.runEntry wraps *nxfile.Writer) — the entry group dispatches
// compound messages to its subgroups by calling straight through to the
// matching nxfile.Writer method.
type Handler interface {
	InitialiseNewNexusStructure(p nxfile.Parameters) error
	PushRunStart(rs messages.RunStart) error
	SetEndTime(t time.Time) error
	PushFrameEventList(frame messages.AggregatedFrame) error
	UpdatePeriodList(periods []uint32) error
	PushRunLog(d messages.LogData, origin messages.LogOrigin) error
	PushSampleEnvironmentLog(d messages.SampleEnvironmentData, origin messages.LogOrigin) error
	PushAlarm(a messages.Alarm) error
	PushRunResumeWarning(resumeTime time.Time) error
	PushIncompleteFrameWarning(frame messages.AggregatedFrame) error
	PushAbortRunWarning(stopTimeMillis uint64) error
}

// Dispatch routes msg to the matching method on h. Unknown message types
// are a programmer error (the Message interface is sealed to this
// package's own variants) rather than a runtime condition to recover
// from, so Dispatch panics on an exhaustiveness miss instead of returning
// an error for it.
func Dispatch(h Handler, msg Message) error {
	switch m := msg.(type) {
	case InitialiseNewNexusStructure:
		return h.InitialiseNewNexusStructure(m.Parameters)
	case PushRunStart:
		return h.PushRunStart(m.RunStart)
	case SetEndTime:
		return h.SetEndTime(m.EndTime)
	case PushFrameEventList:
		return h.PushFrameEventList(m.Frame)
	case UpdatePeriodList:
		return h.UpdatePeriodList(m.Periods)
	case PushRunLog:
		return h.PushRunLog(m.LogData, m.Origin)
	case PushSampleEnvironmentLog:
		return h.PushSampleEnvironmentLog(m.Data, m.Origin)
	case PushAlarm:
		return h.PushAlarm(m.Alarm)
	case PushInternallyGeneratedLogWarning:
		return dispatchWarning(h, m.Warning)
	default:
		panic("dispatch: unhandled message variant")
	}
}

func dispatchWarning(h Handler, w InternalWarning) error {
	switch v := w.(type) {
	case RunResume:
		return h.PushRunResumeWarning(v.ResumeTime)
	case IncompleteFrame:
		return h.PushIncompleteFrameWarning(v.Frame)
	case AbortRun:
		return h.PushAbortRunWarning(v.StopTimeMillis)
	default:
		panic("dispatch: unhandled internal warning variant")
	}
}
