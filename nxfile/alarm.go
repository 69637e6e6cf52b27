package nxfile

import (
	hdf5 "github.com/sbinet/go-hdf5"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// alarmSink is the selog alarm sub-entry: a time column, the severity as an
// int32 code (messages.AlarmSeverity), and the message as a variable-length
// string. It is its own NXlog group named "<source>_alarm" directly under
// selog, beside the sample environment NXlog groups, since an alarm is not
// a sample environment value.
type alarmSink struct {
	group     *hdf5.Group
	time      *column[float64]
	severity  *column[int32]
	message   *column[string]
}

func createAlarmSink(parent *hdf5.Group, sourceName string) (*alarmSink, error) {
	g, err := createGroup(parent, sourceName+"_alarm", "NXlog")
	if err != nil {
		return nil, err
	}
	timeCol, err := newColumn[float64](g, "time", hdf5.T_NATIVE_DOUBLE)
	if err != nil {
		return nil, err
	}
	sevCol, err := newColumn[int32](g, "severity", hdf5.T_NATIVE_INT32)
	if err != nil {
		return nil, err
	}
	msgCol, err := newColumn[string](g, "message", hdf5.T_GO_STRING)
	if err != nil {
		return nil, err
	}
	return &alarmSink{group: g, time: timeCol, severity: sevCol, message: msgCol}, nil
}

func (a *alarmSink) append(ts float64, severity messages.AlarmSeverity, message string) error {
	if err := a.time.Append([]float64{ts}); err != nil {
		return err
	}
	if err := a.severity.Append([]int32{int32(severity)}); err != nil {
		return err
	}
	return a.message.Append([]string{message})
}

// PushAlarm appends an al00 alarm to its named sub-entry under selog,
// creating the sub-entry on first sight of the source.
func (w *Writer) PushAlarm(alarm messages.Alarm, runStartNanos int64) error {
	sink, ok := w.selog.alarms[alarm.SourceName]
	if !ok {
		var err error
		sink, err = createAlarmSink(w.selog.group, alarm.SourceName)
		if err != nil {
			return err
		}
		if w.selog.alarms == nil {
			w.selog.alarms = map[string]*alarmSink{}
		}
		w.selog.alarms[alarm.SourceName] = sink
	}
	seconds := float64(alarm.Timestamp.UnixNano()-runStartNanos) / 1e9
	return sink.append(seconds, alarm.Severity, alarm.Message)
}
