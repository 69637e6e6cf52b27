package nxfile

import (
	hdf5 "github.com/sbinet/go-hdf5"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// eventDataset is the entry/detector_1_events NXevent_data group:
// per-event columns (event_time_offset, event_id, pulse_height) plus
// per-frame columns (event_time_zero, event_index, period_number,
// frame_number, frame_complete, running, veto_flags). event_index before a
// frame is the cumulative event count preceding it, so eventDataset tracks
// a running total across appends.
type eventDataset struct {
	group *hdf5.Group

	eventTimeOffset *column[int64]  // nanoseconds within the frame (Open Question: ns, not us)
	eventID         *column[uint32]
	pulseHeight     *column[float64]

	eventTimeZero *column[float64] // seconds since run start
	eventIndex    *column[uint64]
	periodNumber  *column[uint64]
	frameNumber   *column[uint64]
	frameComplete *column[uint8] // bool stored as 0/1
	running       *column[uint8]
	vetoFlags     *column[uint16]

	totalEvents uint64
}

func createEventDataset(entry *hdf5.Group) (*eventDataset, error) {
	g, err := createGroup(entry, "detector_1_events", "NXevent_data")
	if err != nil {
		return nil, err
	}
	ed := &eventDataset{group: g}
	var cerr error
	mustCol := func(build func() error) {
		if cerr != nil {
			return
		}
		cerr = build()
	}
	mustCol(func() (err error) { ed.eventTimeOffset, err = newColumn[int64](g, "event_time_offset", hdf5.T_NATIVE_INT64); return })
	mustCol(func() (err error) { ed.eventID, err = newColumn[uint32](g, "event_id", hdf5.T_NATIVE_UINT32); return })
	mustCol(func() (err error) { ed.pulseHeight, err = newColumn[float64](g, "pulse_height", hdf5.T_NATIVE_DOUBLE); return })
	mustCol(func() (err error) { ed.eventTimeZero, err = newColumn[float64](g, "event_time_zero", hdf5.T_NATIVE_DOUBLE); return })
	mustCol(func() (err error) { ed.eventIndex, err = newColumn[uint64](g, "event_index", hdf5.T_NATIVE_UINT64); return })
	mustCol(func() (err error) { ed.periodNumber, err = newColumn[uint64](g, "period_number", hdf5.T_NATIVE_UINT64); return })
	mustCol(func() (err error) { ed.frameNumber, err = newColumn[uint64](g, "frame_number", hdf5.T_NATIVE_UINT64); return })
	mustCol(func() (err error) { ed.frameComplete, err = newColumn[uint8](g, "frame_complete", hdf5.T_NATIVE_UINT8); return })
	mustCol(func() (err error) { ed.running, err = newColumn[uint8](g, "running", hdf5.T_NATIVE_UINT8); return })
	mustCol(func() (err error) { ed.vetoFlags, err = newColumn[uint16](g, "veto_flags", hdf5.T_NATIVE_UINT16); return })
	if cerr != nil {
		return nil, cerr
	}
	return ed, nil
}

func openEventDataset(entry *hdf5.Group) (*eventDataset, error) {
	g, err := entry.OpenGroup("detector_1_events")
	if err != nil {
		return nil, pathErr("open-group", "detector_1_events", err)
	}
	ed := &eventDataset{group: g}
	var oerr error
	open := func(assign func() error) {
		if oerr != nil {
			return
		}
		oerr = assign()
	}
	open(func() (err error) { ed.eventTimeOffset, err = openColumn[int64](g, "event_time_offset", hdf5.T_NATIVE_INT64); return })
	open(func() (err error) { ed.eventID, err = openColumn[uint32](g, "event_id", hdf5.T_NATIVE_UINT32); return })
	open(func() (err error) { ed.pulseHeight, err = openColumn[float64](g, "pulse_height", hdf5.T_NATIVE_DOUBLE); return })
	open(func() (err error) { ed.eventTimeZero, err = openColumn[float64](g, "event_time_zero", hdf5.T_NATIVE_DOUBLE); return })
	open(func() (err error) { ed.eventIndex, err = openColumn[uint64](g, "event_index", hdf5.T_NATIVE_UINT64); return })
	open(func() (err error) { ed.periodNumber, err = openColumn[uint64](g, "period_number", hdf5.T_NATIVE_UINT64); return })
	open(func() (err error) { ed.frameNumber, err = openColumn[uint64](g, "frame_number", hdf5.T_NATIVE_UINT64); return })
	open(func() (err error) { ed.frameComplete, err = openColumn[uint8](g, "frame_complete", hdf5.T_NATIVE_UINT8); return })
	open(func() (err error) { ed.running, err = openColumn[uint8](g, "running", hdf5.T_NATIVE_UINT8); return })
	open(func() (err error) { ed.vetoFlags, err = openColumn[uint16](g, "veto_flags", hdf5.T_NATIVE_UINT16); return })
	if oerr != nil {
		return nil, oerr
	}
	ed.totalEvents = uint64(ed.eventID.Len())
	return ed, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// AppendFrame writes one aggregated frame's events plus its per-frame
// scalars. runStartNanos anchors event_time_zero to the run's start:
// event_time_zero is written as (event_ns − run_start_ns) / 1e9 seconds.
func (ed *eventDataset) AppendFrame(frame messages.AggregatedFrame, runStartNanos int64) error {
	n := frame.Events.Len()
	if err := ed.eventIndex.Append([]uint64{ed.totalEvents}); err != nil {
		return err
	}
	ed.totalEvents += uint64(n)

	intensities := frame.Events.Intensity
	ids := frame.Events.Channel
	offsets := make([]int64, n)
	copy(offsets, frame.Events.Time)

	if err := ed.eventTimeOffset.Append(offsets); err != nil {
		return err
	}
	if err := ed.eventID.Append(ids); err != nil {
		return err
	}
	if err := ed.pulseHeight.Append(intensities); err != nil {
		return err
	}

	timeZero := float64(frame.Metadata.Timestamp.UnixNano()-runStartNanos) / 1e9
	if err := ed.eventTimeZero.Append([]float64{timeZero}); err != nil {
		return err
	}
	if err := ed.periodNumber.Append([]uint64{frame.Metadata.PeriodNumber}); err != nil {
		return err
	}
	if err := ed.frameNumber.Append([]uint64{frame.Metadata.FrameNumber}); err != nil {
		return err
	}
	if err := ed.frameComplete.Append([]uint8{boolToUint8(frame.Complete)}); err != nil {
		return err
	}
	if err := ed.running.Append([]uint8{boolToUint8(frame.Metadata.Running)}); err != nil {
		return err
	}
	if err := ed.vetoFlags.Append([]uint16{frame.Metadata.VetoFlags}); err != nil {
		return err
	}
	return nil
}
