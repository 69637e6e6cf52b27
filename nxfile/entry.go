package nxfile

import (
	"strconv"
	"strings"
	"time"

	hdf5 "github.com/sbinet/go-hdf5"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// Parameters carries everything InitialiseNewNexusStructure needs to seed
// the entry/ group's scalars.
type Parameters struct {
	RunName        string
	InstrumentName string
	StartTime      time.Time
	Periods        []uint32
	Configuration  string
	ProgramName    string
	ProgramVersion string
}

// RunNumber extracts the digits of runName as an integer: an empty digit
// run yields 0, with a warning left to the caller since this package does
// no logging of its own.
func RunNumber(runName string) (int64, bool) {
	var digits strings.Builder
	for _, r := range runName {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeScalarString(g *hdf5.Group, name, value string) error {
	sp, err := hdf5.CreateScalarDataspace()
	if err != nil {
		return pathErr("dataspace", name, err)
	}
	defer sp.Close()
	ds, err := g.CreateDataset(name, hdf5.T_GO_STRING, sp)
	if err != nil {
		return pathErr("create-dataset", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&value); err != nil {
		return pathErr("write", name, err)
	}
	return nil
}

func writeScalarInt64(g *hdf5.Group, name string, value int64) error {
	sp, err := hdf5.CreateScalarDataspace()
	if err != nil {
		return pathErr("dataspace", name, err)
	}
	defer sp.Close()
	ds, err := g.CreateDataset(name, hdf5.T_NATIVE_INT64, sp)
	if err != nil {
		return pathErr("create-dataset", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&value); err != nil {
		return pathErr("write", name, err)
	}
	return nil
}

// InitialiseNewNexusStructure builds the entry/ group tree and all of its
// direct children, and seeds the fixed scalars. RunStart's own scalars
// (run_number, start_time, name) are written here since collect_from is
// already known by the time this is called.
func (w *Writer) InitialiseNewNexusStructure(p Parameters) error {
	entry, err := createGroupInFile(w.file, "entry", "NXentry")
	if err != nil {
		return err
	}
	w.entry = entry

	runNumber, ok := RunNumber(p.RunName)
	_ = ok // a run name with no digits yields run_number 0; no warning is logged for it

	scalars := []struct {
		name  string
		write func() error
	}{
		{"idf_version", func() error { return writeScalarInt64(entry, "idf_version", 2) }},
		{"definition", func() error { return writeScalarString(entry, "definition", "NXmuonid") }},
		{"run_number", func() error { return writeScalarInt64(entry, "run_number", runNumber) }},
		{"experiment_identifier", func() error { return writeScalarString(entry, "experiment_identifier", "") }},
		{"start_time", func() error { return writeScalarString(entry, "start_time", p.StartTime.UTC().Format(time.RFC3339Nano)) }},
		{"name", func() error { return writeScalarString(entry, "name", p.InstrumentName) }},
		{"title", func() error { return writeScalarString(entry, "title", p.RunName) }},
		{"program_name", func() error { return writeScalarString(entry, "program_name", p.ProgramName) }},
	}
	for _, s := range scalars {
		if err := s.write(); err != nil {
			return err
		}
	}
	if err := writeProgramNameAttributes(entry, p.ProgramVersion, p.Configuration); err != nil {
		return err
	}

	if w.detectorData, err = createEventDataset(entry); err != nil {
		return err
	}
	if w.runlog, err = createLogGroup(entry, "runlog"); err != nil {
		return err
	}
	if w.selog, err = createLogGroup(entry, "selog"); err != nil {
		return err
	}
	if w.periods, err = createGroup(entry, "periods", "NXcollection"); err != nil {
		return err
	}
	if w.instrument, err = createGroup(entry, "instrument", "NXinstrument"); err != nil {
		return err
	}
	if w.sample, err = createGroup(entry, "sample", "NXsample"); err != nil {
		return err
	}

	if err := w.UpdatePeriodList(p.Periods); err != nil {
		return err
	}

	w.headerWritten = true
	return nil
}

func writeProgramNameAttributes(entry *hdf5.Group, version, configuration string) error {
	ds, err := entry.OpenDataset("program_name")
	if err != nil {
		return pathErr("open-dataset", "program_name", err)
	}
	defer ds.Close()
	for attrName, value := range map[string]string{"version": version, "configuration": configuration} {
		sp, err := hdf5.CreateScalarDataspace()
		if err != nil {
			return pathErr("dataspace", attrName, err)
		}
		attr, err := ds.CreateAttribute(attrName, hdf5.T_GO_STRING, sp)
		sp.Close()
		if err != nil {
			return pathErr("create-attribute", attrName, err)
		}
		v := value
		err = attr.Write(&v, hdf5.T_GO_STRING)
		attr.Close()
		if err != nil {
			return pathErr("write-attribute", attrName, err)
		}
	}
	return nil
}

// SetEndTime writes entry/end_time.
func (w *Writer) SetEndTime(endTime time.Time) error {
	return writeScalarString(w.entry, "end_time", endTime.UTC().Format(time.RFC3339Nano))
}

// UpdatePeriodList rewrites the periods/ group's period_number dataset.
// Periods are written as a fresh fixed-size dataset each call rather than
// appended, since the message
// carries the full authoritative list each time.
func (w *Writer) UpdatePeriodList(periods []uint32) error {
	if w.periods == nil || len(periods) == 0 {
		return nil
	}
	if existing, err := w.periods.OpenDataset("period_number"); err == nil {
		existing.Close()
		if err := w.periods.UnlinkDataset("period_number"); err != nil {
			return pathErr("unlink", "periods/period_number", err)
		}
	}
	sp, err := hdf5.CreateSimpleDataspace([]uint{uint(len(periods))}, nil)
	if err != nil {
		return pathErr("dataspace", "periods/period_number", err)
	}
	defer sp.Close()
	ds, err := w.periods.CreateDataset("period_number", hdf5.T_NATIVE_UINT32, sp)
	if err != nil {
		return pathErr("create-dataset", "periods/period_number", err)
	}
	defer ds.Close()
	if err := ds.Write(&periods); err != nil {
		return pathErr("write", "periods/period_number", err)
	}
	return nil
}

// PushFrameEventList appends one aggregated frame to detector_1_events.
func (w *Writer) PushFrameEventList(frame messages.AggregatedFrame, runStartNanos int64) error {
	return w.detectorData.AppendFrame(frame, runStartNanos)
}

// PushRunLog appends an f144 sample to runlog or selog depending on
// origin.
func (w *Writer) PushRunLog(d messages.LogData, origin messages.LogOrigin, runStartNanos int64) error {
	return w.logGroupFor(origin).AppendLogData(d, runStartNanos)
}

// PushSampleEnvironmentLog appends an se00 packet.
func (w *Writer) PushSampleEnvironmentLog(d messages.SampleEnvironmentData, origin messages.LogOrigin, runStartNanos int64) error {
	return w.logGroupFor(origin).AppendSampleEnvironment(d, runStartNanos)
}

func (w *Writer) logGroupFor(origin messages.LogOrigin) *logGroup {
	if origin == messages.OriginSampleEnvironment {
		return w.selog
	}
	return w.runlog
}

// reopenGroups reattaches to an existing file's group tree for the
// resume-on-startup path. Dataset lengths are recovered from
// the file itself (openColumn reads SimpleExtentDims), so appends
// continue exactly where the previous process left off.
func (w *Writer) reopenGroups() error {
	entry, err := w.file.OpenGroup("entry")
	if err != nil {
		return pathErr("open-group", "entry", err)
	}
	w.entry = entry

	if w.detectorData, err = openEventDataset(entry); err != nil {
		return err
	}
	if w.runlog, err = reopenLogGroup(entry, "runlog"); err != nil {
		return err
	}
	if w.selog, err = reopenLogGroup(entry, "selog"); err != nil {
		return err
	}
	if w.periods, err = entry.OpenGroup("periods"); err != nil {
		return pathErr("open-group", "periods", err)
	}
	if w.instrument, err = entry.OpenGroup("instrument"); err != nil {
		return pathErr("open-group", "instrument", err)
	}
	if w.sample, err = entry.OpenGroup("sample"); err != nil {
		return pathErr("open-group", "sample", err)
	}
	return nil
}

// ReadParameters recovers a nexusrun.RunParameters-equivalent tuple from
// an already-open file's entry/ scalars, used by the resume-on-startup
// path before appends continue.
func (w *Writer) ReadParameters() (runName string, startTime time.Time, periods []uint32, err error) {
	runName, err = readScalarString(w.entry, "title")
	if err != nil {
		return "", time.Time{}, nil, err
	}
	startStr, err := readScalarString(w.entry, "start_time")
	if err != nil {
		return "", time.Time{}, nil, err
	}
	startTime, err = time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return "", time.Time{}, nil, pathErr("parse-start-time", "start_time", err)
	}
	periods, err = readPeriodList(w.periods)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return runName, startTime, periods, nil
}

func readScalarString(g *hdf5.Group, name string) (string, error) {
	ds, err := g.OpenDataset(name)
	if err != nil {
		return "", pathErr("open-dataset", name, err)
	}
	defer ds.Close()
	var v string
	if err := ds.Read(&v); err != nil {
		return "", pathErr("read", name, err)
	}
	return v, nil
}

func readPeriodList(g *hdf5.Group) ([]uint32, error) {
	ds, err := g.OpenDataset("period_number")
	if err != nil {
		return nil, nil // no periods written yet
	}
	defer ds.Close()
	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, pathErr("extent-dims", "periods/period_number", err)
	}
	periods := make([]uint32, dims[0])
	if err := ds.Read(&periods); err != nil {
		return nil, pathErr("read", "periods/period_number", err)
	}
	return periods, nil
}
