// Package nexusrun models one run's in-memory lifecycle: the
// Idle→Running→Stopping→Completed(+Aborted,+Resumed) state machine that
// lives alongside the run's HDF5 file but outside it. The stop parameters
// known only once a run is told to stop are held behind a Go pointer
// field, with sentinel errors for the failure modes.
package nexusrun

import (
	"errors"
	"time"
)

// Lifecycle phases a Run passes through. Resumed is not a fourth phase of
// the state machine proper; it is the provenance of a Run reconstructed
// from a file found on startup, and such a run starts directly in
// Running.
type Phase int

const (
	Running Phase = iota
	Stopping
	Completed
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Sentinel errors for the state machine's failure modes.
var (
	ErrStopCommandBeforeStartCommand = errors.New("nexusrun: stop already set for this run")
	ErrStopTimeEarlierThanStartTime  = errors.New("nexusrun: stop time not after start time")
	ErrRunStopAlreadySet             = errors.New("nexusrun: run stop already set")
)

// stopParameters holds the data only known once a run has been told to
// stop.
type stopParameters struct {
	collectUntil time.Time
	lastModified time.Time
}

// Run is one run's persistent-in-memory state.
type Run struct {
	CollectFrom time.Time
	RunName     string
	FileName    string
	Periods     []uint32

	stop *stopParameters

	// Resumed marks a Run reconstructed from an on-disk .nxs file found at
	// startup, rather than created fresh from a RunStart. It records
	// provenance only and changes no behaviour; the run engine appends the
	// internally generated RunResume log when it resumes the file, without
	// consulting this flag.
	Resumed bool
}

// New creates a Run from RunStart-equivalent fields.
func New(collectFrom time.Time, runName, fileName string) *Run {
	return &Run{CollectFrom: collectFrom, RunName: runName, FileName: fileName}
}

// Phase reports the run's current lifecycle phase. Stopping becomes
// Completed once the caller observes last_modified + delay has elapsed
// (the flusher's job, not this type's); Phase here only distinguishes
// Running from Stopping on whether a stop has been set.
func (r *Run) Phase() Phase {
	if r.stop == nil {
		return Running
	}
	return Stopping
}

// CollectUntil reports the run's stop time and whether one has been set.
func (r *Run) CollectUntil() (time.Time, bool) {
	if r.stop == nil {
		return time.Time{}, false
	}
	return r.stop.collectUntil, true
}

// LastModified reports the last time this run's stop parameters were
// touched; zero value if the run has never been stopped.
func (r *Run) LastModified() time.Time {
	if r.stop == nil {
		return time.Time{}
	}
	return r.stop.lastModified
}

// SetStopIfValid applies a genuine RunStop message (at most one per run).
func (r *Run) SetStopIfValid(stopTime, now time.Time) error {
	if r.stop != nil {
		return ErrStopCommandBeforeStartCommand
	}
	if !r.CollectFrom.Before(stopTime) {
		return ErrStopTimeEarlierThanStartTime
	}
	r.stop = &stopParameters{collectUntil: stopTime, lastModified: now}
	return nil
}

// SetAbortedRun synthesises a stop without a RunStop message, used by the
// run engine when a new RunStart arrives while the previous run is still
// open.
func (r *Run) SetAbortedRun(stopTime, now time.Time) error {
	if r.stop != nil {
		return ErrRunStopAlreadySet
	}
	r.stop = &stopParameters{collectUntil: stopTime, lastModified: now}
	return nil
}

// UpdateLastModified refreshes last_modified if the run has been stopped;
// a no-op for a still-running run (last_modified only matters for the
// flusher's completion delay).
func (r *Run) UpdateLastModified(now time.Time) {
	if r.stop != nil {
		r.stop.lastModified = now
	}
}

// ContainsTimestamp reports whether a frame/run-log timestamp matches
// this run: strictly within (collect_from, collect_until?).
func (r *Run) ContainsTimestamp(ts time.Time) bool {
	if !r.CollectFrom.Before(ts) {
		return false
	}
	return r.notAfterEnd(ts)
}

// NotEndingBefore is the weaker test used for sample-environment and
// alarm messages: timestamp < collect_until, or always true if the run
// hasn't stopped.
func (r *Run) NotEndingBefore(ts time.Time) bool {
	return r.notAfterEnd(ts)
}

func (r *Run) notAfterEnd(ts time.Time) bool {
	if r.stop == nil {
		return true
	}
	return ts.Before(r.stop.collectUntil)
}

// IsComplete reports whether delay has elapsed since last_modified on a
// stopped run. A run with no stop is never complete.
func (r *Run) IsComplete(now time.Time, delay time.Duration) bool {
	if r.stop == nil {
		return false
	}
	return now.Sub(r.stop.lastModified) > delay
}
