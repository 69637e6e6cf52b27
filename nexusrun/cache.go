package nexusrun

import "time"

// ErrRunStopUnexpected is returned when a RunStop arrives with no open run
// to apply it to.
var ErrRunStopUnexpected = errorString("nexusrun: run stop received with no matching run")

type errorString string

func (e errorString) Error() string { return string(e) }

// Cache is the run engine's insertion-ordered sequence of runs, scanned
// front-to-back the same way framecache.Cache is.
type Cache struct {
	runs []*Run
}

// NewCache builds an empty run cache.
func NewCache() *Cache { return &Cache{} }

// Len reports how many runs are currently held.
func (c *Cache) Len() int { return len(c.runs) }

// Last returns the most recently added run, or nil if the cache is empty.
func (c *Cache) Last() *Run {
	if len(c.runs) == 0 {
		return nil
	}
	return c.runs[len(c.runs)-1]
}

// StartRun handles a RunStart: if the current last run has no stop,
// synthesise an abort on it using startTime as the new stop, then append
// and return the newly created run.
func (c *Cache) StartRun(run *Run, startTime, now time.Time) error {
	if last := c.Last(); last != nil && last.Phase() == Running {
		if err := last.SetAbortedRun(startTime, now); err != nil {
			return err
		}
	}
	c.runs = append(c.runs, run)
	return nil
}

// StopRun applies a genuine RunStop to the last run in the cache.
// ErrRunStopUnexpected is returned for a stop with no preceding start.
func (c *Cache) StopRun(stopTime, now time.Time) error {
	last := c.Last()
	if last == nil {
		return ErrRunStopUnexpected
	}
	return last.SetStopIfValid(stopTime, now)
}

// FindRunContaining returns the first run (in insertion order) whose
// window strictly contains timestamp, or nil. Used for frame event lists
// and run logs.
func (c *Cache) FindRunContaining(timestamp time.Time) *Run {
	for _, r := range c.runs {
		if r.ContainsTimestamp(timestamp) {
			return r
		}
	}
	return nil
}

// FindRunNotEndingBefore returns the first run whose stop (if any) is not
// before timestamp, or nil. Used for sample-environment and alarm
// messages.
func (c *Cache) FindRunNotEndingBefore(timestamp time.Time) *Run {
	for _, r := range c.runs {
		if r.NotEndingBefore(timestamp) {
			return r
		}
	}
	return nil
}

// DrainCompleted removes and returns every run whose stop+delay has
// elapsed, preserving insertion order among the survivors. Called by the
// periodic flush.
func (c *Cache) DrainCompleted(now time.Time, delay time.Duration) []*Run {
	var completed []*Run
	remaining := c.runs[:0]
	for _, r := range c.runs {
		if r.IsComplete(now, delay) {
			completed = append(completed, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	c.runs = remaining
	return completed
}

// Add appends a run directly, used by the resume-on-startup path where a
// Run is reconstructed from an on-disk file rather than a RunStart
// message.
func (c *Cache) Add(run *Run) {
	c.runs = append(c.runs, run)
}
