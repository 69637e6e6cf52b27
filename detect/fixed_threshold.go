package detect

// FixedThreshold is the Fixed-Threshold Discriminator: a crossing of
// Threshold must be held for Duration samples before it emits,
// after which detection is suppressed for CoolOff samples.
//
// Polarity and baseline subtraction are applied upstream (by the caller,
// via the window package's Baseline and a sign flip); FixedThreshold only
// ever compares against a rising threshold.
type FixedThreshold struct {
	Threshold float64
	Duration  int // samples the crossing must hold before it emits
	CoolOff   int // samples to suppress detection after an emission

	state     holdState
	n         int // monotonically increasing sample counter
	enteredAt int64
	holdCount int
	maxValue  float64
	coolUntil int
}

// NewFixedThreshold builds a detector with the given parameters.
func NewFixedThreshold(threshold float64, duration, coolOff int) *FixedThreshold {
	if duration < 1 {
		duration = 1
	}
	return &FixedThreshold{Threshold: threshold, Duration: duration, CoolOff: coolOff}
}

// Push feeds one windowed sample. It returns the detected event and true
// if a crossing completed its hold duration on this sample.
func (d *FixedThreshold) Push(t int64, x float64) (Event, bool) {
	d.n++
	switch d.state {
	case stateCoolOff:
		if d.n >= d.coolUntil {
			d.state = stateArmed
		} else {
			return Event{}, false
		}
		fallthrough
	case stateArmed:
		if x >= d.Threshold {
			d.state = stateHolding
			d.enteredAt = t
			d.holdCount = 1
			d.maxValue = x
			if d.holdCount >= d.Duration {
				return d.emit()
			}
		}
	case stateHolding:
		if x > d.maxValue {
			d.maxValue = x
		}
		if x < d.Threshold {
			// Dropped before the hold completed: no emission.
			d.state = stateArmed
			return Event{}, false
		}
		d.holdCount++
		if d.holdCount >= d.Duration {
			return d.emit()
		}
	}
	return Event{}, false
}

func (d *FixedThreshold) emit() (Event, bool) {
	ev := Event{Time: d.enteredAt, Intensity: d.maxValue}
	d.state = stateCoolOff
	d.coolUntil = d.n + d.CoolOff
	return ev, true
}

// Finish signals end-of-input. If a crossing is mid-hold (has satisfied the
// duration but hasn't yet been observed to fall, which cannot happen in
// this detector since emission occurs the instant duration is met) no
// final event is pending; Finish exists to present the same detector
// contract uniformly across detector types.
func (d *FixedThreshold) Finish() (Event, bool) {
	return Event{}, false
}
