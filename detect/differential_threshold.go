package detect

// DifferentialThreshold is the Differential-Threshold Discriminator. It is
// fed a 2-wide finite-difference window: the raw value and its
// first difference. While armed, a rise in the first difference above
// Threshold starts a hold during which the peak difference and the peak
// raw value are tracked; once the difference falls to zero or
// below and the hold has lasted at least Duration samples, exactly one
// event is emitted for the armed-to-cool cycle.
type DifferentialThreshold struct {
	Threshold        float64
	Duration         int
	CoolOff          int
	ConstantMultiple *float64 // if set, pulse_height = maxDelta * *ConstantMultiple

	state     holdState
	n         int
	enteredAt int64
	holdCount int
	maxDelta  float64
	peakValue float64
	coolUntil int
}

// NewDifferentialThreshold builds a detector with the given parameters.
// constantMultiple may be nil to use the peak raw value as pulse height.
func NewDifferentialThreshold(threshold float64, duration, coolOff int, constantMultiple *float64) *DifferentialThreshold {
	if duration < 1 {
		duration = 1
	}
	return &DifferentialThreshold{
		Threshold:        threshold,
		Duration:         duration,
		CoolOff:          coolOff,
		ConstantMultiple: constantMultiple,
	}
}

// Push feeds one (value, delta) pair, where delta is the first finite
// difference of value produced by a window.FiniteDifferences(2) upstream.
func (d *DifferentialThreshold) Push(t int64, value, delta float64) (Event, bool) {
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
		if delta > d.Threshold {
			d.state = stateHolding
			d.enteredAt = t
			d.holdCount = 1
			d.maxDelta = delta
			d.peakValue = value
		}
	case stateHolding:
		if delta > d.maxDelta {
			d.maxDelta = delta
		}
		if value > d.peakValue {
			d.peakValue = value
		}
		d.holdCount++
		if delta <= 0 {
			if d.holdCount >= d.Duration {
				return d.emit()
			}
			// Fell before satisfying the minimum hold: cancel, no emission.
			d.state = stateArmed
		}
	}
	return Event{}, false
}

func (d *DifferentialThreshold) emit() (Event, bool) {
	height := d.peakValue
	if d.ConstantMultiple != nil {
		height = d.maxDelta * *d.ConstantMultiple
	}
	ev := Event{Time: d.enteredAt, Intensity: height}
	d.state = stateCoolOff
	d.coolUntil = d.n + d.CoolOff
	return ev, true
}

// Finish signals end of input; if a hold is in progress it is discarded
// (a hold whose difference never fell to zero or below never qualified
// as a complete pulse).
func (d *DifferentialThreshold) Finish() (Event, bool) {
	return Event{}, false
}
