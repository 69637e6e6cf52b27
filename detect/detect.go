// Package detect implements the stateful pulse detectors: small explicit
// state machines fed a windowed sequence (see the window package) that
// emit (time, pulse_height) events. Detectors never fail; they either emit
// or they do not, as an edge/level/auto trigger state machine armed,
// holding, and cooling off across a stream of samples.
package detect

// Event is a single detected pulse: a time (nanoseconds, in whatever epoch
// the caller's samples are indexed against) and a pulse height.
type Event struct {
	Time      int64
	Intensity float64
}

type holdState int

const (
	stateArmed holdState = iota
	stateHolding
	stateCoolOff
)
