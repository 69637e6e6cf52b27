package eventdata

import (
	"github.com/multiverse-hardware-labs/nexus-pipeline/detect"
	"github.com/multiverse-hardware-labs/nexus-pipeline/window"
)

// SampleDetector is the uniform interface the per-channel processor drives:
// feed it baseline-corrected, polarity-applied raw samples one at a time.
// It composes whatever windowed-iterator kernel a given discriminator mode
// needs behind this single entry point.
type SampleDetector interface {
	PushSample(t int64, x float64) (detect.Event, bool)
	Finish() (detect.Event, bool)
}

// fixedThresholdDetector adapts detect.FixedThreshold, which needs no
// windowing of its own.
type fixedThresholdDetector struct {
	*detect.FixedThreshold
}

func (f fixedThresholdDetector) PushSample(t int64, x float64) (detect.Event, bool) {
	return f.Push(t, x)
}

// NewFixedThresholdDetector builds a SampleDetector around a fixed-threshold
// discriminator.
func NewFixedThresholdDetector(threshold float64, duration, coolOff int) SampleDetector {
	return fixedThresholdDetector{detect.NewFixedThreshold(threshold, duration, coolOff)}
}

// differentialThresholdDetector composes a FiniteDifferences(2) window
// (value, delta) with the differential discriminator.
type differentialThresholdDetector struct {
	fd   *window.FiniteDifferences
	core *detect.DifferentialThreshold
}

// NewDifferentialThresholdDetector builds a SampleDetector around a
// differential-threshold discriminator, internally differencing the raw
// sample stream.
func NewDifferentialThresholdDetector(threshold float64, duration, coolOff int, constantMultiple *float64) SampleDetector {
	return &differentialThresholdDetector{
		fd:   window.NewFiniteDifferences(2),
		core: detect.NewDifferentialThreshold(threshold, duration, coolOff, constantMultiple),
	}
}

func (d *differentialThresholdDetector) PushSample(t int64, x float64) (detect.Event, bool) {
	if !d.fd.Push(t, x) {
		return detect.Event{}, false
	}
	_, out := d.fd.Output()
	return d.core.Push(t, out[0], out[1])
}

func (d *differentialThresholdDetector) Finish() (detect.Event, bool) {
	return d.core.Finish()
}

func (f fixedThresholdDetector) Finish() (detect.Event, bool) {
	return f.FixedThreshold.Finish()
}

// advancedMuonDetector composes a FiniteDifferences(2) window with the
// 3-threshold advanced detector, translating its Pulse output into a plain
// Event (PeakValue as intensity, SteepestRiseTime as time).
type advancedMuonDetector struct {
	fd   *window.FiniteDifferences
	core *detect.AdvancedMuonDetector
}

// NewAdvancedMuonDetector builds a SampleDetector around the advanced
// 3-threshold detector.
func NewAdvancedMuonDetector(onset, fall, termination float64) SampleDetector {
	return &advancedMuonDetector{
		fd:   window.NewFiniteDifferences(2),
		core: detect.NewAdvancedMuonDetector(onset, fall, termination),
	}
}

func (a *advancedMuonDetector) PushSample(t int64, x float64) (detect.Event, bool) {
	if !a.fd.Push(t, x) {
		return detect.Event{}, false
	}
	_, out := a.fd.Output()
	p, ok := a.core.Push(t, out[0], out[1])
	if !ok {
		return detect.Event{}, false
	}
	return detect.Event{Time: p.SteepestRiseTime, Intensity: p.PeakValue}, true
}

func (a *advancedMuonDetector) Finish() (detect.Event, bool) {
	p, ok := a.core.Finish()
	if !ok {
		return detect.Event{}, false
	}
	return detect.Event{Time: p.SteepestRiseTime, Intensity: p.PeakValue}, true
}
