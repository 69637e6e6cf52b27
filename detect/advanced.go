package detect

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// advancedState is the Advanced Muon Detector's own state sequence, kept
// separate from holdState since it tracks three thresholds rather than one.
type advancedState int

const (
	advancedIdle advancedState = iota
	advancedRising
	advancedFalling
)

// Pulse is the assembled output of the Advanced Muon Detector: the time of
// steepest rise and the peak raw value observed during the pulse.
type Pulse struct {
	SteepestRiseTime int64
	PeakValue        float64
}

// AdvancedMuonDetector runs a 3-threshold sequence over the first
// derivative of the raw trace: onset (derivative crosses OnsetThreshold,
// positive), fall (derivative crosses FallThreshold, negative), and
// termination (derivative settles within TerminationThreshold of zero).
// Optionally projects the raw samples seen during the hold onto a
// configured basis (Projector/Basis, from gonum.org/v1/gonum/mat) as a
// denoising step before reporting PeakValue.
type AdvancedMuonDetector struct {
	OnsetThreshold       float64
	FallThreshold        float64
	TerminationThreshold float64
	MinAmplitude         float64
	MaxAmplitude         float64
	HasAmplitudeFilter   bool

	Projector *mat.Dense // optional: nbases x nsamples
	Basis     *mat.Dense // optional: nsamples x nbases

	state            advancedState
	steepestRiseTime int64
	steepestRiseDx   float64
	peakValue        float64
	holdSamples      []float64
	holdOffset       int
}

// NewAdvancedMuonDetector builds a detector with no amplitude filter and no
// projection basis configured.
func NewAdvancedMuonDetector(onset, fall, termination float64) *AdvancedMuonDetector {
	return &AdvancedMuonDetector{
		OnsetThreshold:       onset,
		FallThreshold:        fall,
		TerminationThreshold: termination,
	}
}

// SetAmplitudeFilter configures the optional [min, max] pulse acceptance
// range; pulses outside it are dropped by Push/Finish.
func (d *AdvancedMuonDetector) SetAmplitudeFilter(min, max float64) {
	d.MinAmplitude, d.MaxAmplitude, d.HasAmplitudeFilter = min, max, true
}

// SetProjectorBasis configures the optional pulse-shape projection used to
// denoise PeakValue.
func (d *AdvancedMuonDetector) SetProjectorBasis(projector, basis *mat.Dense) {
	d.Projector, d.Basis = projector, basis
}

// Push feeds one (time, value, derivative) triple.
func (d *AdvancedMuonDetector) Push(t int64, value, derivative float64) (Pulse, bool) {
	switch d.state {
	case advancedIdle:
		if derivative > d.OnsetThreshold {
			d.state = advancedRising
			d.steepestRiseTime = t
			d.steepestRiseDx = derivative
			d.peakValue = value
			d.holdSamples = d.holdSamples[:0]
			d.holdSamples = append(d.holdSamples, value)
		}
	case advancedRising:
		d.holdSamples = append(d.holdSamples, value)
		if derivative > d.steepestRiseDx {
			d.steepestRiseDx = derivative
			d.steepestRiseTime = t
		}
		if value > d.peakValue {
			d.peakValue = value
		}
		if derivative < d.FallThreshold {
			d.state = advancedFalling
		}
	case advancedFalling:
		d.holdSamples = append(d.holdSamples, value)
		if value > d.peakValue {
			d.peakValue = value
		}
		if derivative >= -d.TerminationThreshold && derivative <= d.TerminationThreshold {
			return d.emit()
		}
	}
	return Pulse{}, false
}

func (d *AdvancedMuonDetector) emit() (Pulse, bool) {
	peak := d.peakValue
	if d.Projector != nil && d.Basis != nil && len(d.holdSamples) > 0 {
		peak = d.projectPeak()
	}
	p := Pulse{SteepestRiseTime: d.steepestRiseTime, PeakValue: peak}
	d.state = advancedIdle
	d.holdSamples = nil
	if d.HasAmplitudeFilter && (peak < d.MinAmplitude || peak > d.MaxAmplitude) {
		return Pulse{}, false
	}
	return p, true
}

// projectPeak projects the held raw samples onto the configured basis and
// reconstructs a denoised peak value: coeffs = Projector * samples,
// reconstructed = Basis * coeffs, peak = max(reconstructed).
func (d *AdvancedMuonDetector) projectPeak() float64 {
	nsamp, _ := d.Projector.Dims()
	_ = nsamp
	_, cols := d.Projector.Dims()
	samples := mat.NewVecDense(cols, nil)
	n := cols
	if len(d.holdSamples) < n {
		n = len(d.holdSamples)
	}
	for i := 0; i < n; i++ {
		samples.SetVec(i, d.holdSamples[i])
	}
	var coeffs mat.VecDense
	coeffs.MulVec(d.Projector, samples)
	var reconstructed mat.VecDense
	reconstructed.MulVec(d.Basis, &coeffs)
	peak := math.Inf(-1)
	for i := 0; i < reconstructed.Len(); i++ {
		if v := reconstructed.AtVec(i); v > peak {
			peak = v
		}
	}
	return peak
}

// Finish signals end-of-input; if mid-hold, it may emit one final event.
func (d *AdvancedMuonDetector) Finish() (Pulse, bool) {
	if d.state == advancedFalling {
		return d.emit()
	}
	d.state = advancedIdle
	d.holdSamples = nil
	return Pulse{}, false
}
