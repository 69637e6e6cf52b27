package detect

import "testing"

// TestFixedThresholdDetectsTwoCrossings reproduces a short trace with two
// qualifying threshold crossings separated by a dip back below threshold.
func TestFixedThresholdDetectsTwoCrossings(t *testing.T) {
	trace := []float64{0, 1, 2, 1, 0, 1, 2, 1, 8, 0, 2, 8, 3, 1, 2}
	d := NewFixedThreshold(5, 1, 0)

	var times []int64
	var intensities []float64
	for i, x := range trace {
		if ev, ok := d.Push(int64(i), x); ok {
			times = append(times, ev.Time)
			intensities = append(intensities, ev.Intensity)
		}
	}

	wantTimes := []int64{8, 11}
	wantIntensities := []float64{8, 8}
	if len(times) != len(wantTimes) {
		t.Fatalf("got %d events, want %d: %v", len(times), len(wantTimes), times)
	}
	for i := range times {
		if times[i] != wantTimes[i] || intensities[i] != wantIntensities[i] {
			t.Errorf("event %d = (%d,%v), want (%d,%v)", i, times[i], intensities[i], wantTimes[i], wantIntensities[i])
		}
	}
}

func TestFixedThresholdHoldDropsBeforeDuration(t *testing.T) {
	d := NewFixedThreshold(5, 3, 0)
	trace := []float64{0, 6, 7, 2, 0}
	var events int
	for i, x := range trace {
		if _, ok := d.Push(int64(i), x); ok {
			events++
		}
	}
	if events != 0 {
		t.Errorf("got %d events, want 0 (crossing dropped before duration)", events)
	}
}

func TestFixedThresholdCoolOffSuppresses(t *testing.T) {
	d := NewFixedThreshold(5, 1, 3)
	trace := []float64{6, 0, 6, 0, 6, 0, 6}
	var count int
	for i, x := range trace {
		if _, ok := d.Push(int64(i), x); ok {
			count++
		}
	}
	if count != 2 {
		t.Errorf("got %d events during cool-off window, want 2", count)
	}
}
