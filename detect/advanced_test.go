package detect

import "testing"

func TestAdvancedMuonDetectorBasicPulse(t *testing.T) {
	d := NewAdvancedMuonDetector(2, -2, 0.5)
	// value, derivative pairs: onset, steepening rise, fall, near-zero termination
	steps := []struct {
		value, derivative float64
	}{
		{0, 0},
		{5, 3},  // onset
		{9, 6},  // steeper rise -> steepest rise updates here
		{10, -3}, // crosses fall threshold
		{8, -0.1}, // termination window
	}
	var got Pulse
	var ok bool
	for i, s := range steps {
		if p, emitted := d.Push(int64(i), s.value, s.derivative); emitted {
			got, ok = p, true
		}
	}
	if !ok {
		t.Fatalf("no pulse emitted")
	}
	if got.SteepestRiseTime != 2 {
		t.Errorf("SteepestRiseTime = %d, want 2", got.SteepestRiseTime)
	}
	if got.PeakValue != 10 {
		t.Errorf("PeakValue = %v, want 10", got.PeakValue)
	}
}

func TestAdvancedMuonDetectorAmplitudeFilter(t *testing.T) {
	d := NewAdvancedMuonDetector(2, -2, 0.5)
	d.SetAmplitudeFilter(100, 200)
	steps := []struct {
		value, derivative float64
	}{
		{0, 0}, {5, 3}, {10, -3}, {8, -0.1},
	}
	for i, s := range steps {
		if _, emitted := d.Push(int64(i), s.value, s.derivative); emitted {
			t.Fatalf("pulse with peak 10 should have been filtered out by [100,200]")
		}
	}
}
