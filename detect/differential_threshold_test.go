package detect

import "testing"

func TestDifferentialThresholdBasic(t *testing.T) {
	// values rise then fall; deltas derived manually.
	values := []float64{0, 1, 5, 9, 6, 2, 0}
	deltas := []float64{0, 1, 4, 4, -3, -4, -2}
	d := NewDifferentialThreshold(2, 1, 0, nil)

	var got []Event
	for i := range values {
		if ev, ok := d.Push(int64(i), values[i], deltas[i]); ok {
			got = append(got, ev)
		}
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %v", len(got), got)
	}
	// entered hold at index 2 (delta=4>2), peak value tracked while delta>maxDelta
	if got[0].Time != 2 {
		t.Errorf("event time = %d, want 2", got[0].Time)
	}
}

func TestDifferentialThresholdConstantMultiple(t *testing.T) {
	mult := 2.0
	d := NewDifferentialThreshold(1, 1, 0, &mult)
	values := []float64{0, 10}
	deltas := []float64{0, 5}
	var gotIntensity float64
	for i := range values {
		if ev, ok := d.Push(int64(i), values[i], deltas[i]); ok {
			gotIntensity = ev.Intensity
		}
	}
	if ev, ok := d.Push(2, 1, -1); ok {
		gotIntensity = ev.Intensity
	}
	if gotIntensity != 10 { // maxDelta(5) * mult(2)
		t.Errorf("intensity = %v, want 10", gotIntensity)
	}
}

func TestDifferentialThresholdOneEventPerCycle(t *testing.T) {
	d := NewDifferentialThreshold(1, 1, 0, nil)
	values := []float64{0, 10, 11, 1}
	deltas := []float64{0, 5, 0.5, -5}
	count := 0
	for i := range values {
		if _, ok := d.Push(int64(i), values[i], deltas[i]); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d events across one armed-to-cool cycle, want 1", count)
	}
}
