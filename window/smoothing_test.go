package window

import "testing"

func TestMovingAverage(t *testing.T) {
	ma := NewMovingAverage(3)
	vals := []float64{1, 2, 3, 4, 5}
	var got float64
	for i, v := range vals {
		if ma.Push(int64(i), v) {
			_, got = ma.Output()
		}
	}
	// last window is {3,4,5} -> mean 4
	if got != 4 {
		t.Errorf("MovingAverage final output = %v, want 4", got)
	}
}

func TestBaselineNeverStalls(t *testing.T) {
	b := NewBaseline(4)
	_, y := b.Push(0, 10)
	if y != 10 {
		t.Errorf("Baseline during warm-up = %v, want raw passthrough 10", y)
	}
}

func TestBaselineSubtractsMean(t *testing.T) {
	b := NewBaseline(2)
	b.Push(0, 10)
	_, y := b.Push(1, 20)
	if got, want := y, 20.0-15.0; got != want {
		t.Errorf("Baseline output = %v, want %v", got, want)
	}
}
