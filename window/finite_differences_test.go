package window

import "testing"

func TestFiniteDifferencesWarmup(t *testing.T) {
	fd := NewFiniteDifferences(3)
	for i, x := range []float64{1, 2} {
		if fd.Push(int64(i), x) {
			t.Fatalf("Push(%d) reported ready before warm-up completed", i)
		}
	}
	if !fd.Push(2, 4) {
		t.Fatalf("Push did not report ready after order samples pushed")
	}
}

func TestFiniteDifferencesZerothOrderIsIdentity(t *testing.T) {
	fd := NewFiniteDifferences(1)
	fd.Push(0, 42)
	_, out := fd.Output()
	if len(out) != 1 || out[0] != 42 {
		t.Errorf("order-1 output = %v, want [42]", out)
	}
}

func TestFiniteDifferencesFirstOrder(t *testing.T) {
	// order-2 window over a rising series: the 0th element is the latest value
	// and the 1st element is the latest step (22-17).
	fd := NewFiniteDifferences(2)
	xs := []float64{10, 13, 17, 22}
	var lastOut []float64
	for i, x := range xs {
		if fd.Push(int64(i), x) {
			_, lastOut = fd.Output()
		}
	}
	if lastOut[0] != 22 {
		t.Errorf("0th difference = %v, want 22 (the latest raw value)", lastOut[0])
	}
	if got, want := lastOut[1], 22.0-17.0; got != want {
		t.Errorf("1st difference = %v, want %v", got, want)
	}
}
