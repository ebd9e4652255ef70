package transform

import (
	"math"
	"testing"
)

func TestHillAllZeroInput(t *testing.T) {
	out := Hill(make([]float64, 10), 2, 0.5)
	for i, v := range out {
		if v != 0 {
			t.Errorf("index %d: got %v, want 0", i, v)
		}
	}
}

func TestHillKnownValue(t *testing.T) {
	// alpha=1, gamma=0.5, max=100: half-saturation at 50.
	x := []float64{50, 100, 0}
	out := Hill(x, 1, 0.5)
	if math.Abs(out[0]-0.5) > 1e-12 {
		t.Errorf("at half-saturation: got %v, want 0.5", out[0])
	}
	if out[2] != 0 {
		t.Errorf("zero spend: got %v, want 0", out[2])
	}
}

func TestHillRange(t *testing.T) {
	x := []float64{0, 1, 10, 55, 200, 1000}
	out := Hill(x, 2.3, 0.7)
	for i, v := range out {
		if v < 0 || v >= 1 {
			t.Errorf("index %d: %v outside [0, 1)", i, v)
		}
	}
	// Monotone in x.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("saturation not monotone at index %d: %v < %v", i, out[i], out[i-1])
		}
	}
}

func TestHillAt(t *testing.T) {
	if got := HillAt(50, 1, 50); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("got %v, want 0.5", got)
	}
	if got := HillAt(0, 2, 10); got != 0 {
		t.Errorf("zero point: got %v, want 0", got)
	}
	if got := HillAt(10, 2, 0); got != 0 {
		t.Errorf("zero inflexion: got %v, want 0", got)
	}
}
