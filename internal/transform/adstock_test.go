package transform

import (
	"math"
	"testing"
)

func TestGeometricZeroThetaIsIdentity(t *testing.T) {
	x := []float64{100, 50, 10, 0, 25}
	out := Geometric(x, 0)
	for i := range x {
		if out[i] != x[i] {
			t.Errorf("index %d: got %v, want %v", i, out[i], x[i])
		}
	}
}

func TestGeometricKnownValues(t *testing.T) {
	// out[t] = x[t] + 0.5*out[t-1]
	x := []float64{100, 50, 10}
	want := []float64{100, 100, 60}
	out := Geometric(x, 0.5)
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("index %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestGeometricNeverBelowInput(t *testing.T) {
	x := []float64{3, 0, 7, 2, 0, 0, 5}
	out := Geometric(x, 0.8)
	for i := range x {
		if out[i] < x[i] {
			t.Errorf("index %d: decayed %v below raw %v", i, out[i], x[i])
		}
	}
}

func TestGeometricEmpty(t *testing.T) {
	if out := Geometric(nil, 0.5); len(out) != 0 {
		t.Errorf("expected empty output, got %v", out)
	}
}

func TestWeibullKernelSumsToOne(t *testing.T) {
	for _, variant := range []AdstockType{AdstockWeibullPDF, AdstockWeibullCDF} {
		w, err := WeibullKernel(52, 1.5, 10, variant)
		if err != nil {
			t.Fatalf("%s: %v", variant, err)
		}
		if len(w) != 52 {
			t.Fatalf("%s: kernel length %d, want 52", variant, len(w))
		}
		var sum float64
		for _, v := range w {
			if v < 0 {
				t.Errorf("%s: negative weight %v", variant, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("%s: kernel sums to %v, want 1", variant, sum)
		}
	}
}

func TestWeibullKernelRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name         string
		n            int
		shape, scale float64
		variant      AdstockType
	}{
		{"geometric variant", 10, 1, 1, AdstockGeometric},
		{"zero length", 0, 1, 1, AdstockWeibullPDF},
		{"zero shape", 10, 0, 1, AdstockWeibullPDF},
		{"zero scale", 10, 1, 0, AdstockWeibullCDF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := WeibullKernel(tc.n, tc.shape, tc.scale, tc.variant); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestWeibullZeroInputStaysZero(t *testing.T) {
	x := make([]float64, 20)
	out, err := Weibull(x, 1.5, 5, AdstockWeibullPDF)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("index %d: got %v, want 0", i, v)
		}
	}
}

func TestWeibullDeterministic(t *testing.T) {
	x := []float64{10, 0, 0, 5, 20, 0, 1, 8}
	a, err := Weibull(x, 0.9, 3, AdstockWeibullCDF)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Weibull(x, 0.9, 3, AdstockWeibullCDF)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestAdstockTypeValid(t *testing.T) {
	for _, v := range []AdstockType{AdstockGeometric, AdstockWeibullCDF, AdstockWeibullPDF} {
		if !v.Valid() {
			t.Errorf("%s should be valid", v)
		}
	}
	if AdstockType("exponential").Valid() {
		t.Error("unknown family should be invalid")
	}
	if AdstockGeometric.IsWeibull() {
		t.Error("geometric is not a weibull variant")
	}
	if !AdstockWeibullPDF.IsWeibull() || !AdstockWeibullCDF.IsWeibull() {
		t.Error("weibull variants misclassified")
	}
}
