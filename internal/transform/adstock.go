// Package transform implements the per-channel media transformations used by
// the model search: adstock decay (geometric or Weibull-shaped) followed by
// Hill saturation. All functions are pure and allocate their output; inputs
// are never mutated.
package transform

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// AdstockType selects the decay family applied to every channel in a run.
// Exactly one family is active per run; geometric uses a single theta per
// channel, the Weibull variants use a shape/scale pair.
type AdstockType string

const (
	AdstockGeometric  AdstockType = "geometric"
	AdstockWeibullCDF AdstockType = "weibull_cdf"
	AdstockWeibullPDF AdstockType = "weibull_pdf"
)

// ErrUnsupportedAdstock is returned for a decay family outside the three
// supported variants.
var ErrUnsupportedAdstock = errors.New("unsupported adstock type")

// Valid reports whether t names a supported decay family.
func (t AdstockType) Valid() bool {
	switch t {
	case AdstockGeometric, AdstockWeibullCDF, AdstockWeibullPDF:
		return true
	}
	return false
}

// IsWeibull reports whether t is one of the Weibull-shaped variants.
func (t AdstockType) IsWeibull() bool {
	return t == AdstockWeibullCDF || t == AdstockWeibullPDF
}

// Geometric applies infinite-recursion geometric decay:
//
//	out[t] = x[t] + theta*out[t-1]
//
// implemented as a left-to-right scan. theta must be in [0,1); theta == 0
// reduces to the identity.
func Geometric(x []float64, theta float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = x[i] + theta*out[i-1]
	}
	return out
}

// WeibullKernel computes the normalized lag-weight kernel for Weibull-shaped
// decay over lags 1..n. The PDF variant weights each lag by the Weibull
// density; the CDF variant weights by the survival function 1-F(t), giving a
// flatter, longer tail. Weights are normalized to sum to 1 so the convolution
// conserves total input mass.
func WeibullKernel(n int, shape, scale float64, variant AdstockType) ([]float64, error) {
	if !variant.IsWeibull() {
		return nil, fmt.Errorf("%w: %q is not a weibull variant", ErrUnsupportedAdstock, variant)
	}
	if n <= 0 {
		return nil, fmt.Errorf("weibull kernel length must be positive, got %d", n)
	}
	if shape <= 0 || scale <= 0 {
		return nil, fmt.Errorf("weibull kernel requires shape > 0 and scale > 0, got shape=%v scale=%v", shape, scale)
	}

	dist := distuv.Weibull{K: shape, Lambda: scale}
	w := make([]float64, n)
	for t := 1; t <= n; t++ {
		if variant == AdstockWeibullPDF {
			w[t-1] = dist.Prob(float64(t))
		} else {
			w[t-1] = dist.Survival(float64(t))
		}
	}

	total := floats.Sum(w)
	if total <= 0 {
		// Degenerate parameter corner (all density below lag 1); fall back to
		// an immediate-only kernel so the transform stays defined.
		w[0] = 1
		return w, nil
	}
	floats.Scale(1/total, w)
	return w, nil
}

// Weibull convolves x with the reversed, normalized Weibull kernel of length
// len(x), keeping the first len(x) outputs of the full convolution. The
// result is deterministic and depends only on the input values and the
// shape/scale pair.
func Weibull(x []float64, shape, scale float64, variant AdstockType) ([]float64, error) {
	n := len(x)
	if n == 0 {
		return []float64{}, nil
	}
	w, err := WeibullKernel(n, shape, scale, variant)
	if err != nil {
		return nil, err
	}

	// Full convolution of x with the reversed kernel, truncated to n outputs:
	// out[k] = sum_{j=0..k} x[j] * w[n-1-k+j].
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var acc float64
		for j := 0; j <= k; j++ {
			acc += x[j] * w[n-1-k+j]
		}
		out[k] = acc
	}
	return out, nil
}
