package transform

import "math"

// Hill applies the saturating Hill transform
//
//	out[t] = x[t]^alpha / (x[t]^alpha + (gamma*max(x))^alpha)
//
// where gamma is expressed as a fraction of the channel's historical maximum.
// Output values lie in [0,1) for non-negative finite input with alpha > 0 and
// gamma in (0,1). An all-zero series maps to an all-zero series.
func Hill(x []float64, alpha, gamma float64) []float64 {
	out := make([]float64, len(x))
	gammaAbs := gamma * maxOf(x)
	if gammaAbs <= 0 {
		// max(x) == 0: no spend ever observed, saturation defined as zero.
		return out
	}
	denomBase := math.Pow(gammaAbs, alpha)
	for i, v := range x {
		if v <= 0 {
			continue
		}
		p := math.Pow(v, alpha)
		out[i] = p / (p + denomBase)
	}
	return out
}

// HillAt evaluates the Hill response at a single operating point x with an
// absolute half-saturation point gammaAbs. Used by the response-curve
// projector where the inflexion has already been resolved against the
// adstocked series maximum.
func HillAt(x, alpha, gammaAbs float64) float64 {
	if x <= 0 || gammaAbs <= 0 {
		return 0
	}
	p := math.Pow(x, alpha)
	return p / (p + math.Pow(gammaAbs, alpha))
}

func maxOf(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}
