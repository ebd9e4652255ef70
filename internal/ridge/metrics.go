package ridge

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RMSE computes the root-mean-squared error between observed and predicted
// values. Slices must have equal length.
func RMSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var ss float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(yTrue)))
}

// NRMSE normalizes the RMSE by the supplied range denominator (the training
// target's max-min). A non-positive denominator yields the raw RMSE so the
// metric stays finite and rank-consistent on degenerate targets.
func NRMSE(yTrue, yPred []float64, rangeDenom float64) float64 {
	rmse := RMSE(yTrue, yPred)
	if rangeDenom <= 0 {
		return rmse
	}
	return rmse / rangeDenom
}

// R2 computes the coefficient of determination 1 - SSres/SStot. A constant
// target (zero total variance) yields 0.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// Range returns max(x)-min(x), or 0 for an empty slice.
func Range(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// LambdaMax derives the upper end of the regularization path from the design
// matrix and target, following the glmnet-style heuristic
// max|X'y| / (0.001 * n). The candidate's normalized lambda hyperparameter in
// [0,1] is scaled against this value.
func LambdaMax(x *mat.Dense, y []float64) float64 {
	rows, cols := x.Dims()
	if rows == 0 || len(y) == 0 {
		return 0
	}
	maxAbs := 0.0
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			s += x.At(i, j) * y[i]
		}
		if a := math.Abs(s); a > maxAbs {
			maxAbs = a
		}
	}
	return maxAbs / (0.001 * float64(rows))
}

// LambdaMinRatio is the lower bound of the regularization path relative to
// LambdaMax, matching the glmnet default.
const LambdaMinRatio = 0.0001
