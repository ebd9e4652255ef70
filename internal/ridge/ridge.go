// Package ridge fits L2-regularized linear models on dense design matrices
// and computes the fit metrics used to score search candidates.
package ridge

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Options controls a single ridge fit.
type Options struct {
	// Lambda is the L2 penalty applied to every coefficient (never to the
	// intercept).
	Lambda float64
	// Intercept includes an unpenalized intercept term.
	Intercept bool
	// NonNegativeIntercept clamps a negative fitted intercept to zero and
	// refits the slopes without centering. The returned Fit records the
	// violation so implausible results are visible to the caller.
	NonNegativeIntercept bool
	// PenaltyFactors optionally scales the penalty per coefficient. A nil
	// slice means a factor of 1 for every column; otherwise the length must
	// match the column count.
	PenaltyFactors []float64
}

// Fit is the result of solving the ridge system.
type Fit struct {
	Intercept         float64
	Coef              []float64
	InterceptViolated bool
}

// ErrSingular is returned when the penalized normal equations cannot be
// solved even through the least-squares fallback.
var ErrSingular = errors.New("ridge: design matrix is numerically singular")

// Solve fits y ~ X via penalized normal equations:
//
//	(Xc'Xc + lambda*F) b = Xc'y
//
// where Xc is the (optionally centered) design matrix and F the diagonal of
// penalty factors. A Cholesky solve is attempted first; if the penalized
// Gram matrix is not positive definite the augmented least-squares system
// [X; sqrt(lambda*F)] is solved by QR instead.
func Solve(x *mat.Dense, y []float64, opts Options) (*Fit, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("ridge: %d rows in X but %d observations", rows, len(y))
	}
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("ridge: empty design matrix (%dx%d)", rows, cols)
	}
	if opts.Lambda < 0 {
		return nil, fmt.Errorf("ridge: negative lambda %v", opts.Lambda)
	}
	factors, err := resolveFactors(opts.PenaltyFactors, cols)
	if err != nil {
		return nil, err
	}

	if !opts.Intercept {
		coef, err := solveCentered(x, y, nil, nil, opts.Lambda, factors)
		if err != nil {
			return nil, err
		}
		return &Fit{Coef: coef}, nil
	}

	colMeans := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			s += x.At(i, j)
		}
		colMeans[j] = s / float64(rows)
	}
	var ySum float64
	for _, v := range y {
		ySum += v
	}
	yMean := ySum / float64(rows)

	coef, err := solveCentered(x, y, colMeans, &yMean, opts.Lambda, factors)
	if err != nil {
		return nil, err
	}

	intercept := yMean
	for j := 0; j < cols; j++ {
		intercept -= colMeans[j] * coef[j]
	}

	if opts.NonNegativeIntercept && intercept < 0 {
		// Constrained refit: drop the intercept entirely rather than let a
		// negative baseline leak into the decomposition.
		coef, err = solveCentered(x, y, nil, nil, opts.Lambda, factors)
		if err != nil {
			return nil, err
		}
		return &Fit{Intercept: 0, Coef: coef, InterceptViolated: true}, nil
	}

	return &Fit{Intercept: intercept, Coef: coef}, nil
}

// Predict evaluates the fitted model on a design matrix.
func (f *Fit) Predict(x *mat.Dense) []float64 {
	rows, cols := x.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := f.Intercept
		for j := 0; j < cols && j < len(f.Coef); j++ {
			v += x.At(i, j) * f.Coef[j]
		}
		out[i] = v
	}
	return out
}

func resolveFactors(factors []float64, cols int) ([]float64, error) {
	if factors == nil {
		out := make([]float64, cols)
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	if len(factors) != cols {
		return nil, fmt.Errorf("ridge: %d penalty factors for %d columns", len(factors), cols)
	}
	for i, f := range factors {
		if f < 0 || math.IsNaN(f) {
			return nil, fmt.Errorf("ridge: invalid penalty factor %v at column %d", f, i)
		}
	}
	return factors, nil
}

// solveCentered solves the penalized system on (optionally) centered data.
// colMeans/yMean nil means no centering.
func solveCentered(x *mat.Dense, y []float64, colMeans []float64, yMean *float64, lambda float64, factors []float64) ([]float64, error) {
	rows, cols := x.Dims()

	at := func(i, j int) float64 {
		v := x.At(i, j)
		if colMeans != nil {
			v -= colMeans[j]
		}
		return v
	}
	yAt := func(i int) float64 {
		v := y[i]
		if yMean != nil {
			v -= *yMean
		}
		return v
	}

	// Gram matrix X'X + lambda*F and moment vector X'y.
	gram := mat.NewSymDense(cols, nil)
	for j := 0; j < cols; j++ {
		for k := j; k < cols; k++ {
			var s float64
			for i := 0; i < rows; i++ {
				s += at(i, j) * at(i, k)
			}
			if j == k {
				s += lambda * factors[j]
			}
			gram.SetSym(j, k, s)
		}
	}
	moment := mat.NewVecDense(cols, nil)
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			s += at(i, j) * yAt(i)
		}
		moment.SetVec(j, s)
	}

	var chol mat.Cholesky
	if chol.Factorize(gram) {
		var b mat.VecDense
		if err := chol.SolveVecTo(&b, moment); err == nil {
			return vecSlice(&b), nil
		}
	}

	// Fallback: augmented least squares [Xc; sqrt(lambda*F)] b = [yc; 0].
	aug := mat.NewDense(rows+cols, cols, nil)
	rhs := mat.NewVecDense(rows+cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			aug.Set(i, j, at(i, j))
		}
		rhs.SetVec(i, yAt(i))
	}
	for j := 0; j < cols; j++ {
		aug.Set(rows+j, j, math.Sqrt(lambda*factors[j]))
	}

	var b mat.VecDense
	if err := b.SolveVec(aug, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return vecSlice(&b), nil
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
