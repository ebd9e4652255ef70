// Package search drives the black-box hyperparameter search: independent
// trials asking a pluggable optimizer for candidate vectors, scoring them
// through the evaluator, and retaining the best result per trial.
package search

import (
	"math/rand"
)

// Optimizer is the ask/tell contract for a sequential black-box optimizer
// over the unit cube. Ask proposes a vector; Tell reports its loss so the
// internal search distribution adapts. Any algorithm satisfying this
// contract is substitutable.
type Optimizer interface {
	Ask() []float64
	Tell(x []float64, loss float64)
}

// OptimizerFactory constructs an optimizer for a given dimensionality using
// the trial's private random source.
type OptimizerFactory func(dim int, rng *rand.Rand) Optimizer

// diffEvolution is the default optimizer: a rand/1/bin differential
// evolution over the unit cube with a loss-replacing selection step. It is
// strictly sequential: each Tell must follow its Ask.
type diffEvolution struct {
	rng *rand.Rand
	dim int

	pop    [][]float64
	losses []float64
	seeded int // members of the initial population already scored

	target  int // population index the pending proposal competes against
	pending []float64
}

// NewDifferentialEvolution returns the default ask/tell optimizer. The
// population is sized 4 + 3*dim, capped at 40.
func NewDifferentialEvolution(dim int, rng *rand.Rand) Optimizer {
	size := 4 + 3*dim
	if size > 40 {
		size = 40
	}
	de := &diffEvolution{
		rng:    rng,
		dim:    dim,
		pop:    make([][]float64, size),
		losses: make([]float64, size),
	}
	for i := range de.pop {
		v := make([]float64, dim)
		for j := range v {
			v[j] = rng.Float64()
		}
		de.pop[i] = v
	}
	return de
}

const (
	deWeight    = 0.8 // differential weight F
	deCrossover = 0.9 // crossover probability CR
)

func (de *diffEvolution) Ask() []float64 {
	if de.seeded < len(de.pop) {
		de.target = de.seeded
		de.pending = clone(de.pop[de.seeded])
		return clone(de.pending)
	}

	i := de.rng.Intn(len(de.pop))
	a, b, c := de.pick3(i)
	mutant := make([]float64, de.dim)
	forced := de.rng.Intn(de.dim)
	for j := 0; j < de.dim; j++ {
		if j == forced || de.rng.Float64() < deCrossover {
			mutant[j] = clamp01(de.pop[a][j] + deWeight*(de.pop[b][j]-de.pop[c][j]))
		} else {
			mutant[j] = de.pop[i][j]
		}
	}
	de.target = i
	de.pending = mutant
	return clone(mutant)
}

func (de *diffEvolution) Tell(x []float64, loss float64) {
	if de.seeded < len(de.pop) {
		de.losses[de.seeded] = loss
		de.seeded++
		return
	}
	if loss < de.losses[de.target] {
		de.pop[de.target] = clone(x)
		de.losses[de.target] = loss
	}
}

// pick3 draws three distinct population indices, all different from i.
func (de *diffEvolution) pick3(i int) (a, b, c int) {
	n := len(de.pop)
	for {
		a = de.rng.Intn(n)
		if a != i {
			break
		}
	}
	for {
		b = de.rng.Intn(n)
		if b != i && b != a {
			break
		}
	}
	for {
		c = de.rng.Intn(n)
		if c != i && c != a && c != b {
			break
		}
	}
	return a, b, c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
