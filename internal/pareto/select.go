// Package pareto ranks retained search candidates by multi-objective
// dominance over (NRMSE, DECOMP.RSSD), filters them through quantile
// admissibility gates, and scores the survivors for downstream selection.
package pareto

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/monitoring"
	"github.com/brandwave-data/mixmodel/internal/search"
)

// ErrInsufficientCandidates is raised when even exhausting every front
// cannot reach the requested minimum candidate count.
var ErrInsufficientCandidates = errors.New("pareto: not enough admissible candidates for the requested minimum")

// Candidate is one search result carried into selection.
type Candidate struct {
	SolID      string
	Trial      int
	Iteration  int
	NRMSE      float64
	DecompRSSD float64
	MAPE       float64
	Params     map[string]float64
	Decomp     []model.DecompRow

	Admissible bool
	// Front is the 1-based non-dominated front index; 0 means the candidate
	// was filtered out or sits beyond the selected fronts.
	Front int
	// ErrorScore is the min-max normalized combined error over the selected
	// candidates. Lower is better.
	ErrorScore float64
}

// Options controls selection.
type Options struct {
	// Fronts is the number of Pareto fronts to keep; 0 selects automatically
	// until MinCandidates is reached.
	Fronts int
	// MinCandidates is the population floor for automatic front selection.
	// Defaults to 100.
	MinCandidates int
	// CalibrationConstraint is the MAPE quantile gate for calibrated runs.
	// Defaults to 0.1, clamped to [0.01, 0.1].
	CalibrationConstraint float64
	// Calibrated enables the MAPE admissibility gate.
	Calibrated bool
	// HyperFixed marks a degenerate fixed-space run: every candidate lands on
	// front 1 and no admissibility filtering applies.
	HyperFixed bool
}

// Result is the selection outcome: all candidates annotated in place, plus
// the subset that made the selected fronts, sorted by error score.
type Result struct {
	Candidates []Candidate
	Selected   []Candidate
	Fronts     int
}

const admissibilityQuantile = 0.90

// FromTrialResults adapts retained search output into selection candidates.
// Failed fits are dropped: their penalty metrics would poison the quantile
// gates.
func FromTrialResults(results []search.TrialResult) []Candidate {
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		if r.Eval == nil || r.Eval.FitFailed {
			continue
		}
		out = append(out, Candidate{
			SolID:      r.SolID,
			Trial:      r.Trial,
			Iteration:  r.Iteration,
			NRMSE:      r.Eval.NRMSE,
			DecompRSSD: r.Eval.DecompRSSD,
			MAPE:       r.Eval.MAPE,
			Params:     r.Params,
			Decomp:     r.Eval.Decomp,
		})
	}
	return out
}

// Select annotates the population with admissibility, front membership and
// error scores, and returns the candidates on the selected fronts.
func Select(pop []Candidate, opts Options) (*Result, error) {
	if len(pop) == 0 {
		return nil, errors.New("pareto: empty candidate population")
	}
	minCandidates := opts.MinCandidates
	if minCandidates <= 0 {
		minCandidates = 100
	}

	cands := append([]Candidate(nil), pop...)

	if opts.HyperFixed {
		for i := range cands {
			cands[i].Admissible = true
			cands[i].Front = 1
		}
		selected := scoreSelected(cands, allIndices(cands))
		return &Result{Candidates: cands, Selected: selected, Fronts: 1}, nil
	}

	markAdmissible(cands, opts)
	admissible := make([]int, 0, len(cands))
	for i := range cands {
		if cands[i].Admissible {
			admissible = append(admissible, i)
		}
	}
	if len(admissible) == 0 {
		return nil, ErrInsufficientCandidates
	}

	fronts := assignFronts(cands, admissible)

	keep := opts.Fronts
	if keep <= 0 {
		keep = autoFrontCount(cands, fronts, minCandidates)
		if keep == 0 {
			// Exhausting every front without reaching the minimum is fatal for
			// an uncalibrated multi-candidate run; calibrated runs and
			// single-candidate populations proceed with whatever exists.
			if !opts.Calibrated && len(pop) > 1 {
				return nil, fmt.Errorf("%w: %d admissible of %d required", ErrInsufficientCandidates, len(admissible), minCandidates)
			}
			keep = fronts
			monitoring.Logf("pareto: only %d admissible candidates across %d fronts, below minimum %d",
				len(admissible), fronts, minCandidates)
		}
	}
	if keep > fronts {
		keep = fronts
	}

	selIdx := make([]int, 0, len(admissible))
	for _, i := range admissible {
		if cands[i].Front >= 1 && cands[i].Front <= keep {
			selIdx = append(selIdx, i)
		} else {
			cands[i].Front = 0
		}
	}
	selected := scoreSelected(cands, selIdx)
	return &Result{Candidates: cands, Selected: selected, Fronts: keep}, nil
}

// markAdmissible gates candidates on the 90th-percentile NRMSE and RSSD, and
// for calibrated runs on the configured MAPE quantile.
func markAdmissible(cands []Candidate, opts Options) {
	nrmse := make([]float64, len(cands))
	rssd := make([]float64, len(cands))
	for i := range cands {
		nrmse[i] = cands[i].NRMSE
		rssd[i] = cands[i].DecompRSSD
	}
	nrmseCut := quantile(nrmse, admissibilityQuantile)
	rssdCut := quantile(rssd, admissibilityQuantile)

	mapeCut := math.Inf(1)
	if opts.Calibrated {
		q := opts.CalibrationConstraint
		if q <= 0 {
			q = 0.1
		}
		if q < 0.01 {
			q = 0.01
		}
		if q > 0.1 {
			q = 0.1
		}
		mape := make([]float64, len(cands))
		for i := range cands {
			mape[i] = cands[i].MAPE
		}
		mapeCut = quantile(mape, q)
	}

	for i := range cands {
		c := &cands[i]
		c.Admissible = c.NRMSE <= nrmseCut && c.DecompRSSD <= rssdCut && c.MAPE <= mapeCut
	}
}

// assignFronts repeatedly extracts the non-dominated set over (NRMSE, RSSD)
// among admissible candidates, numbering fronts from 1. Returns the total
// number of fronts.
func assignFronts(cands []Candidate, admissible []int) int {
	remaining := append([]int(nil), admissible...)
	front := 0
	for len(remaining) > 0 {
		front++
		var frontIdx, rest []int
		for _, i := range remaining {
			dominated := false
			for _, j := range remaining {
				if i != j && dominates(&cands[j], &cands[i]) {
					dominated = true
					break
				}
			}
			if dominated {
				rest = append(rest, i)
			} else {
				frontIdx = append(frontIdx, i)
			}
		}
		for _, i := range frontIdx {
			cands[i].Front = front
		}
		remaining = rest
	}
	return front
}

// dominates reports whether a is at least as good as b on both objectives and
// strictly better on at least one.
func dominates(a, b *Candidate) bool {
	if a.NRMSE > b.NRMSE || a.DecompRSSD > b.DecompRSSD {
		return false
	}
	return a.NRMSE < b.NRMSE || a.DecompRSSD < b.DecompRSSD
}

// autoFrontCount accumulates fronts until the candidate count reaches the
// minimum. Returns 0 when even all fronts fall short.
func autoFrontCount(cands []Candidate, fronts, minCandidates int) int {
	perFront := make([]int, fronts+1)
	for i := range cands {
		if cands[i].Front >= 1 {
			perFront[cands[i].Front]++
		}
	}
	total := 0
	for f := 1; f <= fronts; f++ {
		total += perFront[f]
		if total >= minCandidates {
			return f
		}
	}
	return 0
}

// scoreSelected computes min-max normalized combined error over the selected
// candidates and returns them sorted ascending by score, ties broken by
// solution ID for stable output.
func scoreSelected(cands []Candidate, idx []int) []Candidate {
	if len(idx) == 0 {
		return nil
	}
	nrmseMin, nrmseMax := rangeOf(cands, idx, func(c *Candidate) float64 { return c.NRMSE })
	rssdMin, rssdMax := rangeOf(cands, idx, func(c *Candidate) float64 { return c.DecompRSSD })
	mapeMin, mapeMax := rangeOf(cands, idx, func(c *Candidate) float64 { return c.MAPE })

	for _, i := range idx {
		c := &cands[i]
		s := normalize(c.NRMSE, nrmseMin, nrmseMax) +
			normalize(c.DecompRSSD, rssdMin, rssdMax) +
			normalize(c.MAPE, mapeMin, mapeMax)
		c.ErrorScore = s / 3
	}

	selected := make([]Candidate, 0, len(idx))
	for _, i := range idx {
		selected = append(selected, cands[i])
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].ErrorScore != selected[j].ErrorScore {
			return selected[i].ErrorScore < selected[j].ErrorScore
		}
		return selected[i].SolID < selected[j].SolID
	})
	return selected
}

func normalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (v - min) / (max - min)
}

func rangeOf(cands []Candidate, idx []int, metric func(*Candidate) float64) (min, max float64) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, i := range idx {
		v := metric(&cands[i])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func allIndices(cands []Candidate) []int {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func quantile(vals []float64, q float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	return stat.Quantile(q, stat.Empirical, s, nil)
}
