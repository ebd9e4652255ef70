package search

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Convergence thresholds: the search is considered converged on a metric
// when, within the best 20% of iterations by loss, the standard deviation
// and absolute median fall below these bounds.
const (
	nrmseSDThreshold   = 0.055
	nrmseMedThreshold  = 0.15
	rssdSDThreshold    = 0.067
	rssdMedThreshold   = 0.59
	convergenceCutoff  = 0.20
	convergenceMinSize = 10
)

// ConvergenceReport summarizes whether the iteration population has settled
// on the two primary error metrics.
type ConvergenceReport struct {
	NRMSEConverged bool
	RSSDConverged  bool
	NRMSESD        float64
	NRMSEMedian    float64
	RSSDSD         float64
	RSSDMedian     float64
	Messages       []string
}

// Convergence builds the report from retained results. It prefers the
// per-iteration history recorded on trial bests; with RetainAll the results
// themselves are the iteration population.
func Convergence(results []TrialResult) *ConvergenceReport {
	var records []IterationRecord
	for _, r := range results {
		if len(r.History) > 0 {
			records = append(records, r.History...)
		}
	}
	if len(records) == 0 {
		for _, r := range results {
			records = append(records, IterationRecord{
				Loss:       r.Eval.Loss,
				NRMSE:      r.Eval.NRMSE,
				DecompRSSD: r.Eval.DecompRSSD,
			})
		}
	}

	rep := &ConvergenceReport{}
	if len(records) < convergenceMinSize {
		rep.Messages = append(rep.Messages, fmt.Sprintf("too few iterations (%d) to assess convergence", len(records)))
		return rep
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Loss < records[j].Loss })
	cut := int(float64(len(records)) * convergenceCutoff)
	if cut < 2 {
		cut = 2
	}
	nrmse := make([]float64, cut)
	rssd := make([]float64, cut)
	for i := 0; i < cut; i++ {
		nrmse[i] = records[i].NRMSE
		rssd[i] = records[i].DecompRSSD
	}

	rep.NRMSESD = math.Sqrt(stat.Variance(nrmse, nil))
	rep.RSSDSD = math.Sqrt(stat.Variance(rssd, nil))
	rep.NRMSEMedian = medianOf(nrmse)
	rep.RSSDMedian = medianOf(rssd)

	rep.NRMSEConverged = rep.NRMSESD <= nrmseSDThreshold && math.Abs(rep.NRMSEMedian) <= nrmseMedThreshold
	rep.RSSDConverged = rep.RSSDSD <= rssdSDThreshold && math.Abs(rep.RSSDMedian) <= rssdMedThreshold

	switch {
	case rep.NRMSEConverged && rep.RSSDConverged:
		rep.Messages = append(rep.Messages, "NRMSE & DECOMP.RSSD converged")
	case rep.NRMSEConverged:
		rep.Messages = append(rep.Messages,
			fmt.Sprintf("NRMSE converged: sd@qt.20 %.3f <= %.3f & |med@qt.20| %.2f <= %.2f", rep.NRMSESD, nrmseSDThreshold, math.Abs(rep.NRMSEMedian), nrmseMedThreshold),
			fmt.Sprintf("DECOMP.RSSD NOT converged: sd@qt.20 %.3f > %.3f | |med@qt.20| %.2f > %.2f", rep.RSSDSD, rssdSDThreshold, math.Abs(rep.RSSDMedian), rssdMedThreshold))
	case rep.RSSDConverged:
		rep.Messages = append(rep.Messages,
			fmt.Sprintf("DECOMP.RSSD converged: sd@qt.20 %.3f <= %.3f & |med@qt.20| %.2f <= %.2f", rep.RSSDSD, rssdSDThreshold, math.Abs(rep.RSSDMedian), rssdMedThreshold),
			fmt.Sprintf("NRMSE NOT converged: sd@qt.20 %.3f > %.3f | |med@qt.20| %.2f > %.2f", rep.NRMSESD, nrmseSDThreshold, math.Abs(rep.NRMSEMedian), nrmseMedThreshold))
	default:
		rep.Messages = append(rep.Messages,
			"model has not converged",
			fmt.Sprintf("NRMSE: sd@qt.20 %.3f, |med@qt.20| %.2f", rep.NRMSESD, math.Abs(rep.NRMSEMedian)),
			fmt.Sprintf("DECOMP.RSSD: sd@qt.20 %.3f, |med@qt.20| %.2f", rep.RSSDSD, math.Abs(rep.RSSDMedian)))
	}
	return rep
}

func medianOf(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
