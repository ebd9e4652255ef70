package search

import (
	"testing"

	"github.com/brandwave-data/mixmodel/internal/model"
)

func historyResult(records []IterationRecord) TrialResult {
	return TrialResult{Trial: 1, History: records}
}

func TestConvergenceTooFewRecords(t *testing.T) {
	rep := Convergence([]TrialResult{historyResult([]IterationRecord{{Loss: 1}})})
	if rep.NRMSEConverged || rep.RSSDConverged {
		t.Error("tiny populations must not report convergence")
	}
	if len(rep.Messages) == 0 {
		t.Error("expected a diagnostic message")
	}
}

func TestConvergenceSettledMetrics(t *testing.T) {
	// The best-loss quintile has tightly clustered, small metrics on both
	// objectives.
	var records []IterationRecord
	for i := 0; i < 100; i++ {
		records = append(records, IterationRecord{
			Loss:       float64(i),
			NRMSE:      0.10 + float64(i)*0.001,
			DecompRSSD: 0.30 + float64(i)*0.001,
		})
	}
	rep := Convergence([]TrialResult{historyResult(records)})
	if !rep.NRMSEConverged {
		t.Errorf("NRMSE should converge: sd=%v med=%v", rep.NRMSESD, rep.NRMSEMedian)
	}
	if !rep.RSSDConverged {
		t.Errorf("RSSD should converge: sd=%v med=%v", rep.RSSDSD, rep.RSSDMedian)
	}
}

func TestConvergenceHighMedianFails(t *testing.T) {
	// NRMSE medians sit well above the acceptance threshold.
	var records []IterationRecord
	for i := 0; i < 100; i++ {
		records = append(records, IterationRecord{
			Loss:       float64(i),
			NRMSE:      0.5,
			DecompRSSD: 0.30,
		})
	}
	rep := Convergence([]TrialResult{historyResult(records)})
	if rep.NRMSEConverged {
		t.Error("NRMSE median above threshold should not converge")
	}
	if !rep.RSSDConverged {
		t.Errorf("RSSD should converge: sd=%v med=%v", rep.RSSDSD, rep.RSSDMedian)
	}
}

func TestConvergenceFallsBackToResults(t *testing.T) {
	// Without per-iteration history the retained evaluations themselves form
	// the population.
	var results []TrialResult
	for i := 0; i < 20; i++ {
		results = append(results, TrialResult{
			Trial: 1,
			Eval:  &model.Evaluation{Loss: float64(i), NRMSE: 0.1, DecompRSSD: 0.2},
		})
	}
	rep := Convergence(results)
	if !rep.NRMSEConverged || !rep.RSSDConverged {
		t.Errorf("constant metrics should converge: %+v", rep)
	}
}
