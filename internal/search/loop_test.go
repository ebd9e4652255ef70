package search

import (
	"errors"
	"regexp"
	"testing"

	"github.com/brandwave-data/mixmodel/internal/dataset"
	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/transform"
)

func searchFixture(t *testing.T) (*model.Evaluator, *model.Collected) {
	t.Helper()
	n := 30
	tv := make([]float64, n)
	radio := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		tv[i] = float64((i*11)%19) * 8
		radio[i] = float64((i*3)%13) * 5
		y[i] = 150 + 2*tv[i] + radio[i] + float64(i)*0.5
	}
	table, err := dataset.NewTable(
		[]string{"revenue", "tv", "radio"},
		[][]float64{y, tv, radio},
	)
	if err != nil {
		t.Fatal(err)
	}
	schema := dataset.Schema{
		DepVar:     "revenue",
		DepVarType: dataset.DepVarRevenue,
		PaidMedia:  []string{"tv", "radio"},
		Window:     dataset.Window{Start: 0, End: n - 1},
	}
	space := model.DefaultSpace(schema.PaidMedia, transform.AdstockGeometric)
	eval, err := model.NewEvaluator(table, schema, space, model.Config{Intercept: true})
	if err != nil {
		t.Fatal(err)
	}
	collected, err := space.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	return eval, collected
}

func fixedFixture(t *testing.T) (*model.Evaluator, *model.Collected) {
	t.Helper()
	eval, _ := searchFixture(t)
	space := &model.Space{
		Adstock: transform.AdstockGeometric,
		Channels: map[string]model.ChannelHyperparameters{
			"tv":    {Thetas: model.Param{0.1}, Alphas: model.Param{1}, Gammas: model.Param{0.5}},
			"radio": {Thetas: model.Param{0.2}, Alphas: model.Param{1.5}, Gammas: model.Param{0.6}},
		},
		Lambda: model.Param{0.1},
	}
	collected, err := space.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	return eval, collected
}

func TestRunRejectsFixedSpace(t *testing.T) {
	eval, collected := fixedFixture(t)
	_, err := Run(eval, collected, Config{Trials: 1, Iterations: 10})
	if !errors.Is(err, ErrNoHyperparameters) {
		t.Fatalf("got %v, want ErrNoHyperparameters", err)
	}
}

func TestRunFixedSingleEvaluation(t *testing.T) {
	eval, collected := fixedFixture(t)
	r, err := RunFixed(eval, collected)
	if err != nil {
		t.Fatal(err)
	}
	if r.SolID != "1_1_1" {
		t.Errorf("solID: got %q, want 1_1_1", r.SolID)
	}
	if r.Eval == nil || r.Eval.FitFailed {
		t.Fatal("expected a successful evaluation")
	}
	if len(r.Params) != 7 {
		t.Errorf("params: got %d, want 7", len(r.Params))
	}
}

func TestRunFixedRejectsSearchableSpace(t *testing.T) {
	eval, collected := searchFixture(t)
	if _, err := RunFixed(eval, collected); err == nil {
		t.Error("expected error for searchable space")
	}
}

func TestRunBestPerTrial(t *testing.T) {
	eval, collected := searchFixture(t)
	results, err := Run(eval, collected, Config{Trials: 2, Iterations: 40, Cores: 2, Seed: 42})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want one best per trial", len(results))
	}
	solID := regexp.MustCompile(`^\d+_\d+_1$`)
	seen := map[int]bool{}
	for _, r := range results {
		if !solID.MatchString(r.SolID) {
			t.Errorf("solID %q does not match trial_iteration_1", r.SolID)
		}
		if r.Eval == nil {
			t.Fatal("missing evaluation")
		}
		seen[r.Trial] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("expected results from trials 1 and 2, got %v", seen)
	}
}

func TestRunRetainAll(t *testing.T) {
	eval, collected := searchFixture(t)
	results, err := Run(eval, collected, Config{Trials: 2, Iterations: 15, Seed: 7, RetainAll: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 30 {
		t.Fatalf("results: got %d, want 30", len(results))
	}
}

func TestRunRetainAllKeepsHistoryOnBest(t *testing.T) {
	eval, collected := searchFixture(t)
	results, err := Run(eval, collected, Config{
		Trials: 2, Iterations: 15, Seed: 7, RetainAll: true, RecordHistory: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	carriers := map[int]TrialResult{}
	for _, r := range results {
		if r.History == nil {
			continue
		}
		if _, dup := carriers[r.Trial]; dup {
			t.Fatalf("trial %d has more than one result carrying history", r.Trial)
		}
		if len(r.History) != 15 {
			t.Errorf("trial %d history length: got %d, want 15", r.Trial, len(r.History))
		}
		carriers[r.Trial] = r
	}
	for trial := 1; trial <= 2; trial++ {
		carrier, ok := carriers[trial]
		if !ok {
			t.Fatalf("trial %d retained no history", trial)
		}
		for _, r := range results {
			if r.Trial == trial && r.Eval.Loss < carrier.Eval.Loss {
				t.Errorf("trial %d: history on %s (loss %v) but %s has lower loss %v",
					trial, carrier.SolID, carrier.Eval.Loss, r.SolID, r.Eval.Loss)
			}
		}
	}
}

func TestRunDeterministicAcrossCores(t *testing.T) {
	eval, collected := searchFixture(t)
	run := func(cores int) []TrialResult {
		results, err := Run(eval.Clone(), collected, Config{Trials: 3, Iterations: 25, Cores: cores, Seed: 99})
		if err != nil {
			t.Fatal(err)
		}
		return results
	}
	serial := run(1)
	parallel := run(3)
	if len(serial) != len(parallel) {
		t.Fatalf("result counts differ: %d vs %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].SolID != parallel[i].SolID || serial[i].Eval.Loss != parallel[i].Eval.Loss {
			t.Errorf("trial %d diverged: %s/%v vs %s/%v", i+1,
				serial[i].SolID, serial[i].Eval.Loss, parallel[i].SolID, parallel[i].Eval.Loss)
		}
	}
}

func TestRunConfigValidation(t *testing.T) {
	eval, collected := searchFixture(t)
	if _, err := Run(eval, collected, Config{Trials: 0, Iterations: 10}); err == nil {
		t.Error("zero trials should fail")
	}
	if _, err := Run(eval, collected, Config{Trials: 1, Iterations: 0}); err == nil {
		t.Error("zero iterations should fail")
	}
}
