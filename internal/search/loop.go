package search

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/monitoring"
)

// ErrNoHyperparameters is raised when every hyperparameter is fixed: there
// is nothing to optimize, and the optimizer must not be invoked with zero
// dimensions.
var ErrNoHyperparameters = errors.New("no hyperparameters to optimize: all parameters are fixed")

// Config controls the search loop.
type Config struct {
	// Trials is the number of independent restarts.
	Trials int
	// Iterations is the fixed ask/evaluate/tell budget per trial.
	Iterations int
	// Cores sizes the worker pool dispatching whole trials.
	Cores int
	// Seed is the base random seed; trial t derives seed Seed+t.
	Seed int64
	// RetainAll keeps a result for every iteration instead of only the best
	// per trial, growing the candidate population for Pareto selection.
	RetainAll bool
	// RecordHistory keeps per-iteration loss metrics on each trial for the
	// convergence report.
	RecordHistory bool
	// Optimizer overrides the default differential-evolution factory.
	Optimizer OptimizerFactory
}

// IterationRecord is one iteration's headline metrics, kept for convergence
// diagnostics.
type IterationRecord struct {
	Trial      int
	Iteration  int
	Loss       float64
	NRMSE      float64
	DecompRSSD float64
	MAPE       float64
}

// TrialResult is the retained outcome of one candidate: the hyperparameter
// assignment, its full evaluation, and bookkeeping. With RetainAll off there
// is exactly one per trial (the best seen, first seen winning ties).
type TrialResult struct {
	Trial     int
	Iteration int
	SolID     string
	Params    map[string]float64
	Eval      *model.Evaluation
	Elapsed   time.Duration
	History   []IterationRecord // populated on the trial's best result only
}

// Run executes the configured number of independent trials over the worker
// pool and returns all retained results in trial order. It fails fast,
// before any optimizer is constructed, when the space has no searchable
// dimensions.
func Run(eval *model.Evaluator, collected *model.Collected, cfg Config) ([]TrialResult, error) {
	if collected.AllFixed {
		return nil, ErrNoHyperparameters
	}
	if cfg.Trials < 1 {
		return nil, fmt.Errorf("search: trials must be >= 1, got %d", cfg.Trials)
	}
	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("search: iterations must be >= 1, got %d", cfg.Iterations)
	}
	factory := cfg.Optimizer
	if factory == nil {
		factory = NewDifferentialEvolution
	}

	workers := cfg.Cores
	if workers < 1 {
		workers = 1
	}
	if workers > cfg.Trials {
		workers = cfg.Trials
	}

	monitoring.Logf("starting %d trials x %d iterations over %d dimensions on %d workers",
		cfg.Trials, cfg.Iterations, collected.Dim(), workers)

	perTrial := make([][]TrialResult, cfg.Trials)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trial := range jobs {
				perTrial[trial-1] = runTrial(eval.Clone(), collected, cfg, factory, trial)
			}
		}()
	}
	for trial := 1; trial <= cfg.Trials; trial++ {
		jobs <- trial
	}
	close(jobs)
	wg.Wait()

	var results []TrialResult
	for _, rs := range perTrial {
		results = append(results, rs...)
	}
	return results, nil
}

// RunFixed performs the degenerate single evaluation for a fully fixed
// space: no optimizer, no search, one TrialResult. Callers that want the
// fixed path must opt in explicitly; Run treats a fixed space as an error.
func RunFixed(eval *model.Evaluator, collected *model.Collected) (TrialResult, error) {
	if !collected.AllFixed {
		return TrialResult{}, fmt.Errorf("search: space has %d searchable dimensions, use Run", collected.Dim())
	}
	start := time.Now()
	params := collected.Assemble(nil)
	ev := eval.Evaluate(params)
	return TrialResult{
		Trial:     1,
		Iteration: 1,
		SolID:     "1_1_1",
		Params:    params,
		Eval:      ev,
		Elapsed:   time.Since(start),
	}, nil
}

func runTrial(eval *model.Evaluator, collected *model.Collected, cfg Config, factory OptimizerFactory, trial int) []TrialResult {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(trial)))
	opt := factory(collected.Dim(), rng)
	start := time.Now()

	var history []IterationRecord
	var retained []TrialResult
	best := TrialResult{Trial: trial}
	bestSeen := false

	for iter := 1; iter <= cfg.Iterations; iter++ {
		x := opt.Ask()
		params := collected.Assemble(x)
		ev := eval.Evaluate(params)
		opt.Tell(x, ev.Loss)

		if cfg.RecordHistory {
			history = append(history, IterationRecord{
				Trial:      trial,
				Iteration:  iter,
				Loss:       ev.Loss,
				NRMSE:      ev.NRMSE,
				DecompRSSD: ev.DecompRSSD,
				MAPE:       ev.MAPE,
			})
		}

		result := TrialResult{
			Trial:     trial,
			Iteration: iter,
			SolID:     fmt.Sprintf("%d_%d_1", trial, iter),
			Params:    params,
			Eval:      ev,
			Elapsed:   time.Since(start),
		}
		if cfg.RetainAll {
			retained = append(retained, result)
		}
		// Strict less-than: ties keep the first-seen candidate.
		if !bestSeen || ev.Loss < best.Eval.Loss {
			best = result
			bestSeen = true
		}
	}

	best.Elapsed = time.Since(start)
	best.History = history
	monitoring.Logf("trial %d finished in %v: best %s loss=%.6f nrmse=%.6f rssd=%.6f",
		trial, best.Elapsed.Round(time.Millisecond), best.SolID, best.Eval.Loss, best.Eval.NRMSE, best.Eval.DecompRSSD)

	if cfg.RetainAll {
		// retained is in iteration order; carry the history on the trial's
		// best result so convergence reporting survives full retention.
		retained[best.Iteration-1].History = history
		return retained
	}
	return []TrialResult{best}
}
