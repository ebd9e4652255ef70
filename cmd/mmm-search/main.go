// Command mmm-search runs the full marketing-mix model search: it loads a
// feature table and run configuration, searches the hyperparameter space over
// independent trials, selects the Pareto-optimal candidates, projects their
// response curves, and writes everything out as CSV and optionally sqlite.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/brandwave-data/mixmodel/internal/config"
	"github.com/brandwave-data/mixmodel/internal/dataset"
	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/pareto"
	"github.com/brandwave-data/mixmodel/internal/resultstore"
	"github.com/brandwave-data/mixmodel/internal/search"
)

func main() {
	dataPath := flag.String("data", "", "Input feature table CSV")
	configPath := flag.String("config", "", "Run configuration JSON")
	outDir := flag.String("out", "out", "Output directory for result CSVs")
	dbPath := flag.String("db", "", "Optional sqlite database to persist results into")
	flag.Parse()

	if *dataPath == "" || *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	table, dates, err := dataset.LoadCSV(*dataPath, cfg.Schema.DateVar)
	if err != nil {
		log.Fatalf("Failed to load data: %v", err)
	}
	if len(dates) > 1 {
		interval, err := dataset.IntervalType(dates)
		if err != nil {
			log.Fatalf("Date column check failed: %v", err)
		}
		log.Printf("Loaded %d rows of %s data from %s", table.Len(), interval, *dataPath)
	} else {
		log.Printf("Loaded %d rows from %s", table.Len(), *dataPath)
	}

	space := cfg.Space()
	eval, err := model.NewEvaluator(table, cfg.Schema, space, model.Config{
		TSValidation:     cfg.GetTSValidation(),
		Intercept:        cfg.GetIntercept(),
		InterceptSign:    cfg.GetInterceptSign(),
		RSSDZeroPenalty:  cfg.GetRSSDZeroPenalty(),
		ObjectiveWeights: cfg.ObjectiveWeights,
		Calibration:      cfg.Calibration,
	})
	if err != nil {
		log.Fatalf("Failed to build evaluator: %v", err)
	}
	collected, err := space.Collect(cfg.GetTSValidation())
	if err != nil {
		log.Fatalf("Invalid hyperparameter space: %v", err)
	}

	var results []search.TrialResult
	hyperFixed := collected.AllFixed
	if hyperFixed {
		log.Printf("All hyperparameters fixed: evaluating the single candidate")
		r, err := search.RunFixed(eval, collected)
		if err != nil {
			log.Fatalf("Fixed evaluation failed: %v", err)
		}
		results = []search.TrialResult{r}
	} else {
		results, err = search.Run(eval, collected, search.Config{
			Trials:        cfg.GetTrials(),
			Iterations:    cfg.GetIterations(),
			Cores:         cfg.GetCores(),
			Seed:          cfg.GetSeed(),
			RetainAll:     cfg.GetRetainAll(),
			RecordHistory: true,
		})
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		for _, msg := range search.Convergence(results).Messages {
			log.Printf("Convergence: %s", msg)
		}
	}

	pop := pareto.FromTrialResults(results)
	selection, err := pareto.Select(pop, pareto.Options{
		Fronts:                cfg.GetParetoFronts(),
		MinCandidates:         cfg.GetMinCandidates(),
		CalibrationConstraint: cfg.GetCalibrationConstraint(),
		Calibrated:            len(cfg.Calibration) > 0,
		HyperFixed:            hyperFixed,
	})
	if err != nil {
		if errors.Is(err, pareto.ErrInsufficientCandidates) {
			log.Fatalf("Selection failed: %v (increase iterations or enable retain_all)", err)
		}
		log.Fatalf("Selection failed: %v", err)
	}
	best := pareto.SelectBest(selection.Selected)
	log.Printf("Selected %d candidates across %d fronts; best solution %s",
		len(selection.Selected), selection.Fronts, best)

	projector := pareto.NewProjector(table, cfg.Schema, space, selection.Selected)
	responses, err := projector.Summaries(best)
	if err != nil {
		log.Fatalf("Response projection failed: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Could not create output directory %s: %v", *outDir, err)
	}
	if err := writeCandidatesCSV(filepath.Join(*outDir, "candidates.csv"), selection.Selected); err != nil {
		log.Fatalf("Could not write candidates: %v", err)
	}
	if err := writeDecompCSV(filepath.Join(*outDir, "decomp.csv"), selection.Selected, best); err != nil {
		log.Fatalf("Could not write decomposition: %v", err)
	}
	if err := writeResponsesCSV(filepath.Join(*outDir, "responses.csv"), responses); err != nil {
		log.Fatalf("Could not write responses: %v", err)
	}
	log.Printf("Wrote results to %s", *outDir)

	if *dbPath != "" {
		if err := persist(*dbPath, cfg, selection.Selected, responses, best); err != nil {
			log.Fatalf("Could not persist results: %v", err)
		}
	}
}

func persist(path string, cfg *config.RunConfig, selected []pareto.Candidate, responses []pareto.ResponseSummary, best string) error {
	store, err := resultstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	meta := resultstore.RunMeta{
		DepVar:     cfg.Schema.DepVar,
		DepVarType: string(cfg.Schema.DepVarType),
		Adstock:    string(cfg.GetAdstock()),
		Trials:     cfg.GetTrials(),
		Iterations: cfg.GetIterations(),
		Seed:       cfg.GetSeed(),
		BestSolID:  best,
	}
	if err := store.CreateRun(&meta); err != nil {
		return err
	}
	if err := store.SaveCandidates(meta.RunID, selected); err != nil {
		return err
	}
	if err := store.SaveResponses(meta.RunID, responses); err != nil {
		return err
	}
	log.Printf("Persisted run %s to %s", meta.RunID, path)
	return nil
}

func writeCandidatesCSV(path string, selected []pareto.Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"sol_id", "trial", "iteration", "nrmse", "decomp_rssd", "mape", "front", "error_score"}); err != nil {
		return err
	}
	for _, c := range selected {
		row := []string{
			c.SolID,
			strconv.Itoa(c.Trial),
			strconv.Itoa(c.Iteration),
			formatFloat(c.NRMSE),
			formatFloat(c.DecompRSSD),
			formatFloat(c.MAPE),
			strconv.Itoa(c.Front),
			formatFloat(c.ErrorScore),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeDecompCSV(path string, selected []pareto.Candidate, solID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"sol_id", "variable", "coef", "sum", "mean", "median"}); err != nil {
		return err
	}
	for _, c := range selected {
		if c.SolID != solID {
			continue
		}
		for _, row := range c.Decomp {
			rec := []string{
				c.SolID,
				row.Variable,
				formatFloat(row.Coef),
				formatFloat(row.Sum),
				formatFloat(row.Mean),
				formatFloat(row.Median),
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func writeResponsesCSV(path string, responses []pareto.ResponseSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"sol_id", "channel", "mean_spend", "mean_adstocked", "mean_carryover", "mean_response", "roi", "cpa"}); err != nil {
		return err
	}
	for _, r := range responses {
		row := []string{
			r.SolID,
			r.Channel,
			formatFloat(r.MeanSpend),
			formatFloat(r.MeanAdstocked),
			formatFloat(r.MeanCarryover),
			formatFloat(r.MeanResponse),
			formatFloat(r.ROI),
			formatFloat(r.CPA),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
