package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/transform"
)

func TestDefaults(t *testing.T) {
	cfg := &RunConfig{}
	if got := cfg.GetTrials(); got != 5 {
		t.Errorf("trials: got %d, want 5", got)
	}
	if got := cfg.GetIterations(); got != 2000 {
		t.Errorf("iterations: got %d, want 2000", got)
	}
	if got := cfg.GetCores(); got != 2 {
		t.Errorf("cores: got %d, want 2", got)
	}
	if got := cfg.GetSeed(); got != 123 {
		t.Errorf("seed: got %d, want 123", got)
	}
	if !cfg.GetRetainAll() {
		t.Error("retain_all should default on")
	}
	if got := cfg.GetAdstock(); got != transform.AdstockGeometric {
		t.Errorf("adstock: got %q, want geometric", got)
	}
	if cfg.GetTSValidation() {
		t.Error("ts_validation should default off")
	}
	if !cfg.GetIntercept() {
		t.Error("intercept should default on")
	}
	if got := cfg.GetInterceptSign(); got != model.InterceptNonNegative {
		t.Errorf("intercept_sign: got %q", got)
	}
	if got := cfg.GetParetoFronts(); got != 0 {
		t.Errorf("pareto_fronts: got %d, want 0 (auto)", got)
	}
	if got := cfg.GetMinCandidates(); got != 100 {
		t.Errorf("min_candidates: got %d, want 100", got)
	}
	if got := cfg.GetCalibrationConstraint(); got != 0.1 {
		t.Errorf("calibration_constraint: got %v, want 0.1", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	content := `{
		"trials": 3,
		"iterations": 500,
		"adstock": "weibull_pdf",
		"ts_validation": true,
		"pareto_fronts": "2",
		"schema": {
			"dep_var": "revenue",
			"dep_var_type": "revenue",
			"paid_media": ["tv", "search"],
			"window": {"start": 0, "end": 51}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetTrials() != 3 || cfg.GetIterations() != 500 {
		t.Errorf("overrides not applied: trials=%d iterations=%d", cfg.GetTrials(), cfg.GetIterations())
	}
	// Omitted fields keep defaults.
	if cfg.GetCores() != 2 || cfg.GetSeed() != 123 {
		t.Error("omitted fields lost their defaults")
	}
	if cfg.GetAdstock() != transform.AdstockWeibullPDF {
		t.Errorf("adstock: got %q", cfg.GetAdstock())
	}
	if cfg.GetParetoFronts() != 2 {
		t.Errorf("pareto_fronts: got %d, want 2", cfg.GetParetoFronts())
	}

	space := cfg.Space()
	if space.Adstock != transform.AdstockWeibullPDF {
		t.Errorf("space adstock: got %q", space.Adstock)
	}
	if len(space.Channels) != 2 {
		t.Errorf("space channels: got %d, want 2", len(space.Channels))
	}
	if space.Channels["tv"].Shapes == nil {
		t.Error("weibull space should carry shape bounds")
	}
}

func TestLoadRejectsNonJSON(t *testing.T) {
	if _, err := Load("run.yaml"); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("got %v, want extension error", err)
	}
}

func TestValidateErrors(t *testing.T) {
	bad := func(mutate func(*RunConfig)) error {
		cfg := &RunConfig{}
		mutate(cfg)
		return cfg.Validate()
	}
	intPtr := func(v int) *int { return &v }
	strPtr := func(v string) *string { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	cases := []struct {
		name   string
		mutate func(*RunConfig)
		want   string
	}{
		{"zero trials", func(c *RunConfig) { c.Trials = intPtr(0) }, "trials"},
		{"zero iterations", func(c *RunConfig) { c.Iterations = intPtr(0) }, "iterations"},
		{"zero cores", func(c *RunConfig) { c.Cores = intPtr(0) }, "cores"},
		{"bad adstock", func(c *RunConfig) { c.Adstock = strPtr("exponential") }, "adstock"},
		{"bad intercept sign", func(c *RunConfig) { c.InterceptSign = strPtr("positive") }, "intercept_sign"},
		{"too many weights", func(c *RunConfig) { c.ObjectiveWeights = []float64{1, 1, 1, 1} }, "objective_weights"},
		{"negative weight", func(c *RunConfig) { c.ObjectiveWeights = []float64{1, -1} }, "objective_weights"},
		{"bad fronts", func(c *RunConfig) { c.ParetoFronts = strPtr("some") }, "pareto_fronts"},
		{"zero fronts", func(c *RunConfig) { c.ParetoFronts = strPtr("0") }, "pareto_fronts"},
		{"zero min candidates", func(c *RunConfig) { c.MinCandidates = intPtr(0) }, "min_candidates"},
		{"constraint above one", func(c *RunConfig) { c.CalibrationConstraint = floatPtr(1.5) }, "calibration_constraint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := bad(tc.mutate)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	if err := (&RunConfig{}).Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestSpaceHonorsDeclaredBounds(t *testing.T) {
	cfg := &RunConfig{}
	cfg.Schema.PaidMedia = []string{"tv"}
	cfg.Channels = map[string]model.ChannelHyperparameters{
		"tv": {
			Thetas: model.Param{0.1, 0.2},
			Alphas: model.Param{1},
			Gammas: model.Param{0.4, 0.8},
		},
	}
	space := cfg.Space()
	hp := space.Channels["tv"]
	if hp.Thetas[0] != 0.1 || hp.Thetas[1] != 0.2 {
		t.Errorf("declared theta bounds lost: %v", hp.Thetas)
	}
	if len(hp.Alphas) != 1 || hp.Alphas[0] != 1 {
		t.Errorf("declared fixed alpha lost: %v", hp.Alphas)
	}
}
