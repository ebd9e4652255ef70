// Package config loads the JSON run configuration. Fields are pointers so
// partial configs are safe: anything omitted falls back to the Get* default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/brandwave-data/mixmodel/internal/dataset"
	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/transform"
)

// RunConfig is the root configuration for one search run.
type RunConfig struct {
	// Search controls
	Trials     *int   `json:"trials,omitempty"`
	Iterations *int   `json:"iterations,omitempty"`
	Cores      *int   `json:"cores,omitempty"`
	Seed       *int64 `json:"seed,omitempty"`
	RetainAll  *bool  `json:"retain_all,omitempty"`

	// Model controls
	Adstock          *string   `json:"adstock,omitempty"`
	TSValidation     *bool     `json:"ts_validation,omitempty"`
	Intercept        *bool     `json:"intercept,omitempty"`
	InterceptSign    *string   `json:"intercept_sign,omitempty"`
	RSSDZeroPenalty  *bool     `json:"rssd_zero_penalty,omitempty"`
	ObjectiveWeights []float64 `json:"objective_weights,omitempty"`

	// Pareto controls. ParetoFronts is "auto" or a positive integer.
	ParetoFronts          *string  `json:"pareto_fronts,omitempty"`
	MinCandidates         *int     `json:"min_candidates,omitempty"`
	CalibrationConstraint *float64 `json:"calibration_constraint,omitempty"`

	// Data declarations
	Schema      dataset.Schema                          `json:"schema"`
	Calibration []model.LiftStudy                       `json:"calibration,omitempty"`
	Channels    map[string]model.ChannelHyperparameters `json:"hyperparameters,omitempty"`
}

// Load reads and validates a run configuration from a JSON file. Fields
// omitted from the file retain their defaults.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field. Unset fields are always valid because the
// Get* defaults are.
func (c *RunConfig) Validate() error {
	if c.Trials != nil && *c.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got %d", *c.Trials)
	}
	if c.Iterations != nil && *c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", *c.Iterations)
	}
	if c.Cores != nil && *c.Cores < 1 {
		return fmt.Errorf("cores must be >= 1, got %d", *c.Cores)
	}
	if c.Adstock != nil {
		if !transform.AdstockType(*c.Adstock).Valid() {
			return fmt.Errorf("unknown adstock %q", *c.Adstock)
		}
	}
	if c.InterceptSign != nil {
		switch *c.InterceptSign {
		case model.InterceptNonNegative, model.InterceptUnconstrained:
		default:
			return fmt.Errorf("unknown intercept_sign %q", *c.InterceptSign)
		}
	}
	if len(c.ObjectiveWeights) > 3 {
		return fmt.Errorf("objective_weights takes at most 3 values, got %d", len(c.ObjectiveWeights))
	}
	for i, w := range c.ObjectiveWeights {
		if w < 0 {
			return fmt.Errorf("objective_weights[%d] must be non-negative, got %f", i, w)
		}
	}
	if c.ParetoFronts != nil && *c.ParetoFronts != "auto" {
		n, err := strconv.Atoi(*c.ParetoFronts)
		if err != nil || n < 1 {
			return fmt.Errorf("pareto_fronts must be \"auto\" or a positive integer, got %q", *c.ParetoFronts)
		}
	}
	if c.MinCandidates != nil && *c.MinCandidates < 1 {
		return fmt.Errorf("min_candidates must be >= 1, got %d", *c.MinCandidates)
	}
	if c.CalibrationConstraint != nil {
		v := *c.CalibrationConstraint
		if v <= 0 || v > 1 {
			return fmt.Errorf("calibration_constraint must be in (0, 1], got %f", v)
		}
	}
	return nil
}

// GetTrials returns the number of independent trials.
func (c *RunConfig) GetTrials() int {
	if c.Trials == nil {
		return 5 // default
	}
	return *c.Trials
}

// GetIterations returns the per-trial iteration budget.
func (c *RunConfig) GetIterations() int {
	if c.Iterations == nil {
		return 2000 // default
	}
	return *c.Iterations
}

// GetCores returns the worker pool size.
func (c *RunConfig) GetCores() int {
	if c.Cores == nil {
		return 2 // default
	}
	return *c.Cores
}

// GetSeed returns the base random seed.
func (c *RunConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 123 // default
	}
	return *c.Seed
}

// GetRetainAll reports whether every iteration is retained for selection.
func (c *RunConfig) GetRetainAll() bool {
	if c.RetainAll == nil {
		return true // default
	}
	return *c.RetainAll
}

// GetAdstock returns the adstock family.
func (c *RunConfig) GetAdstock() transform.AdstockType {
	if c.Adstock == nil {
		return transform.AdstockGeometric // default
	}
	return transform.AdstockType(*c.Adstock)
}

// GetTSValidation reports whether the chronological split is enabled.
func (c *RunConfig) GetTSValidation() bool {
	if c.TSValidation == nil {
		return false // default
	}
	return *c.TSValidation
}

// GetIntercept reports whether the ridge fit includes an intercept.
func (c *RunConfig) GetIntercept() bool {
	if c.Intercept == nil {
		return true // default
	}
	return *c.Intercept
}

// GetInterceptSign returns the intercept constraint.
func (c *RunConfig) GetInterceptSign() string {
	if c.InterceptSign == nil {
		return model.InterceptNonNegative // default
	}
	return *c.InterceptSign
}

// GetRSSDZeroPenalty reports whether zeroed coefficients inflate the
// business-error term.
func (c *RunConfig) GetRSSDZeroPenalty() bool {
	if c.RSSDZeroPenalty == nil {
		return false // default
	}
	return *c.RSSDZeroPenalty
}

// GetParetoFronts returns the number of fronts to keep, 0 meaning automatic
// selection.
func (c *RunConfig) GetParetoFronts() int {
	if c.ParetoFronts == nil || *c.ParetoFronts == "auto" {
		return 0 // automatic
	}
	n, err := strconv.Atoi(*c.ParetoFronts)
	if err != nil || n < 1 {
		return 0 // automatic on parse error
	}
	return n
}

// GetMinCandidates returns the population floor for automatic front
// selection.
func (c *RunConfig) GetMinCandidates() int {
	if c.MinCandidates == nil {
		return 100 // default
	}
	return *c.MinCandidates
}

// GetCalibrationConstraint returns the MAPE quantile gate for calibrated
// runs.
func (c *RunConfig) GetCalibrationConstraint() float64 {
	if c.CalibrationConstraint == nil {
		return 0.1 // default
	}
	return *c.CalibrationConstraint
}

// Space assembles the hyperparameter space from the config: declared
// per-channel bounds where present, family defaults everywhere else.
func (c *RunConfig) Space() *model.Space {
	space := model.DefaultSpace(c.Schema.PaidMedia, c.GetAdstock())
	for ch, hp := range c.Channels {
		space.Channels[ch] = hp
	}
	return space
}
