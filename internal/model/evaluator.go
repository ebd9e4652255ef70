package model

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/brandwave-data/mixmodel/internal/dataset"
	"github.com/brandwave-data/mixmodel/internal/ridge"
	"github.com/brandwave-data/mixmodel/internal/transform"
)

// InterceptSign constrains the fitted intercept.
const (
	InterceptNonNegative   = "non_negative"
	InterceptUnconstrained = "unconstrained"
)

// FailurePenaltyLoss is the finite, rank-consistent loss returned when a
// candidate's fit fails numerically even through the least-squares fallback.
// It keeps the optimizer loop alive while pushing the candidate to the
// bottom of the ranking.
const FailurePenaltyLoss = 1e9

// Config controls candidate evaluation.
type Config struct {
	// TSValidation enables the chronological train/validation/test split
	// driven by the candidate's train_size.
	TSValidation bool
	// Intercept includes an intercept in the ridge fit.
	Intercept bool
	// InterceptSign is InterceptNonNegative (default) or
	// InterceptUnconstrained.
	InterceptSign string
	// RSSDZeroPenalty inflates the coefficient-distance penalty by the
	// zero-coefficient ratio.
	RSSDZeroPenalty bool
	// ObjectiveWeights orders as (fit error, rssd, mape). Nil means equal
	// weights among the active terms. Weights are always renormalized to sum
	// to 1 over the active terms, so 2- and 3-term runs are consistent.
	ObjectiveWeights []float64
	// Calibration supplies optional lift studies; when present the mape term
	// joins the loss.
	Calibration []LiftStudy
}

// DecompRow is one predictor's entry in the coefficient-decomposition table:
// the fitted coefficient and the sum/mean/median of coefficient x value over
// the training rows.
type DecompRow struct {
	Variable string  `json:"variable"`
	Coef     float64 `json:"coef"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
}

// Evaluation is the full scored outcome of one candidate.
type Evaluation struct {
	Loss float64

	// NRMSE is the primary fit metric: validation NRMSE when a validation
	// split exists, else training NRMSE.
	NRMSE      float64
	NRMSETrain float64
	NRMSEVal   float64
	NRMSETest  float64
	RSqTrain   float64
	RSqVal     float64
	RSqTest    float64

	DecompRSSD float64
	MAPE       float64

	LambdaHP  float64
	Lambda    float64
	LambdaMax float64
	TrainSize float64

	// Pos reports whether every fitted coefficient is non-negative.
	Pos               bool
	InterceptViolated bool
	FitFailed         bool

	Decomp []DecompRow
}

// Evaluator scores hyperparameter assignments against the feature table.
// The table and schema are shared read-only; the memo cache is private to
// each evaluator, so clone per trial for concurrent use.
type Evaluator struct {
	table  *dataset.Table
	schema dataset.Schema
	space  *Space
	cfg    Config

	predictors []string
	media      map[string]bool
	y          []float64 // cleaned dependent variable, full series
	cache      map[uint64]*Evaluation
}

// NewEvaluator validates the inputs and prepares the cleaned target. All
// validation failures here are configuration errors: they are raised before
// any search work starts.
func NewEvaluator(t *dataset.Table, schema dataset.Schema, space *Space, cfg Config) (*Evaluator, error) {
	if err := schema.Validate(t); err != nil {
		return nil, err
	}
	if _, err := space.Collect(cfg.TSValidation); err != nil {
		return nil, err
	}
	for _, ch := range schema.PaidMedia {
		if _, ok := space.Channels[ch]; !ok {
			return nil, fmt.Errorf("paid media channel %q has no hyperparameters", ch)
		}
	}
	switch cfg.InterceptSign {
	case "", InterceptNonNegative, InterceptUnconstrained:
	default:
		return nil, fmt.Errorf("unknown intercept sign %q", cfg.InterceptSign)
	}
	if err := validateCalibration(cfg.Calibration, t.Len(), schema.IsPaidMedia); err != nil {
		return nil, err
	}

	e := &Evaluator{
		table:      t,
		schema:     schema,
		space:      space,
		cfg:        cfg,
		predictors: schema.Predictors(),
		media:      make(map[string]bool, len(schema.PaidMedia)),
		cache:      make(map[uint64]*Evaluation),
	}
	for _, m := range schema.PaidMedia {
		e.media[m] = true
	}

	// Non-finite target cells are replaced with the column mean so the fit
	// stays well-defined.
	raw := t.MustColumn(schema.DepVar)
	e.y = cleanTarget(raw)
	return e, nil
}

// Clone returns an evaluator sharing the read-only data but with a fresh
// memo cache, for use by an independent trial.
func (e *Evaluator) Clone() *Evaluator {
	c := *e
	c.cache = make(map[uint64]*Evaluation)
	return &c
}

// Schema returns the evaluator's column schema.
func (e *Evaluator) Schema() dataset.Schema { return e.schema }

// Space returns the evaluator's hyperparameter space.
func (e *Evaluator) Space() *Space { return e.space }

// Table returns the shared feature table.
func (e *Evaluator) Table() *dataset.Table { return e.table }

// Evaluate scores one fully specified candidate. It never panics or returns
// an error: numerical fit failures yield a finite penalty loss so the search
// loop continues.
func (e *Evaluator) Evaluate(params map[string]float64) *Evaluation {
	key := hashParams(params)
	if ev, ok := e.cache[key]; ok {
		return ev
	}
	ev := e.evaluate(params)
	e.cache[key] = ev
	return ev
}

func (e *Evaluator) evaluate(params map[string]float64) *Evaluation {
	ev := &Evaluation{
		LambdaHP:  paramOr(params, "lambda", 1),
		TrainSize: paramOr(params, "train_size", 1),
	}

	cols, factors, err := e.designColumns(params)
	if err != nil {
		// Missing family parameters are configuration errors, but by this
		// point the space was validated; treat a residual mismatch like a
		// failed fit rather than killing the trial.
		return failedEvaluation(ev)
	}

	// Slice to the modeling window.
	w := e.schema.Window
	n := w.Length()
	x := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		for i := 0; i < n; i++ {
			v := col[w.Start+i]
			if !isFinite(v) {
				v = 0
			}
			x.Set(i, j, v)
		}
	}
	y := e.y[w.Start : w.End+1]

	nTrain, nVal, nTest := splitSizes(n, e.cfg.TSValidation, ev.TrainSize)
	xTrain := x.Slice(0, nTrain, 0, len(cols)).(*mat.Dense)
	yTrain := y[:nTrain]

	ev.LambdaMax = ridge.LambdaMax(xTrain, yTrain)
	lambdaMin := ev.LambdaMax * ridge.LambdaMinRatio
	ev.Lambda = lambdaMin + ev.LambdaHP*(ev.LambdaMax-lambdaMin)

	fit, err := ridge.Solve(xTrain, yTrain, ridge.Options{
		Lambda:               ev.Lambda,
		Intercept:            e.cfg.Intercept,
		NonNegativeIntercept: e.cfg.InterceptSign != InterceptUnconstrained,
		PenaltyFactors:       factors,
	})
	if err != nil {
		return failedEvaluation(ev)
	}
	ev.InterceptViolated = fit.InterceptViolated

	trainRange := ridge.Range(yTrain)
	predTrain := fit.Predict(xTrain)
	ev.NRMSETrain = ridge.NRMSE(yTrain, predTrain, trainRange)
	ev.RSqTrain = ridge.R2(yTrain, predTrain)
	ev.NRMSE = ev.NRMSETrain

	if nVal > 0 && nTest > 0 {
		xVal := x.Slice(nTrain, nTrain+nVal, 0, len(cols)).(*mat.Dense)
		yVal := y[nTrain : nTrain+nVal]
		xTest := x.Slice(nTrain+nVal, n, 0, len(cols)).(*mat.Dense)
		yTest := y[nTrain+nVal:]

		predVal := fit.Predict(xVal)
		predTest := fit.Predict(xTest)
		ev.NRMSEVal = ridge.NRMSE(yVal, predVal, trainRange)
		ev.NRMSETest = ridge.NRMSE(yTest, predTest, trainRange)
		ev.RSqVal = ridge.R2(yVal, predVal)
		ev.RSqTest = ridge.R2(yTest, predTest)
		ev.NRMSE = ev.NRMSEVal
	}

	ev.DecompRSSD = decompRSSD(fit.Coef, e.cfg.RSSDZeroPenalty)
	ev.Pos = allNonNegative(fit.Coef)
	ev.Decomp = e.decompose(fit, x.Slice(0, nTrain, 0, len(cols)).(*mat.Dense), nTrain)

	if len(e.cfg.Calibration) > 0 {
		ev.MAPE = e.calibrationMAPE(cols, fit)
	}

	wFit, wRSSD, wMAPE := resolveWeights(e.cfg.ObjectiveWeights, len(e.cfg.Calibration) > 0)
	ev.Loss = wFit*ev.NRMSE + wRSSD*ev.DecompRSSD + wMAPE*ev.MAPE
	return ev
}

// designColumns applies the per-channel transforms and returns all predictor
// columns over the full series, plus the per-column penalty factors.
func (e *Evaluator) designColumns(params map[string]float64) ([][]float64, []float64, error) {
	cols := make([][]float64, 0, len(e.predictors))
	factors := make([]float64, 0, len(e.predictors))
	hasPenalty := false

	for _, name := range e.predictors {
		raw := e.table.MustColumn(name)
		if !e.media[name] {
			cols = append(cols, raw)
			factors = append(factors, 1)
			continue
		}
		col, err := e.transformChannel(name, raw, params)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		f := 1.0
		if p, ok := params[name+"_penalty"]; ok {
			f = p
			hasPenalty = true
		}
		factors = append(factors, f)
	}
	if !hasPenalty {
		factors = nil
	}
	return cols, factors, nil
}

func (e *Evaluator) transformChannel(name string, raw []float64, params map[string]float64) ([]float64, error) {
	var decayed []float64
	if e.space.Adstock.IsWeibull() {
		shape, okS := params[name+"_shapes"]
		scale, okC := params[name+"_scales"]
		if !okS || !okC {
			return nil, fmt.Errorf("channel %s: missing shape/scale for %s adstock", name, e.space.Adstock)
		}
		// The scale hyperparameter is a fraction of the series length, so the
		// kernel adapts to the modeling resolution.
		absScale := scale * float64(len(raw))
		var err error
		decayed, err = transform.Weibull(raw, shape, absScale, e.space.Adstock)
		if err != nil {
			return nil, err
		}
	} else {
		theta, ok := params[name+"_thetas"]
		if !ok {
			return nil, fmt.Errorf("channel %s: missing theta for geometric adstock", name)
		}
		decayed = transform.Geometric(raw, theta)
	}

	alpha, okA := params[name+"_alphas"]
	gamma, okG := params[name+"_gammas"]
	if !okA || !okG {
		return nil, fmt.Errorf("channel %s: missing alpha/gamma for saturation", name)
	}
	return transform.Hill(decayed, alpha, gamma), nil
}

// decompose builds the per-predictor contribution table over the training
// rows: coefficient and coefficient x value sum/mean/median.
func (e *Evaluator) decompose(fit *ridge.Fit, xTrain *mat.Dense, nTrain int) []DecompRow {
	rows := make([]DecompRow, 0, len(e.predictors)+1)
	if e.cfg.Intercept {
		rows = append(rows, DecompRow{
			Variable: "(Intercept)",
			Coef:     fit.Intercept,
			Sum:      fit.Intercept * float64(nTrain),
			Mean:     fit.Intercept,
			Median:   fit.Intercept,
		})
	}
	scratch := make([]float64, nTrain)
	for j, name := range e.predictors {
		coef := fit.Coef[j]
		var sum float64
		for i := 0; i < nTrain; i++ {
			v := coef * xTrain.At(i, j)
			scratch[i] = v
			sum += v
		}
		rows = append(rows, DecompRow{
			Variable: name,
			Coef:     coef,
			Sum:      sum,
			Mean:     sum / float64(nTrain),
			Median:   median(scratch),
		})
	}
	return rows
}

// calibrationMAPE compares each study's observed lift against the model's
// implied contribution of that channel over the study window: coefficient
// times the mean transformed value. Returned as a mean absolute percentage
// error across studies.
func (e *Evaluator) calibrationMAPE(cols [][]float64, fit *ridge.Fit) float64 {
	coefByName := make(map[string]float64, len(e.predictors))
	for j, name := range e.predictors {
		coefByName[name] = fit.Coef[j]
	}
	colByName := make(map[string][]float64, len(e.predictors))
	for j, name := range e.predictors {
		colByName[name] = cols[j]
	}

	var total float64
	for _, st := range e.cfg.Calibration {
		col := colByName[st.Channel]
		var mean float64
		count := st.End - st.Start + 1
		for i := st.Start; i <= st.End; i++ {
			mean += col[i]
		}
		mean /= float64(count)
		predicted := coefByName[st.Channel] * mean
		total += math.Abs((st.Lift-predicted)/st.Lift) * 100
	}
	return total / float64(len(e.cfg.Calibration))
}

// splitSizes resolves the chronological partition sizes. The validation and
// test partitions evenly split the held-out remainder; if either would be
// empty the run degrades to train-only.
func splitSizes(n int, tsValidation bool, trainSize float64) (nTrain, nVal, nTest int) {
	if !tsValidation || trainSize >= 1 || trainSize <= 0 {
		return n, 0, 0
	}
	nTrain = int(math.Round(float64(n) * trainSize))
	if nTrain < 1 {
		nTrain = 1
	}
	rest := n - nTrain
	nVal = rest / 2
	nTest = rest - nVal
	if nVal < 1 || nTest < 1 {
		return n, 0, 0
	}
	return nTrain, nVal, nTest
}

// decompRSSD is the L2 norm of the coefficient vector, optionally inflated
// by the zero-coefficient ratio to discourage zeroing channels out.
func decompRSSD(coefs []float64, zeroPenalty bool) float64 {
	var ss float64
	zeros := 0
	for _, c := range coefs {
		ss += c * c
		if c == 0 {
			zeros++
		}
	}
	rssd := math.Sqrt(ss)
	if zeroPenalty && len(coefs) > 0 {
		rssd *= 1 + float64(zeros)/float64(len(coefs))
	}
	return rssd
}

// resolveWeights normalizes the objective weights over the active terms.
// The canonical order is (fit, rssd, mape); the mape slot is dropped when no
// calibration input exists. This makes the 2-weight and 3-weight defaults
// explicit instead of ambient.
func resolveWeights(weights []float64, calibrated bool) (wFit, wRSSD, wMAPE float64) {
	active := 2
	if calibrated {
		active = 3
	}
	w := make([]float64, active)
	for i := range w {
		w[i] = 1
	}
	for i := 0; i < active && i < len(weights); i++ {
		if weights[i] >= 0 {
			w[i] = weights[i]
		}
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		for i := range w {
			w[i] = 1
		}
		sum = float64(active)
	}
	wFit = w[0] / sum
	wRSSD = w[1] / sum
	if calibrated {
		wMAPE = w[2] / sum
	}
	return wFit, wRSSD, wMAPE
}

func failedEvaluation(ev *Evaluation) *Evaluation {
	ev.FitFailed = true
	ev.Loss = FailurePenaltyLoss
	ev.NRMSE = FailurePenaltyLoss
	ev.DecompRSSD = FailurePenaltyLoss
	return ev
}

func cleanTarget(raw []float64) []float64 {
	var sum float64
	count := 0
	for _, v := range raw {
		if isFinite(v) {
			sum += v
			count++
		}
	}
	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		if isFinite(v) {
			out[i] = v
		} else {
			out[i] = mean
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allNonNegative(coefs []float64) bool {
	for _, c := range coefs {
		if c < 0 {
			return false
		}
	}
	return true
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func paramOr(params map[string]float64, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		return v
	}
	return def
}

// hashParams produces a stable memo key for a candidate assignment.
func hashParams(params map[string]float64) uint64 {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	d := xxhash.New()
	var buf [8]byte
	for _, name := range names {
		_, _ = d.WriteString(name)
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(params[name]))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
