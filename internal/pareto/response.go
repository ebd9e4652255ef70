package pareto

import (
	"errors"
	"fmt"

	"github.com/brandwave-data/mixmodel/internal/dataset"
	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/transform"
)

// ErrSolutionNotFound is raised when a projector lookup names a solution ID
// absent from the selection result.
var ErrSolutionNotFound = errors.New("pareto: solution not found")

// ResponseSummary is one paid-media channel's projected response at its mean
// historical operating point under a specific candidate.
type ResponseSummary struct {
	SolID   string
	Channel string

	// MeanSpend is the channel's mean raw spend over the modeling window.
	MeanSpend float64
	// MeanAdstocked is the mean decayed spend over the window.
	MeanAdstocked float64
	// MeanCarryover is the decayed minus raw mean, the inherited portion.
	MeanCarryover float64
	// MeanResponse is the saturated response at spend plus carryover, scaled
	// by the channel's fitted coefficient.
	MeanResponse float64

	// ROI is response per unit spend for revenue targets.
	ROI float64
	// CPA is spend per unit response for conversion targets.
	CPA float64
}

// Projector computes response summaries for selected candidates against the
// original feature table.
type Projector struct {
	table  *dataset.Table
	schema dataset.Schema
	space  *model.Space
	byID   map[string]*Candidate
}

// NewProjector indexes the selected candidates for lookup. The table, schema
// and space must be the ones the search ran against.
func NewProjector(t *dataset.Table, schema dataset.Schema, space *model.Space, selected []Candidate) *Projector {
	byID := make(map[string]*Candidate, len(selected))
	for i := range selected {
		byID[selected[i].SolID] = &selected[i]
	}
	return &Projector{table: t, schema: schema, space: space, byID: byID}
}

// Summary projects one channel of one solution.
func (p *Projector) Summary(solID, channel string) (*ResponseSummary, error) {
	cand, ok := p.byID[solID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSolutionNotFound, solID)
	}
	if !p.schema.IsPaidMedia(channel) {
		return nil, fmt.Errorf("pareto: %q is not a paid-media channel", channel)
	}
	return p.project(cand, channel)
}

// Summaries projects every paid-media channel of one solution, in schema
// order.
func (p *Projector) Summaries(solID string) ([]ResponseSummary, error) {
	cand, ok := p.byID[solID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSolutionNotFound, solID)
	}
	out := make([]ResponseSummary, 0, len(p.schema.PaidMedia))
	for _, ch := range p.schema.PaidMedia {
		rs, err := p.project(cand, ch)
		if err != nil {
			return nil, err
		}
		out = append(out, *rs)
	}
	return out, nil
}

func (p *Projector) project(cand *Candidate, channel string) (*ResponseSummary, error) {
	raw := p.table.MustColumn(channel)
	decayed, err := p.adstock(channel, raw, cand.Params)
	if err != nil {
		return nil, err
	}

	// Saturation during the fit ran over the whole decayed series before
	// windowing, so the Hill inflexion anchors on the full-series maximum.
	var adstockMax float64
	for _, v := range decayed {
		if v > adstockMax {
			adstockMax = v
		}
	}

	w := p.schema.Window
	n := float64(w.Length())
	var spendSum, adstockSum float64
	for i := w.Start; i <= w.End; i++ {
		spendSum += raw[i]
		adstockSum += decayed[i]
	}
	meanSpend := spendSum / n
	meanAdstocked := adstockSum / n
	meanCarryover := meanAdstocked - meanSpend
	if meanCarryover < 0 {
		meanCarryover = 0
	}

	alpha, okA := cand.Params[channel+"_alphas"]
	gamma, okG := cand.Params[channel+"_gammas"]
	if !okA || !okG {
		return nil, fmt.Errorf("pareto: solution %s: missing saturation parameters for %s", cand.SolID, channel)
	}
	coef := coefFor(cand.Decomp, channel)

	gammaAbs := gamma * adstockMax
	response := transform.HillAt(meanSpend+meanCarryover, alpha, gammaAbs) * coef

	rs := &ResponseSummary{
		SolID:         cand.SolID,
		Channel:       channel,
		MeanSpend:     meanSpend,
		MeanAdstocked: meanAdstocked,
		MeanCarryover: meanCarryover,
		MeanResponse:  response,
	}
	switch p.schema.DepVarType {
	case dataset.DepVarRevenue:
		if meanSpend > 0 {
			rs.ROI = response / meanSpend
		}
	case dataset.DepVarConversion:
		if response > 0 {
			rs.CPA = meanSpend / response
		}
	}
	return rs, nil
}

func (p *Projector) adstock(channel string, raw []float64, params map[string]float64) ([]float64, error) {
	if p.space.Adstock.IsWeibull() {
		shape, okS := params[channel+"_shapes"]
		scale, okC := params[channel+"_scales"]
		if !okS || !okC {
			return nil, fmt.Errorf("pareto: channel %s: missing shape/scale for %s adstock", channel, p.space.Adstock)
		}
		return transform.Weibull(raw, shape, scale*float64(len(raw)), p.space.Adstock)
	}
	theta, ok := params[channel+"_thetas"]
	if !ok {
		return nil, fmt.Errorf("pareto: channel %s: missing theta for geometric adstock", channel)
	}
	return transform.Geometric(raw, theta), nil
}

func coefFor(decomp []model.DecompRow, variable string) float64 {
	for _, row := range decomp {
		if row.Variable == variable {
			return row.Coef
		}
	}
	return 0
}
