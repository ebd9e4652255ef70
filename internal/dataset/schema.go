package dataset

import (
	"fmt"
	"time"
)

// DepVarType declares whether the dependent variable is a revenue amount or
// a conversion count. It selects whether ROI or CPA is the primary response
// ratio downstream.
type DepVarType string

const (
	DepVarRevenue    DepVarType = "revenue"
	DepVarConversion DepVarType = "conversion"
)

// Window declares the modeling-window boundaries as inclusive row indices
// into the feature table.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate checks the window ordering against the table length.
func (w Window) Validate(rows int) error {
	if w.Start < 0 || w.End >= rows || w.Start > w.End {
		return fmt.Errorf("invalid modeling window [%d, %d] for %d rows", w.Start, w.End, rows)
	}
	return nil
}

// Length returns the number of periods inside the window.
func (w Window) Length() int { return w.End - w.Start + 1 }

// Schema declares the role of each column in the feature table.
type Schema struct {
	DepVar     string            `json:"dep_var"`
	DepVarType DepVarType        `json:"dep_var_type"`
	DateVar    string            `json:"date_var,omitempty"`
	PaidMedia  []string          `json:"paid_media"`
	Exposure   map[string]string `json:"exposure,omitempty"` // spend column -> exposure column
	Context    []string          `json:"context,omitempty"`
	Organic    []string          `json:"organic,omitempty"`
	Calendar   []string          `json:"calendar,omitempty"` // trend/season/holiday/weekday columns
	Window     Window            `json:"window"`
}

// Validate checks the schema against a concrete table. Missing required
// columns and invalid window ordering are configuration errors.
func (s *Schema) Validate(t *Table) error {
	if s.DepVar == "" {
		return fmt.Errorf("schema: dep_var is required")
	}
	if !t.HasColumn(s.DepVar) {
		return fmt.Errorf("schema: dependent variable column %q not in table", s.DepVar)
	}
	switch s.DepVarType {
	case DepVarRevenue, DepVarConversion:
	case "":
		return fmt.Errorf("schema: dep_var_type is required (revenue or conversion)")
	default:
		return fmt.Errorf("schema: unknown dep_var_type %q", s.DepVarType)
	}
	if len(s.PaidMedia) == 0 {
		return fmt.Errorf("schema: at least one paid media column is required")
	}
	for _, group := range [][]string{s.PaidMedia, s.Context, s.Organic, s.Calendar} {
		for _, name := range group {
			if !t.HasColumn(name) {
				return fmt.Errorf("schema: declared column %q not in table", name)
			}
		}
	}
	if err := s.Window.Validate(t.Len()); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// Predictors returns all predictor columns in their canonical order: paid
// media first, then context, organic and calendar columns.
func (s *Schema) Predictors() []string {
	out := make([]string, 0, len(s.PaidMedia)+len(s.Context)+len(s.Organic)+len(s.Calendar))
	out = append(out, s.PaidMedia...)
	out = append(out, s.Context...)
	out = append(out, s.Organic...)
	out = append(out, s.Calendar...)
	return out
}

// IsPaidMedia reports whether name is a declared paid-media column.
func (s *Schema) IsPaidMedia(name string) bool {
	for _, m := range s.PaidMedia {
		if m == name {
			return true
		}
	}
	return false
}

// IntervalType classifies the spacing of a date series as day, week or
// month. Anything else is an invalid interval type for this model family.
func IntervalType(dates []time.Time) (string, error) {
	if len(dates) < 2 {
		return "", fmt.Errorf("interval detection needs at least two dates, got %d", len(dates))
	}
	days := int(dates[1].Sub(dates[0]).Hours() / 24)
	switch {
	case days == 1:
		return "day", nil
	case days >= 6 && days <= 8:
		return "week", nil
	case days >= 28 && days <= 31:
		return "month", nil
	default:
		return "", fmt.Errorf("invalid interval type: %d-day spacing (must be day, week or month)", days)
	}
}
