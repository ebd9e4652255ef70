// Package model evaluates search candidates: it assembles the design matrix
// from a hyperparameter assignment, fits a ridge regression, and scores the
// fit on the search objectives.
package model

import (
	"fmt"
	"sort"

	"github.com/brandwave-data/mixmodel/internal/transform"
)

// Param is a tunable hyperparameter: a single element fixes the value, two
// elements declare a [lower, upper] bound to be searched. Any other length
// is invalid.
type Param []float64

// IsBound reports whether the parameter is a searchable range.
func (p Param) IsBound() bool { return len(p) == 2 }

// Fixed returns the fixed value of a single-element parameter.
func (p Param) Fixed() float64 { return p[0] }

// Bounds returns the lower and upper search bounds.
func (p Param) Bounds() (lo, hi float64) { return p[0], p[1] }

func (p Param) validate(name string) error {
	switch len(p) {
	case 1:
	case 2:
		if p[0] > p[1] {
			return fmt.Errorf("hyperparameter %s: lower bound %v above upper bound %v", name, p[0], p[1])
		}
	default:
		return fmt.Errorf("hyperparameter %s: want 1 (fixed) or 2 (bounds) values, got %d", name, len(p))
	}
	return nil
}

// ChannelHyperparameters configures one paid-media channel. Exactly one
// decay family is populated per run: Thetas for geometric adstock, or
// Shapes+Scales for the Weibull variants. Alphas and Gammas shape the Hill
// saturation; Penalty optionally searches a per-channel penalty factor.
type ChannelHyperparameters struct {
	Thetas  Param `json:"thetas,omitempty"`
	Shapes  Param `json:"shapes,omitempty"`
	Scales  Param `json:"scales,omitempty"`
	Alphas  Param `json:"alphas,omitempty"`
	Gammas  Param `json:"gammas,omitempty"`
	Penalty Param `json:"penalty,omitempty"`
}

// Space is the full hyperparameter space for a run: per-channel transform
// parameters plus the global lambda and (when time-series validation is on)
// train_size bounds.
type Space struct {
	Adstock   transform.AdstockType             `json:"adstock"`
	Channels  map[string]ChannelHyperparameters `json:"channels"`
	Lambda    Param                             `json:"lambda,omitempty"`
	TrainSize Param                             `json:"train_size,omitempty"`
}

// DefaultSpace builds a conventional bounded space for the given channels:
// theta in [0, 0.3] (or shape [0.0001, 2] / scale [0, 0.1] for Weibull),
// alpha in [0.5, 3], gamma in [0.3, 1), lambda searched on [0, 1].
func DefaultSpace(channels []string, adstock transform.AdstockType) *Space {
	s := &Space{
		Adstock:  adstock,
		Channels: make(map[string]ChannelHyperparameters, len(channels)),
		Lambda:   Param{0, 1},
	}
	for _, ch := range channels {
		hp := ChannelHyperparameters{
			Alphas: Param{0.5, 3},
			Gammas: Param{0.3, 0.99},
		}
		if adstock.IsWeibull() {
			hp.Shapes = Param{0.0001, 2}
			hp.Scales = Param{0.01, 0.5}
		} else {
			hp.Thetas = Param{0, 0.3}
		}
		s.Channels[ch] = hp
	}
	return s
}

// Collected is the derived, flattened view of a Space: the bounded
// parameters to optimize (in deterministic name order) and the parameters
// fixed to constants.
type Collected struct {
	Names    []string
	Bounds   [][2]float64
	Fixed    map[string]float64
	AllFixed bool
}

// Dim returns the number of dimensions the optimizer searches.
func (c *Collected) Dim() int { return len(c.Names) }

// Assemble scales a unit-cube vector onto the collected bounds and merges in
// the fixed parameters, producing a fully specified candidate assignment.
func (c *Collected) Assemble(unit []float64) map[string]float64 {
	params := make(map[string]float64, len(c.Names)+len(c.Fixed))
	for name, v := range c.Fixed {
		params[name] = v
	}
	for i, name := range c.Names {
		lo, hi := c.Bounds[i][0], c.Bounds[i][1]
		u := unit[i]
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
		params[name] = lo + u*(hi-lo)
	}
	return params
}

// channelParamSet lists the per-channel parameter slots in canonical order.
type channelParamSlot struct {
	suffix string
	get    func(ChannelHyperparameters) Param
}

var channelSlots = []channelParamSlot{
	{"thetas", func(h ChannelHyperparameters) Param { return h.Thetas }},
	{"shapes", func(h ChannelHyperparameters) Param { return h.Shapes }},
	{"scales", func(h ChannelHyperparameters) Param { return h.Scales }},
	{"alphas", func(h ChannelHyperparameters) Param { return h.Alphas }},
	{"gammas", func(h ChannelHyperparameters) Param { return h.Gammas }},
	{"penalty", func(h ChannelHyperparameters) Param { return h.Penalty }},
}

// Collect validates the space and splits it into bounded and fixed
// parameter sets. tsValidation adds the train_size parameter (defaulting to
// the [0.5, 0.8] search range when unset). Returned names follow the
// "<channel>_<param>" convention plus the globals "lambda" and "train_size".
func (s *Space) Collect(tsValidation bool) (*Collected, error) {
	if !s.Adstock.Valid() {
		return nil, fmt.Errorf("%w: %q", transform.ErrUnsupportedAdstock, s.Adstock)
	}
	if len(s.Channels) == 0 {
		return nil, fmt.Errorf("hyperparameter space has no channels")
	}

	c := &Collected{Fixed: make(map[string]float64)}
	add := func(name string, p Param) error {
		if err := p.validate(name); err != nil {
			return err
		}
		if p.IsBound() {
			lo, hi := p.Bounds()
			if lo == hi {
				c.Fixed[name] = lo
				return nil
			}
			c.Names = append(c.Names, name)
			c.Bounds = append(c.Bounds, [2]float64{lo, hi})
			return nil
		}
		c.Fixed[name] = p.Fixed()
		return nil
	}

	channels := make([]string, 0, len(s.Channels))
	for ch := range s.Channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		hp := s.Channels[ch]
		if err := validateFamily(ch, s.Adstock, hp); err != nil {
			return nil, err
		}
		for _, slot := range channelSlots {
			p := slot.get(hp)
			if p == nil {
				continue
			}
			if err := add(ch+"_"+slot.suffix, p); err != nil {
				return nil, err
			}
		}
	}

	lambda := s.Lambda
	if lambda == nil {
		lambda = Param{0, 1}
	}
	if err := add("lambda", lambda); err != nil {
		return nil, err
	}
	if tsValidation {
		trainSize := s.TrainSize
		if trainSize == nil {
			trainSize = Param{0.5, 0.8}
		}
		if err := add("train_size", trainSize); err != nil {
			return nil, err
		}
	}

	// Bounds were appended channel-by-channel in sorted order followed by the
	// globals, so the ordering is already deterministic.
	c.AllFixed = len(c.Names) == 0
	return c, nil
}

// validateFamily enforces the geometric-XOR-Weibull invariant and the
// presence of the saturation parameters.
func validateFamily(channel string, adstock transform.AdstockType, hp ChannelHyperparameters) error {
	if adstock.IsWeibull() {
		if hp.Shapes == nil || hp.Scales == nil {
			return fmt.Errorf("channel %s: %s adstock requires shapes and scales", channel, adstock)
		}
		if hp.Thetas != nil {
			return fmt.Errorf("channel %s: thetas set but adstock family is %s", channel, adstock)
		}
	} else {
		if hp.Thetas == nil {
			return fmt.Errorf("channel %s: geometric adstock requires thetas", channel)
		}
		if hp.Shapes != nil || hp.Scales != nil {
			return fmt.Errorf("channel %s: shapes/scales set but adstock family is geometric", channel)
		}
	}
	if hp.Alphas == nil || hp.Gammas == nil {
		return fmt.Errorf("channel %s: saturation requires alphas and gammas", channel)
	}
	return nil
}
