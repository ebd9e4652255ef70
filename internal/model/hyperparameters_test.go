package model

import (
	"math"
	"strings"
	"testing"

	"github.com/brandwave-data/mixmodel/internal/transform"
)

func TestDefaultSpaceGeometric(t *testing.T) {
	s := DefaultSpace([]string{"tv", "search"}, transform.AdstockGeometric)
	c, err := s.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	// 3 bounded params per channel plus lambda.
	if got := c.Dim(); got != 7 {
		t.Fatalf("dim: got %d, want 7", got)
	}
	// Channels are collected in sorted order, globals last.
	want := []string{
		"search_thetas", "search_alphas", "search_gammas",
		"tv_thetas", "tv_alphas", "tv_gammas",
		"lambda",
	}
	for i, name := range want {
		if c.Names[i] != name {
			t.Fatalf("names: got %v, want %v", c.Names, want)
		}
	}
	if c.AllFixed {
		t.Error("bounded space reported as all-fixed")
	}
}

func TestDefaultSpaceWeibull(t *testing.T) {
	s := DefaultSpace([]string{"tv"}, transform.AdstockWeibullPDF)
	c, err := s.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	// shapes, scales, alphas, gammas plus lambda.
	if got := c.Dim(); got != 5 {
		t.Fatalf("dim: got %d, want 5", got)
	}
	hp := s.Channels["tv"]
	if hp.Thetas != nil {
		t.Error("weibull space should not carry thetas")
	}
}

func TestCollectTrainSize(t *testing.T) {
	s := DefaultSpace([]string{"tv"}, transform.AdstockGeometric)
	c, err := s.Collect(true)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for i, name := range c.Names {
		if name == "train_size" {
			found = true
			if c.Bounds[i] != [2]float64{0.5, 0.8} {
				t.Errorf("train_size bounds: got %v", c.Bounds[i])
			}
		}
	}
	if !found {
		t.Error("train_size not collected with validation enabled")
	}
}

func TestCollectFixedParams(t *testing.T) {
	s := &Space{
		Adstock: transform.AdstockGeometric,
		Channels: map[string]ChannelHyperparameters{
			"tv": {
				Thetas: Param{0.2},
				Alphas: Param{1, 1}, // equal bounds collapse to fixed
				Gammas: Param{0.3, 0.9},
			},
		},
		Lambda: Param{0.5},
	}
	c, err := s.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Dim(); got != 1 {
		t.Fatalf("dim: got %d, want 1", got)
	}
	if c.Fixed["tv_thetas"] != 0.2 {
		t.Errorf("fixed theta: got %v", c.Fixed["tv_thetas"])
	}
	if c.Fixed["tv_alphas"] != 1 {
		t.Errorf("collapsed bounds: got %v", c.Fixed["tv_alphas"])
	}
	if c.Fixed["lambda"] != 0.5 {
		t.Errorf("fixed lambda: got %v", c.Fixed["lambda"])
	}
}

func TestCollectAllFixed(t *testing.T) {
	s := &Space{
		Adstock: transform.AdstockGeometric,
		Channels: map[string]ChannelHyperparameters{
			"tv": {Thetas: Param{0.1}, Alphas: Param{2}, Gammas: Param{0.5}},
		},
		Lambda: Param{0.3},
	}
	c, err := s.Collect(false)
	if err != nil {
		t.Fatal(err)
	}
	if !c.AllFixed {
		t.Error("fully fixed space not detected")
	}
	params := c.Assemble(nil)
	if len(params) != 4 {
		t.Errorf("assembled params: got %d, want 4", len(params))
	}
}

func TestCollectFamilyValidation(t *testing.T) {
	cases := []struct {
		name string
		hp   ChannelHyperparameters
		ads  transform.AdstockType
		want string
	}{
		{
			"geometric missing thetas",
			ChannelHyperparameters{Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockGeometric,
			"requires thetas",
		},
		{
			"geometric with shapes",
			ChannelHyperparameters{Thetas: Param{0, 0.3}, Shapes: Param{0.1, 2}, Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockGeometric,
			"adstock family is geometric",
		},
		{
			"weibull missing scales",
			ChannelHyperparameters{Shapes: Param{0.1, 2}, Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockWeibullCDF,
			"requires shapes and scales",
		},
		{
			"weibull with thetas",
			ChannelHyperparameters{Thetas: Param{0, 0.3}, Shapes: Param{0.1, 2}, Scales: Param{0.01, 0.5}, Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockWeibullCDF,
			"thetas set",
		},
		{
			"missing saturation",
			ChannelHyperparameters{Thetas: Param{0, 0.3}},
			transform.AdstockGeometric,
			"requires alphas and gammas",
		},
		{
			"inverted bounds",
			ChannelHyperparameters{Thetas: Param{0.5, 0.1}, Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockGeometric,
			"lower bound",
		},
		{
			"wrong arity",
			ChannelHyperparameters{Thetas: Param{0.1, 0.2, 0.3}, Alphas: Param{0.5, 3}, Gammas: Param{0.3, 0.9}},
			transform.AdstockGeometric,
			"want 1 (fixed) or 2 (bounds)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Space{Adstock: tc.ads, Channels: map[string]ChannelHyperparameters{"tv": tc.hp}}
			_, err := s.Collect(false)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCollectRejectsBadAdstock(t *testing.T) {
	s := &Space{Adstock: "exponential", Channels: map[string]ChannelHyperparameters{"tv": {}}}
	if _, err := s.Collect(false); err == nil {
		t.Error("expected error for unknown adstock family")
	}
}

func TestAssembleScalesAndClamps(t *testing.T) {
	c := &Collected{
		Names:  []string{"a", "b", "c"},
		Bounds: [][2]float64{{0, 10}, {1, 3}, {-5, 5}},
		Fixed:  map[string]float64{"d": 7},
	}
	params := c.Assemble([]float64{0.5, 2, -1})
	if params["a"] != 5 {
		t.Errorf("a: got %v, want 5", params["a"])
	}
	if params["b"] != 3 {
		t.Errorf("b above unit range should clamp to upper bound, got %v", params["b"])
	}
	if params["c"] != -5 {
		t.Errorf("c below unit range should clamp to lower bound, got %v", params["c"])
	}
	if params["d"] != 7 {
		t.Errorf("d: got %v, want 7", params["d"])
	}
	if math.IsNaN(params["a"]) {
		t.Error("unexpected NaN")
	}
}
