package repository

import (
	"math"
	"time"

	"StratTune/internal/domain/models"
)

// Param is one tunable threshold with its auto-apply guardrails. Step is
// signed: negative steps loosen a floor, positive steps loosen a ceiling.
type Param struct {
	Name      string
	Default   float64
	Low       float64
	High      float64
	Step      float64
	Tolerance float64
	Cooldown  time.Duration
	DailyCap  int
}

// RuleKind selects which event family advances a rule's streak.
type RuleKind int

const (
	RuleSample RuleKind = iota
	RuleTrade
	RuleBlock
)

// Compare directions for sample rules.
type Compare int

const (
	CompareFloor Compare = iota
	CompareCeiling
)

// Rule maps a triggering condition to the parameter it steps. Streaks are
// counted per rule key; two rules may step the same parameter.
type Rule struct {
	Key     string
	Param   string
	Kind    RuleKind
	Limit   int
	Compare Compare
	// Metric extracts the compared value from a sample (sample rules only).
	Metric func(s *models.DiagnosticSample) float64
	// TradeTrips reports whether a completed trade advances the streak.
	TradeTrips func(t *models.Trade) bool
	// BlockTrips reports whether a blocked entry advances the streak.
	BlockTrips func(b *models.EntryBlock) bool
	// Reason format: metric value, effective threshold, streak length.
	Reason string
}

// Violated reports whether a sample violates the rule against the effective
// threshold, honoring the parameter's tolerance band.
func (r *Rule) Violated(s *models.DiagnosticSample, effective, tolerance float64) bool {
	if r.Metric == nil {
		return false
	}
	v := r.Metric(s)
	if r.Compare == CompareCeiling {
		return v > effective+tolerance
	}
	return v < effective-tolerance
}

var params = []Param{
	{Name: "min_gradient", Default: 0.30, Low: 0.10, High: 0.60, Step: -0.05, Tolerance: 0.02, Cooldown: 30 * time.Minute, DailyCap: 5},
	{Name: "min_trend_strength", Default: 25, Low: 15, High: 40, Step: -2, Tolerance: 1, Cooldown: 30 * time.Minute, DailyCap: 5},
	{Name: "min_pull_strength", Default: 20, Low: 10, High: 35, Step: -2, Tolerance: 1, Cooldown: 30 * time.Minute, DailyCap: 5},
	{Name: "max_volatility", Default: 2.5, Low: 1.0, High: 5.0, Step: 0.25, Tolerance: 0.1, Cooldown: 30 * time.Minute, DailyCap: 5},
	{Name: "min_volume", Default: 1000, Low: 200, High: 5000, Step: -100, Tolerance: 50, Cooldown: 30 * time.Minute, DailyCap: 5},
	{Name: "profit_target", Default: 2.0, Low: 1.0, High: 4.0, Step: 0.25, Tolerance: 0, Cooldown: time.Hour, DailyCap: 3},
}

// Rules in declaration order; the engine evaluates them in this order.
var rules = []Rule{
	{
		Key: "min_gradient", Param: "min_gradient", Kind: RuleSample, Limit: 3,
		Compare: CompareFloor,
		Metric:  func(s *models.DiagnosticSample) float64 { return math.Abs(s.Gradient) },
		Reason:  "gradient %.3f below min_gradient %.2f for %d bars",
	},
	{
		Key: "min_trend_strength", Param: "min_trend_strength", Kind: RuleSample, Limit: 4,
		Compare: CompareFloor,
		Metric:  func(s *models.DiagnosticSample) float64 { return s.TrendStrength },
		Reason:  "trend strength %.1f below min_trend_strength %.1f for %d bars",
	},
	{
		Key: "min_pull_strength", Param: "min_pull_strength", Kind: RuleSample, Limit: 4,
		Compare: CompareFloor,
		Metric:  func(s *models.DiagnosticSample) float64 { return s.PullStrength },
		Reason:  "pull strength %.1f below min_pull_strength %.1f for %d bars",
	},
	{
		Key: "max_volatility", Param: "max_volatility", Kind: RuleSample, Limit: 4,
		Compare: CompareCeiling,
		Metric:  func(s *models.DiagnosticSample) float64 { return s.Volatility },
		Reason:  "volatility %.2f above max_volatility %.2f for %d bars",
	},
	{
		Key: "min_volume", Param: "min_volume", Kind: RuleSample, Limit: 5,
		Compare: CompareFloor,
		Metric:  func(s *models.DiagnosticSample) float64 { return s.Volume },
		Reason:  "volume %.0f below min_volume %.0f for %d bars",
	},
	{
		Key: "profit_capture", Param: "profit_target", Kind: RuleTrade, Limit: 3,
		TradeTrips: func(t *models.Trade) bool {
			return t.MaxFavorable > 0 && t.CaptureRatio() < 0.4
		},
		Reason: "capture ratio %.2f under profit_target %.2f for %d trades",
	},
	{
		Key: "missed_entry", Param: "min_gradient", Kind: RuleBlock, Limit: 2,
		BlockTrips: func(b *models.EntryBlock) bool {
			return b.FavorableMove >= 0.5
		},
		Reason: "blocked entry missed %.2f move at min_gradient %.2f, %d in a row",
	},
}

// Params returns the tunable parameter table in declaration order.
func Params() []Param { return params }

// Rules returns the streak rule table in declaration order.
func Rules() []Rule { return rules }

// ParamByName looks a parameter up by name.
func ParamByName(name string) (Param, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Defaults returns the compiled-in default for every tunable parameter.
func Defaults() map[string]float64 {
	out := make(map[string]float64, len(params))
	for _, p := range params {
		out[p.Name] = p.Default
	}
	return out
}
