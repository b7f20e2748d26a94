package rules

import (
	"math"
	"sort"
)

// Signal is the trade direction implied by a rule
type Signal string

const (
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
)

// Strength buckets the magnitude of a rule's prediction
type Strength string

const (
	StrengthWeak     Strength = "Weak"
	StrengthModerate Strength = "Moderate"
	StrengthStrong   Strength = "Strong"
)

// Strength cut-offs in raw prediction units. Tunable, not derived from data.
var (
	StrongThreshold   = 0.002
	ModerateThreshold = 0.001
)

// MaxTraderConditions is the most features a trader-facing rule may constrain
const MaxTraderConditions = 3

// SimplifiedRule is a trader-facing rule with one bound per feature
type SimplifiedRule struct {
	Conditions BoundSet `json:"conditions"`
	Prediction float64  `json:"prediction"`
	Coverage   float64  `json:"coverage"`
	Importance float64  `json:"importance"`
	Signal     Signal   `json:"signal"`
	Strength   Strength `json:"strength"`
}

// ClassifySignal maps a prediction to LONG (strictly positive) or SHORT
func ClassifySignal(prediction float64) Signal {
	if prediction > 0 {
		return SignalLong
	}
	return SignalShort
}

// ClassifyStrength buckets |prediction| against the strength cut-offs
func ClassifyStrength(prediction float64) Strength {
	abs := math.Abs(prediction)
	switch {
	case abs > StrongThreshold:
		return StrengthStrong
	case abs > ModerateThreshold:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// NewSimplifiedRule simplifies a rule's conditions and classifies its signal
func NewSimplifiedRule(rule Rule) SimplifiedRule {
	return SimplifiedRule{
		Conditions: Simplify(rule.Conditions),
		Prediction: rule.Prediction,
		Coverage:   rule.Coverage,
		Importance: rule.Importance,
		Signal:     ClassifySignal(rule.Prediction),
		Strength:   ClassifyStrength(rule.Prediction),
	}
}

// Build filters ranked rules into at most topN trader-facing rules.
// Each rule passes the gates in order: coverage floor, simplification,
// complexity cap, non-empty conditions. topN <= 0 keeps every accepted rule.
func Build(ranked []Rule, topN int, minCoverage float64) ([]SimplifiedRule, error) {
	if err := ValidateMinCoverage(minCoverage); err != nil {
		return nil, err
	}

	accepted := make([]SimplifiedRule, 0, len(ranked))
	for _, rule := range ranked {
		if rule.Coverage < minCoverage {
			continue
		}

		simple := NewSimplifiedRule(rule)
		if len(simple.Conditions) > MaxTraderConditions {
			continue
		}
		if len(simple.Conditions) == 0 {
			continue
		}

		accepted = append(accepted, simple)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Importance > accepted[j].Importance
	})

	if topN > 0 && topN < len(accepted) {
		accepted = accepted[:topN]
	}
	return accepted, nil
}

// ValidateMinCoverage rejects coverage floors outside [0, 1]
func ValidateMinCoverage(minCoverage float64) error {
	if math.IsNaN(minCoverage) || minCoverage < 0 || minCoverage > 1 {
		return &ConfigurationError{Field: "min_coverage", Value: minCoverage, Reason: "must be within [0, 1]"}
	}
	return nil
}
