package rules

import "math"

// Importance weights
const (
	PredictionWeight = 10.0
	CoverageWeight   = 5.0
	SimplicityWeight = 1.0

	// Per-condition decay of the simplicity bonus
	SimplicityDecay = 0.1

	// Applied when a rule covers fewer than min_samples rows
	ThinCoveragePenalty = 0.1
)

// Importance computes the composite ranking score before any sample penalty
func Importance(prediction, coverage float64, numConditions int) float64 {
	predictionStrength := math.Abs(prediction)
	simplicityBonus := 1.0 / (1.0 + SimplicityDecay*float64(numConditions))

	return PredictionWeight*predictionStrength +
		CoverageWeight*coverage +
		SimplicityWeight*simplicityBonus
}

// CoveredRows counts the rows that satisfy every condition of the rule.
// A condition on a column the matrix does not have fails every row.
func CoveredRows(conditions []Condition, matrix FeatureMatrix) int {
	total := matrix.NumRows()
	if total == 0 {
		return 0
	}

	mask := make([]bool, total)
	for i := range mask {
		mask[i] = true
	}

	for _, cond := range conditions {
		values, ok := matrix.Column(cond.Feature)
		if !ok {
			return 0
		}
		for i := range mask {
			if mask[i] && (i >= len(values) || !cond.Holds(values[i])) {
				mask[i] = false
			}
		}
	}

	covered := 0
	for _, m := range mask {
		if m {
			covered++
		}
	}
	return covered
}

// ScoreRule returns a copy of rule with coverage and importance attached
func ScoreRule(rule Rule, matrix FeatureMatrix, minSamples int) Rule {
	covered := CoveredRows(rule.Conditions, matrix)

	scored := rule
	if total := matrix.NumRows(); total > 0 {
		scored.Coverage = float64(covered) / float64(total)
	} else {
		scored.Coverage = 0
	}

	scored.Importance = Importance(scored.Prediction, scored.Coverage, len(scored.Conditions))
	if covered < minSamples {
		scored.Importance *= ThinCoveragePenalty
	}
	return scored
}

// Score computes coverage and importance for every rule against the matrix.
// The input slice is not modified.
func Score(rules []Rule, matrix FeatureMatrix, minSamples int) ([]Rule, error) {
	if err := ValidateMinSamples(minSamples); err != nil {
		return nil, err
	}

	scored := make([]Rule, len(rules))
	for i, r := range rules {
		scored[i] = ScoreRule(r, matrix, minSamples)
	}
	return scored, nil
}

// ValidateMinSamples rejects negative sample thresholds
func ValidateMinSamples(minSamples int) error {
	if minSamples < 0 {
		return &ConfigurationError{Field: "min_samples", Value: minSamples, Reason: "must be >= 0"}
	}
	return nil
}
