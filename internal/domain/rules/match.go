package rules

import "sort"

// Matches reports whether every condition holds for the sample.
// A feature the sample does not carry fails the rule.
func (r Rule) Matches(sample map[string]float64) bool {
	for _, c := range r.Conditions {
		value, ok := sample[c.Feature]
		if !ok || !c.Holds(value) {
			return false
		}
	}
	return true
}

// MatchSample returns the topN most important rules that fire for one sample.
// topN <= 0 returns every match.
func MatchSample(rules []Rule, sample map[string]float64, topN int) []Rule {
	var matched []Rule
	for _, r := range rules {
		if r.Matches(sample) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Importance > matched[j].Importance
	})

	if topN > 0 && topN < len(matched) {
		matched = matched[:topN]
	}
	return matched
}
