package rules

import "sort"

// Select orders rules by importance (ties keep input order) and keeps the
// first maxRules. maxRules <= 0 keeps everything.
func Select(rules []Rule, maxRules int) []Rule {
	ranked := make([]Rule, len(rules))
	copy(ranked, rules)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})

	if maxRules > 0 && maxRules < len(ranked) {
		ranked = ranked[:maxRules]
	}
	return ranked
}
