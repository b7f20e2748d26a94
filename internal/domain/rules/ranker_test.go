package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	rules := []Rule{
		{TreeID: 0, Importance: 1.5},
		{TreeID: 1, Importance: 3.0},
		{TreeID: 2, Importance: 1.5},
		{TreeID: 3, Importance: 0.2},
		{TreeID: 4, Importance: 3.0},
	}

	tests := []struct {
		name     string
		maxRules int
		want     []int
	}{
		{"truncate", 3, []int{1, 4, 0}},
		{"zero_returns_all", 0, []int{1, 4, 0, 2, 3}},
		{"negative_returns_all", -4, []int{1, 4, 0, 2, 3}},
		{"larger_than_input", 50, []int{1, 4, 0, 2, 3}},
		{"exact", 5, []int{1, 4, 0, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(rules, tt.maxRules)
			ids := make([]int, len(got))
			for i, r := range got {
				ids[i] = r.TreeID
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	// input order is untouched
	assert.Equal(t, 0, rules[0].TreeID)
	assert.Equal(t, 4, rules[4].TreeID)
}

func TestSelect_Empty(t *testing.T) {
	assert.Empty(t, Select(nil, 10))
}
