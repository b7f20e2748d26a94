package rules

import "math"

// Direction of a simplified per-feature bound
type Direction string

const (
	DirLE Direction = "<="
	DirGT Direction = ">"
)

// Operator returns the split operator matching the bound direction
func (d Direction) Operator() Operator {
	if d == DirGT {
		return OpGreater
	}
	return OpLessEqual
}

// Bound is the single surviving constraint on one feature
type Bound struct {
	Direction Direction `json:"direction"`
	Threshold float64   `json:"threshold"`
}

// FeatureBound pairs a feature with its bound
type FeatureBound struct {
	Feature string `json:"feature"`
	Bound
}

// BoundSet is an ordered feature -> bound mapping with at most one entry per feature.
// Order follows the first appearance of each feature in the source conditions.
type BoundSet []FeatureBound

// Get returns the bound for feature if present
func (s BoundSet) Get(feature string) (Bound, bool) {
	for _, fb := range s {
		if fb.Feature == feature {
			return fb.Bound, true
		}
	}
	return Bound{}, false
}

// Features lists the constrained features in order
func (s BoundSet) Features() []string {
	out := make([]string, len(s))
	for i, fb := range s {
		out[i] = fb.Feature
	}
	return out
}

// Conditions expands the set back into one condition per feature
func (s BoundSet) Conditions() []Condition {
	out := make([]Condition, len(s))
	for i, fb := range s {
		out[i] = Condition{Feature: fb.Feature, Operator: fb.Direction.Operator(), Threshold: fb.Threshold}
	}
	return out
}

// Simplify collapses repeated bounds on a feature into the most restrictive one.
//
// When a feature has any > condition the largest > threshold wins and every <=
// condition on that feature is dropped, so a two-sided range such as
// 10 < x <= 20 collapses to x > 10. Downstream rendering relies on this
// one-direction-wins precedence; true interval constraints are not represented.
func Simplify(conditions []Condition) BoundSet {
	type group struct {
		greater   []float64
		lessEqual []float64
	}

	var order []string
	groups := make(map[string]*group)

	for _, c := range conditions {
		g, ok := groups[c.Feature]
		if !ok {
			g = &group{}
			groups[c.Feature] = g
			order = append(order, c.Feature)
		}
		switch c.Operator {
		case OpGreater:
			g.greater = append(g.greater, c.Threshold)
		case OpLessEqual:
			g.lessEqual = append(g.lessEqual, c.Threshold)
		}
	}

	simplified := make(BoundSet, 0, len(order))
	for _, feature := range order {
		g := groups[feature]
		switch {
		case len(g.greater) > 0:
			simplified = append(simplified, FeatureBound{Feature: feature, Bound: Bound{Direction: DirGT, Threshold: maxOf(g.greater)}})
		case len(g.lessEqual) > 0:
			simplified = append(simplified, FeatureBound{Feature: feature, Bound: Bound{Direction: DirLE, Threshold: minOf(g.lessEqual)}})
		}
	}
	return simplified
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		if v < m {
			m = v
		}
	}
	return m
}
