package rules

import "fmt"

// Walker turns tree structures into raw, unscored rules
type Walker struct {
	FeatureNames []string
}

// NewWalker creates a walker resolving split feature indexes against names
func NewWalker(featureNames []string) *Walker {
	return &Walker{FeatureNames: featureNames}
}

type walkFrame struct {
	node       *Node
	conditions []Condition
	path       string
}

// Walk emits one rule per leaf, depth-first with the <= branch before the > branch.
// Coverage and importance are left at zero for Score to fill in.
func (w *Walker) Walk(root *Node, treeID int) ([]Rule, error) {
	if root == nil {
		return nil, &MalformedTreeError{TreeID: treeID, Reason: "nil root"}
	}

	var rules []Rule
	stack := []walkFrame{{node: root}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := frame.node

		if node.IsLeaf() {
			rules = append(rules, Rule{
				Conditions: frame.conditions,
				Prediction: *node.LeafValue,
				TreeID:     treeID,
			})
			continue
		}

		if !node.IsSplit() {
			return nil, &MalformedTreeError{
				TreeID:    treeID,
				NodeIndex: node.Index,
				Path:      frame.path,
				Reason:    describeMalformed(node),
			}
		}

		idx := *node.FeatureIndex
		if idx < 0 || idx >= len(w.FeatureNames) {
			return nil, &MalformedTreeError{
				TreeID:    treeID,
				NodeIndex: node.Index,
				Path:      frame.path,
				Reason:    fmt.Sprintf("feature index %d outside %d known features", idx, len(w.FeatureNames)),
			}
		}

		feature := w.FeatureNames[idx]
		threshold := *node.Threshold

		left := extend(frame.conditions, Condition{Feature: feature, Operator: OpLessEqual, Threshold: threshold})
		right := extend(frame.conditions, Condition{Feature: feature, Operator: OpGreater, Threshold: threshold})

		// LIFO: push right first so the left subtree is emitted first
		stack = append(stack,
			walkFrame{node: node.Right, conditions: right, path: frame.path + "R"},
			walkFrame{node: node.Left, conditions: left, path: frame.path + "L"},
		)
	}

	return rules, nil
}

// WalkEnsemble walks every tree in order and concatenates their rules
func (w *Walker) WalkEnsemble(trees []Tree) ([]Rule, error) {
	var all []Rule
	for _, tree := range trees {
		treeRules, err := w.Walk(tree.Root, tree.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, treeRules...)
	}
	return all, nil
}

// CountLeaves returns the number of leaves reachable from root
func CountLeaves(root *Node) int {
	if root == nil {
		return 0
	}
	count := 0
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Left == nil && n.Right == nil {
			count++
			continue
		}
		if n.Left != nil {
			stack = append(stack, n.Left)
		}
		if n.Right != nil {
			stack = append(stack, n.Right)
		}
	}
	return count
}

// extend returns a fresh slice so sibling paths never share backing arrays
func extend(conditions []Condition, c Condition) []Condition {
	out := make([]Condition, len(conditions), len(conditions)+1)
	copy(out, conditions)
	return append(out, c)
}

func describeMalformed(n *Node) string {
	switch {
	case n.LeafValue != nil:
		return "leaf value combined with split fields"
	case n.FeatureIndex == nil:
		return "split without feature index"
	case n.Threshold == nil:
		return "split without threshold"
	case n.Left == nil && n.Right == nil:
		return "split without children"
	case n.Left == nil:
		return "split without left child"
	default:
		return "split without right child"
	}
}
