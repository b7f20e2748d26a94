package rules

// Operator is the comparison used by a split condition
type Operator string

const (
	OpLessEqual Operator = "<="
	OpGreater   Operator = ">"
)

// Node is one node of a fitted tree. Internal nodes carry a split
// (FeatureIndex, Threshold, Left, Right); leaves carry LeafValue only.
type Node struct {
	Index        int      `json:"index"`
	FeatureIndex *int     `json:"feature_index,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	Left         *Node    `json:"left,omitempty"`
	Right        *Node    `json:"right,omitempty"`
	LeafValue    *float64 `json:"leaf_value,omitempty"`
}

// IsLeaf reports whether the node only carries a leaf value
func (n *Node) IsLeaf() bool {
	return n.LeafValue != nil && n.FeatureIndex == nil && n.Threshold == nil && n.Left == nil && n.Right == nil
}

// IsSplit reports whether the node is a complete binary split
func (n *Node) IsSplit() bool {
	return n.LeafValue == nil && n.FeatureIndex != nil && n.Threshold != nil && n.Left != nil && n.Right != nil
}

// Tree is one member of an ensemble
type Tree struct {
	ID   int   `json:"tree_id"`
	Root *Node `json:"root"`
}

// Condition is one edge traversed on a root-to-leaf path
type Condition struct {
	Feature   string   `json:"feature"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

// Holds reports whether value satisfies the condition. NaN never does.
func (c Condition) Holds(value float64) bool {
	switch c.Operator {
	case OpLessEqual:
		return value <= c.Threshold
	case OpGreater:
		return value > c.Threshold
	default:
		return false
	}
}

// Rule is a conjunction of conditions leading to a leaf prediction
type Rule struct {
	Conditions []Condition `json:"conditions"`
	Prediction float64     `json:"prediction"`
	Coverage   float64     `json:"coverage"`
	Importance float64     `json:"importance"`
	TreeID     int         `json:"tree_id"`
}

// FeatureMatrix is the read-only training data used for coverage
type FeatureMatrix interface {
	NumRows() int
	Column(feature string) ([]float64, bool)
}
