package ensemble

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

// Ensemble is a parsed model dump ready for the path walker
type Ensemble struct {
	Objective    string       `json:"objective"`
	NumClass     int          `json:"num_class"`
	FeatureNames []string     `json:"feature_names"`
	Trees        []rules.Tree `json:"trees"`
}

// NumLeaves counts leaves over every tree
func (e *Ensemble) NumLeaves() int {
	total := 0
	for _, t := range e.Trees {
		total += rules.CountLeaves(t.Root)
	}
	return total
}

// dump mirrors the subset of LightGBM's dump_model() output we consume
type dump struct {
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	NumClass     int        `json:"num_class"`
	Objective    string     `json:"objective"`
	FeatureNames []string   `json:"feature_names"`
	TreeInfo     []treeInfo `json:"tree_info"`
}

type treeInfo struct {
	TreeIndex     *int     `json:"tree_index"`
	NumLeaves     int      `json:"num_leaves"`
	TreeStructure *rawNode `json:"tree_structure"`
}

type rawNode struct {
	SplitIndex   *int            `json:"split_index"`
	SplitFeature *int            `json:"split_feature"`
	Threshold    json.RawMessage `json:"threshold"`
	DecisionType string          `json:"decision_type"`
	LeftChild    *rawNode        `json:"left_child"`
	RightChild   *rawNode        `json:"right_child"`
	LeafIndex    *int            `json:"leaf_index"`
	LeafValue    *float64        `json:"leaf_value"`
}

// Option adjusts how a dump is interpreted
type Option func(*loadOptions)

type loadOptions struct {
	featureNames []string
}

// WithFeatureNames overrides the feature names stored in the dump
func WithFeatureNames(names []string) Option {
	return func(o *loadOptions) {
		o.featureNames = names
	}
}

// Parse decodes a LightGBM dump_model() JSON document
func Parse(r io.Reader, opts ...Option) (*Ensemble, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode model dump: %w", err)
	}

	names := d.FeatureNames
	if len(o.featureNames) > 0 {
		names = o.featureNames
	}

	e := &Ensemble{
		Objective:    d.Objective,
		NumClass:     d.NumClass,
		FeatureNames: names,
		Trees:        make([]rules.Tree, 0, len(d.TreeInfo)),
	}

	for i, info := range d.TreeInfo {
		id := i
		if info.TreeIndex != nil {
			id = *info.TreeIndex
		}
		if info.TreeStructure == nil {
			return nil, &rules.MalformedTreeError{TreeID: id, Reason: "missing tree_structure"}
		}

		root, err := convert(info.TreeStructure, id)
		if err != nil {
			return nil, err
		}
		e.Trees = append(e.Trees, rules.Tree{ID: id, Root: root})
	}

	return e, nil
}

type frame struct {
	raw  *rawNode
	path string
	slot **rules.Node
}

// convert maps a raw dump tree onto walker nodes, rejecting split kinds other
// than numeric "<=" so the walker never sees them. Nodes are visited left
// first with an explicit stack, so dump depth is bounded by the decoder only.
func convert(root *rawNode, treeID int) (*rules.Node, error) {
	var out *rules.Node
	stack := []frame{{raw: root, slot: &out}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, err := convertNode(f.raw, treeID, f.path)
		if err != nil {
			return nil, err
		}
		*f.slot = node

		if f.raw.RightChild != nil {
			stack = append(stack, frame{raw: f.raw.RightChild, path: f.path + "R", slot: &node.Right})
		}
		if f.raw.LeftChild != nil {
			stack = append(stack, frame{raw: f.raw.LeftChild, path: f.path + "L", slot: &node.Left})
		}
	}

	return out, nil
}

func convertNode(raw *rawNode, treeID int, path string) (*rules.Node, error) {
	node := &rules.Node{
		FeatureIndex: raw.SplitFeature,
		LeafValue:    raw.LeafValue,
	}
	switch {
	case raw.SplitIndex != nil:
		node.Index = *raw.SplitIndex
	case raw.LeafIndex != nil:
		node.Index = *raw.LeafIndex
	}

	malformed := func(reason string) error {
		return &rules.MalformedTreeError{TreeID: treeID, NodeIndex: node.Index, Path: path, Reason: reason}
	}

	if raw.DecisionType != "" && raw.DecisionType != string(rules.OpLessEqual) {
		return nil, malformed(fmt.Sprintf("unsupported decision_type %q", raw.DecisionType))
	}

	if len(raw.Threshold) > 0 && string(raw.Threshold) != "null" {
		threshold, err := parseThreshold(raw.Threshold)
		if err != nil {
			return nil, malformed(err.Error())
		}
		node.Threshold = &threshold
	}

	return node, nil
}

func parseThreshold(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	// some writers quote numeric thresholds; categorical ones look like "1||3"
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("threshold %s is not a number", string(raw))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("threshold %q is not numeric", s)
	}
	return f, nil
}
