package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Node is one node of a flattened regression tree. Leaves have Left == -1.
type Node struct {
	Feature     int
	Threshold   float64
	DefaultLeft bool
	MissingType string
	Left        int
	Right       int
	Value       float64
	Cover       float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a regression tree with the root at index 0.
type Tree struct {
	Nodes []Node
}

// TreeEnsemble is a gradient-boosted sum of regression trees read from a
// LightGBM model dump.
type TreeEnsemble struct {
	Trees        []Tree
	FeatureNames []string
	NumFeatures  int
}

type dumpModel struct {
	MaxFeatureIdx int            `json:"max_feature_idx"`
	FeatureNames  []string       `json:"feature_names"`
	AverageOutput bool           `json:"average_output"`
	NumClass      int            `json:"num_class"`
	TreeInfo      []dumpTreeInfo `json:"tree_info"`
}

type dumpTreeInfo struct {
	TreeIndex int       `json:"tree_index"`
	Structure *dumpNode `json:"tree_structure"`
}

type dumpNode struct {
	SplitFeature  *int      `json:"split_feature"`
	Threshold     float64   `json:"threshold"`
	DecisionType  string    `json:"decision_type"`
	DefaultLeft   bool      `json:"default_left"`
	MissingType   string    `json:"missing_type"`
	InternalCount float64   `json:"internal_count"`
	LeafValue     float64   `json:"leaf_value"`
	LeafCount     float64   `json:"leaf_count"`
	Left          *dumpNode `json:"left_child"`
	Right         *dumpNode `json:"right_child"`
}

// ParseLightGBMDump decodes the JSON produced by LightGBM's dump_model.
// Only single-output regression models with numerical splits are supported.
func ParseLightGBMDump(data []byte) (*TreeEnsemble, error) {
	var dm dumpModel
	if err := json.Unmarshal(data, &dm); err != nil {
		return nil, fmt.Errorf("model: decode dump: %w", err)
	}
	if dm.NumClass > 1 {
		return nil, fmt.Errorf("model: %d classes, want a regression model", dm.NumClass)
	}
	if dm.AverageOutput {
		return nil, errors.New("model: averaged (random forest) output is not supported")
	}
	if len(dm.TreeInfo) == 0 {
		return nil, errors.New("model: dump has no trees")
	}

	ens := &TreeEnsemble{FeatureNames: dm.FeatureNames, NumFeatures: dm.MaxFeatureIdx + 1}
	for _, ti := range dm.TreeInfo {
		if ti.Structure == nil {
			return nil, fmt.Errorf("model: tree %d has no structure", ti.TreeIndex)
		}
		var t Tree
		if _, err := t.flatten(ti.Structure, ens.NumFeatures); err != nil {
			return nil, fmt.Errorf("model: tree %d: %w", ti.TreeIndex, err)
		}
		ens.Trees = append(ens.Trees, t)
	}
	return ens, nil
}

// flatten appends n and its subtree in pre-order and returns n's index.
func (t *Tree) flatten(n *dumpNode, numFeatures int) (int, error) {
	idx := len(t.Nodes)
	if n.SplitFeature == nil {
		t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Value: n.LeafValue, Cover: n.LeafCount})
		return idx, nil
	}
	if n.DecisionType != "" && n.DecisionType != "<=" {
		return 0, fmt.Errorf("unsupported decision type %q", n.DecisionType)
	}
	if *n.SplitFeature < 0 || *n.SplitFeature >= numFeatures {
		return 0, fmt.Errorf("split feature %d out of range", *n.SplitFeature)
	}
	if n.Left == nil || n.Right == nil {
		return 0, errors.New("split node without two children")
	}

	t.Nodes = append(t.Nodes, Node{
		Feature:     *n.SplitFeature,
		Threshold:   n.Threshold,
		DefaultLeft: n.DefaultLeft,
		MissingType: n.MissingType,
		Cover:       n.InternalCount,
	})
	left, err := t.flatten(n.Left, numFeatures)
	if err != nil {
		return 0, err
	}
	right, err := t.flatten(n.Right, numFeatures)
	if err != nil {
		return 0, err
	}
	t.Nodes[idx].Left, t.Nodes[idx].Right = left, right
	return idx, nil
}

// GoesLeft reports which child x follows at split node n.
func (n *Node) GoesLeft(x float64) bool {
	switch n.MissingType {
	case "NaN":
		if math.IsNaN(x) {
			return n.DefaultLeft
		}
	case "Zero":
		if math.IsNaN(x) || x == 0 {
			return n.DefaultLeft
		}
	default:
		if math.IsNaN(x) {
			x = 0
		}
	}
	return x <= n.Threshold
}

// Leaf returns the index of the leaf x falls into.
func (t *Tree) Leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		if n.GoesLeft(x[n.Feature]) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// PredictRow sums the leaf values of every tree for x.
func (e *TreeEnsemble) PredictRow(x []float64) float64 {
	var sum float64
	for i := range e.Trees {
		t := &e.Trees[i]
		sum += t.Nodes[t.Leaf(x)].Value
	}
	return sum
}

// Predict implements Model.
func (e *TreeEnsemble) Predict(f Features) float64 {
	return e.PredictRow(f[:])
}
