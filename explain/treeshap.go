// Package explain computes SHAP attributions for tree ensembles.
package explain

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"car-dashboard/predictor"
)

// ErrNoModel is returned when the explainer has no trees to walk.
var ErrNoModel = errors.New("explain: model has no trees")

// Values holds SHAP values for a feature matrix.
type Values struct {
	Values       *mat.Dense // samples x features
	BaseValue    float64    // expected model output
	FeatureNames []string
}

// TreeSHAP computes exact path-dependent SHAP values using node covers as
// the background distribution.
type TreeSHAP struct {
	model *predictor.TreeEnsemble
}

// NewTreeSHAP creates a TreeSHAP explainer for model.
func NewTreeSHAP(model *predictor.TreeEnsemble) *TreeSHAP {
	return &TreeSHAP{model: model}
}

// Calculate returns SHAP values for every row of X.
func (ts *TreeSHAP) Calculate(X mat.Matrix) (*Values, error) {
	if ts.model == nil || len(ts.model.Trees) == 0 {
		return nil, ErrNoModel
	}
	rows, cols := X.Dims()
	if cols != ts.model.NumFeatures {
		return nil, fmt.Errorf("explain: matrix has %d columns, model expects %d", cols, ts.model.NumFeatures)
	}

	out := &mat.Dense{}
	if rows > 0 {
		out = mat.NewDense(rows, cols, nil)
	}
	sample := make([]float64, cols)
	phi := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(sample, i, X)
		for j := range phi {
			phi[j] = 0
		}
		for t := range ts.model.Trees {
			tree := &ts.model.Trees[t]
			treeShap(tree, sample, phi, 0, nil, 0, 1, 1, -1)
		}
		out.SetRow(i, phi)
	}

	return &Values{
		Values:       out,
		BaseValue:    ts.BaseValue(),
		FeatureNames: ts.model.FeatureNames,
	}, nil
}

// Explain returns the attribution matrix and base value for X.
func (ts *TreeSHAP) Explain(X *mat.Dense) (*mat.Dense, float64, error) {
	v, err := ts.Calculate(X)
	if err != nil {
		return nil, 0, err
	}
	return v.Values, v.BaseValue, nil
}

// BaseValue is the cover-weighted mean output of the ensemble.
func (ts *TreeSHAP) BaseValue() float64 {
	var base float64
	for t := range ts.model.Trees {
		tree := &ts.model.Trees[t]
		base += expectedValue(tree, 0)
	}
	return base
}

func expectedValue(tree *predictor.Tree, i int) float64 {
	n := &tree.Nodes[i]
	if n.IsLeaf() {
		return n.Value
	}
	lc, rc := tree.Nodes[n.Left].Cover, tree.Nodes[n.Right].Cover
	lv, rv := expectedValue(tree, n.Left), expectedValue(tree, n.Right)
	if lc+rc == 0 {
		return (lv + rv) / 2
	}
	return (lv*lc + rv*rc) / (lc + rc)
}

type pathElem struct {
	feature int
	zero    float64 // fraction of background paths flowing through
	one     float64 // 1 if x flows through, else 0
	weight  float64
}

// treeShap walks node i, carrying the path of features split on so far.
// parent holds depth valid elements; the new element for the edge into i is
// appended at index depth.
func treeShap(tree *predictor.Tree, x, phi []float64, i int, parent []pathElem, depth int, zero, one float64, feature int) {
	path := make([]pathElem, depth+1)
	copy(path, parent[:depth])
	extendPath(path, depth, zero, one, feature)

	n := &tree.Nodes[i]
	if n.IsLeaf() {
		for k := 1; k <= depth; k++ {
			w := unwoundPathSum(path, depth, k)
			e := path[k]
			phi[e.feature] += w * (e.one - e.zero) * n.Value
		}
		return
	}

	hot, cold := n.Right, n.Left
	if n.GoesLeft(x[n.Feature]) {
		hot, cold = n.Left, n.Right
	}
	hotZero, coldZero := 0.5, 0.5
	if n.Cover > 0 {
		hotZero = tree.Nodes[hot].Cover / n.Cover
		coldZero = tree.Nodes[cold].Cover / n.Cover
	}

	inZero, inOne := 1.0, 1.0
	for k := 1; k <= depth; k++ {
		if path[k].feature == n.Feature {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	treeShap(tree, x, phi, hot, path, depth+1, hotZero*inZero, inOne, n.Feature)
	treeShap(tree, x, phi, cold, path, depth+1, coldZero*inZero, 0, n.Feature)
}

func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[0].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElem, depth, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum is the total weight of the path with element k removed.
func unwoundPathSum(path []pathElem, depth, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth + 1)
	var total float64
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].weight / zero / (float64(depth-i) / d)
		}
	}
	return total
}
