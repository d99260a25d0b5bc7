package services

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// treeNode is a single node of a CART regression tree.
// A node with no children is a leaf and predicts Value.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// RandomForestRegressor is a bootstrap ensemble of CART regression trees.
// With a fixed Seed, Fit is fully deterministic: training twice on the same
// data produces identical predictions.
// Fields are exported so the fitted ensemble can be serialized as an artifact.
type RandomForestRegressor struct {
	NumTrees int         `json:"numTrees"`
	MaxDepth int         `json:"maxDepth"`
	Seed     int64       `json:"seed"`
	Trees    []*treeNode `json:"trees"`
}

// NewRandomForestRegressor creates an untrained forest.
func NewRandomForestRegressor(numTrees int, seed int64) *RandomForestRegressor {
	return &RandomForestRegressor{
		NumTrees: numTrees,
		MaxDepth: 10,
		Seed:     seed,
	}
}

// Fit trains the ensemble on feature matrix X against labels y.
// Each tree is grown on a bootstrap sample drawn from a PRNG seeded with Seed,
// so tree construction order is deterministic.
func (f *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("学習データが不正です: X=%d, y=%d", len(X), len(y))
	}
	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*treeNode, 0, f.NumTrees)

	n := len(X)
	for t := 0; t < f.NumTrees; t++ {
		// bootstrap sample with replacement
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, growTree(X, y, idx, 0, f.MaxDepth))
	}
	return nil
}

// Predict returns the mean prediction of all trees for a single feature vector.
func (f *RandomForestRegressor) Predict(row []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, fmt.Errorf("モデルが未学習です")
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += predictTree(tree, row)
	}
	return sum / float64(len(f.Trees)), nil
}

// growTree recursively builds a regression tree over the sample indices idx.
// Splits minimize the total sum of squared errors of the two children.
func growTree(X [][]float64, y []float64, idx []int, depth, maxDepth int) *treeNode {
	mean := 0.0
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))

	if depth >= maxDepth || len(idx) < 2 || isConstant(y, idx) {
		return &treeNode{Feature: -1, Value: mean}
	}

	feature, threshold, ok := bestSplit(X, y, idx)
	if !ok {
		return &treeNode{Feature: -1, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Feature: -1, Value: mean}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Value:     mean,
		Left:      growTree(X, y, left, depth+1, maxDepth),
		Right:     growTree(X, y, right, depth+1, maxDepth),
	}
}

// bestSplit scans every feature for the threshold with minimal child SSE.
// Prefix sums over value-sorted samples make each feature scan O(n log n).
func bestSplit(X [][]float64, y []float64, idx []int) (int, float64, bool) {
	dims := len(X[idx[0]])
	bestSSE := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	type pair struct {
		v float64
		t float64
	}
	for j := 0; j < dims; j++ {
		pairs := make([]pair, len(idx))
		for k, i := range idx {
			pairs[k] = pair{v: X[i][j], t: y[i]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].v < pairs[b].v })

		var totalSum, totalSq float64
		for _, p := range pairs {
			totalSum += p.t
			totalSq += p.t * p.t
		}

		var leftSum, leftSq float64
		n := len(pairs)
		for k := 0; k < n-1; k++ {
			leftSum += pairs[k].t
			leftSq += pairs[k].t * pairs[k].t
			// only split between distinct values
			if pairs[k+1].v <= pairs[k].v {
				continue
			}
			nl := float64(k + 1)
			nr := float64(n - k - 1)
			sseLeft := leftSq - leftSum*leftSum/nl
			rightSum := totalSum - leftSum
			sseRight := (totalSq - leftSq) - rightSum*rightSum/nr
			sse := sseLeft + sseRight
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = j
				bestThreshold = (pairs[k].v + pairs[k+1].v) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// predictTree walks a tree down to a leaf for the given feature vector.
func predictTree(node *treeNode, row []float64) float64 {
	for node.Left != nil && node.Right != nil {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// isConstant reports whether all selected labels are identical.
func isConstant(y []float64, idx []int) bool {
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}
