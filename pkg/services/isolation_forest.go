package services

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// isoNode is a node of an isolation tree. Leaves keep the number of samples
// that reached them so the expected remaining path length can be added.
type isoNode struct {
	Feature   int
	Threshold float64
	Size      int
	Left      *isoNode
	Right     *isoNode
}

// IsolationForest is an unsupervised outlier scorer. Points that isolate in
// few random splits receive scores close to 1, inliers scores near 0.5.
// A fixed Seed makes fitting and scoring deterministic.
type IsolationForest struct {
	NumTrees      int
	SampleSize    int
	Contamination float64
	Seed          int64

	trees []*isoNode
}

// NewIsolationForest creates a forest of 100 trees with the given assumed
// contamination fraction.
func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      100,
		SampleSize:    256,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit builds the isolation trees over X.
func (f *IsolationForest) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("学習データが空です")
	}
	sample := f.SampleSize
	if sample > len(X) {
		sample = len(X)
	}
	f.SampleSize = sample
	heightLimit := int(math.Ceil(math.Log2(float64(sample))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	rng := rand.New(rand.NewSource(f.Seed))
	f.trees = make([]*isoNode, 0, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		idx := rng.Perm(len(X))[:sample]
		f.trees = append(f.trees, growIsoTree(X, idx, 0, heightLimit, rng))
	}
	return nil
}

// Score returns the anomaly score of a single point in (0, 1).
func (f *IsolationForest) Score(row []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, fmt.Errorf("モデルが未学習です")
	}
	sample := f.SampleSize
	var total float64
	for _, tree := range f.trees {
		total += isoPathLength(tree, row, 0)
	}
	avgPath := total / float64(len(f.trees))
	return math.Pow(2, -avgPath/averagePathLength(sample)), nil
}

// FitPredict fits the forest on X and flags the ceil(contamination*n) points
// with the highest anomaly scores as outliers.
func (f *IsolationForest) FitPredict(X [][]float64) ([]bool, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}

	scores := make([]float64, len(X))
	for i, row := range X {
		s, err := f.Score(row)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}

	k := int(math.Ceil(f.Contamination * float64(len(X))))
	if k > len(X) {
		k = len(X)
	}
	flags := make([]bool, len(X))
	if k == 0 {
		return flags, nil
	}

	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	for _, i := range order[:k] {
		flags[i] = true
	}
	return flags, nil
}

// growIsoTree recursively partitions the sample with random axis-aligned cuts.
func growIsoTree(X [][]float64, idx []int, depth, heightLimit int, rng *rand.Rand) *isoNode {
	if depth >= heightLimit || len(idx) <= 1 {
		return &isoNode{Feature: -1, Size: len(idx)}
	}

	// features that still have spread in this partition
	dims := len(X[idx[0]])
	var splittable []int
	for j := 0; j < dims; j++ {
		lo, hi := isoRange(X, idx, j)
		if hi > lo {
			splittable = append(splittable, j)
		}
	}
	if len(splittable) == 0 {
		return &isoNode{Feature: -1, Size: len(idx)}
	}

	feature := splittable[rng.Intn(len(splittable))]
	lo, hi := isoRange(X, idx, feature)
	threshold := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{Feature: -1, Size: len(idx)}
	}

	return &isoNode{
		Feature:   feature,
		Threshold: threshold,
		Size:      len(idx),
		Left:      growIsoTree(X, left, depth+1, heightLimit, rng),
		Right:     growIsoTree(X, right, depth+1, heightLimit, rng),
	}
}

// isoPathLength follows the point to a leaf and adds the expected depth of an
// unbuilt subtree of the leaf's size.
func isoPathLength(node *isoNode, row []float64, depth int) float64 {
	for node.Left != nil && node.Right != nil {
		if row[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.Size)
}

// averagePathLength is c(n), the average path length of an unsuccessful
// BST search over n points: 2*H(n-1) - 2*(n-1)/n.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

// isoRange returns the min and max of feature j over the selected indices.
func isoRange(X [][]float64, idx []int, j int) (float64, float64) {
	lo := X[idx[0]][j]
	hi := lo
	for _, i := range idx[1:] {
		v := X[i][j]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
