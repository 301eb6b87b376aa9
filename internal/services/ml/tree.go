package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a regression tree stored in a flat slice. Leaves have
// Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree split on squared error.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

type treeBuilder struct {
	x          [][]float64
	y          []float64
	params     treeParams
	nodes      []Node
	importance []float64
}

// fitTree grows a tree on the rows listed in idx (duplicates allowed) and returns
// it with its unnormalized impurity-decrease importances.
func fitTree(x [][]float64, y []float64, idx []int, p treeParams) (Tree, []float64) {
	b := &treeBuilder{
		x:          x,
		y:          y,
		params:     p,
		importance: make([]float64, len(x[0])),
	}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	lo, hi := b.y[idx[0]], b.y[idx[0]]
	for _, i := range idx {
		v := b.y[i]
		sum += v
		sumSq += v * v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	n := float64(len(idx))
	mean := sum / n

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: mean})

	if depth >= b.params.maxDepth || len(idx) < b.params.minSamplesSplit {
		return self
	}
	if hi == lo {
		return self
	}

	feature, threshold, gain, ok := b.bestSplit(idx, sum, sumSq)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: mean}
	return self
}

// bestSplit scans every feature and returns the split with the largest weighted
// impurity decrease. gain is expressed in node-sample units (n·Δimpurity).
func (b *treeBuilder) bestSplit(idx []int, sum, sumSq float64) (int, float64, float64, bool) {
	n := len(idx)
	minLeaf := b.params.minSamplesLeaf
	parent := sumSq - sum*sum/float64(n)

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, n)
	for f := range b.x[idx[0]] {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.x[order[a]][f] < b.x[order[c]][f] })

		lSum, lSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			v := b.y[order[k]]
			lSum += v
			lSq += v * v
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[order[k]][f], b.x[order[k+1]][f]
			if next <= cur {
				continue
			}
			rSum, rSq := sum-lSum, sumSq-lSq
			children := (lSq - lSum*lSum/float64(nl)) + (rSq - rSum*rSum/float64(nr))
			gain := parent - children
			if gain > bestGain+1e-12 {
				bestFeature, bestThreshold, bestGain = f, cur+(next-cur)/2, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain, bestFeature >= 0
}

// Predict walks the tree for one scaled feature row.
func (t *Tree) Predict(row []float64) float64 {
	i := 0
	for {
		nd := t.Nodes[i]
		if nd.Feature < 0 {
			return nd.Value
		}
		if row[nd.Feature] <= nd.Threshold {
			i = nd.Left
		} else {
			i = nd.Right
		}
	}
}

func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}
