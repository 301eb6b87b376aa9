package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrDegenerate is returned when the training data cannot support a fit.
var ErrDegenerate = errors.New("degenerate training data")

// ForestConfig holds the ensemble hyperparameters.
type ForestConfig struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"seed"`
	Workers         int   `json:"-"`
}

// ForestOption configures a RandomForest.
type ForestOption func(*ForestConfig)

// RandomForest is a bagged ensemble of regression trees.
type RandomForest struct {
	Config      ForestConfig `json:"config"`
	Trees       []Tree       `json:"trees"`
	Features    int          `json:"features"`
	Importances []float64    `json:"importances"`
}

// NewRandomForest returns an unfitted forest with 100 trees, depth 20, min split 5,
// min leaf 2 and seed 42 unless overridden.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	cfg := ForestConfig{
		Trees:           100,
		MaxDepth:        20,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
		Workers:         runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RandomForest{Config: cfg}
}

// Fit grows every tree on its own bootstrap sample. Per-tree seeds are drawn from
// the master seed before any goroutine starts, so the result does not depend on
// scheduling.
func (f *RandomForest) Fit(x [][]float64, y []float64) error {
	if err := checkMatrix(x, y); err != nil {
		return err
	}
	if f.Config.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", f.Config.Trees)
	}

	master := rand.New(rand.NewSource(f.Config.Seed))
	seeds := make([]int64, f.Config.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	params := treeParams{
		maxDepth:        f.Config.MaxDepth,
		minSamplesSplit: f.Config.MinSamplesSplit,
		minSamplesLeaf:  f.Config.MinSamplesLeaf,
	}
	trees := make([]Tree, f.Config.Trees)
	imps := make([][]float64, f.Config.Trees)

	var g errgroup.Group
	workers := f.Config.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for t := range trees {
		t := t
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[t]))
			trees[t], imps[t] = fitTree(x, y, bootstrap(len(x), rng), params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	f.Features = len(x[0])
	f.Importances = averageImportances(imps, f.Features)
	return nil
}

// Predict averages the trees' predictions for one row.
func (f *RandomForest) Predict(row []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("forest not fitted")
	}
	if len(row) != f.Features {
		return 0, fmt.Errorf("row has %d features, forest expects %d", len(row), f.Features)
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].Predict(row)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch predicts every row.
func (f *RandomForest) PredictBatch(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		v, err := f.Predict(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// averageImportances normalizes each tree's importances to sum to one, averages
// them, and renormalizes the mean.
func averageImportances(imps [][]float64, features int) []float64 {
	out := make([]float64, features)
	counted := 0
	for _, imp := range imps {
		total := 0.0
		for _, v := range imp {
			total += v
		}
		if total <= 0 {
			continue
		}
		for i, v := range imp {
			out[i] += v / total
		}
		counted++
	}
	if counted == 0 {
		return out
	}
	total := 0.0
	for i := range out {
		out[i] /= float64(counted)
		total += out[i]
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

func checkMatrix(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("%d rows, %d targets: %w", len(x), len(y), ErrDegenerate)
	}
	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("no features: %w", ErrDegenerate)
	}
	lo, hi := y[0], y[0]
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), width, ErrDegenerate)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d has a non-finite feature: %w", i, ErrDegenerate)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("target %d is not finite: %w", i, ErrDegenerate)
		}
		lo, hi = math.Min(lo, y[i]), math.Max(hi, y[i])
	}
	if lo == hi {
		return fmt.Errorf("constant target: %w", ErrDegenerate)
	}
	return nil
}

// WithTrees sets the ensemble size.
func WithTrees(n int) ForestOption {
	return func(c *ForestConfig) { c.Trees = n }
}

// WithMaxDepth sets the depth limit.
func WithMaxDepth(d int) ForestOption {
	return func(c *ForestConfig) { c.MaxDepth = d }
}

// WithMinSamples sets the split and leaf minimums.
func WithMinSamples(split, leaf int) ForestOption {
	return func(c *ForestConfig) {
		c.MinSamplesSplit = split
		c.MinSamplesLeaf = leaf
	}
}

// WithSeed sets the master random seed.
func WithSeed(seed int64) ForestOption {
	return func(c *ForestConfig) { c.Seed = seed }
}

// WithWorkers bounds how many trees are fitted concurrently.
func WithWorkers(n int) ForestOption {
	return func(c *ForestConfig) { c.Workers = n }
}
