package ml

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearData returns rows of three features where only the first one drives y.
func linearData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		a := rng.Float64() * 10
		x[i] = []float64{a, rng.Float64(), rng.Float64()}
		y[i] = 3*a + 1
	}
	return x, y
}

func TestForestFitsSignal(t *testing.T) {
	x, y := linearData(300, 1)
	f := NewRandomForest(WithTrees(30))
	require.NoError(t, f.Fit(x, y))

	pred, err := f.Predict([]float64{5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 16, pred, 1.5)

	require.Len(t, f.Importances, 3)
	sum := 0.0
	for _, v := range f.Importances {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.Greater(t, f.Importances[0], f.Importances[1])
	assert.Greater(t, f.Importances[0], f.Importances[2])
}

func TestForestDeterministicAcrossWorkers(t *testing.T) {
	x, y := linearData(200, 2)
	a := NewRandomForest(WithTrees(20), WithWorkers(1))
	b := NewRandomForest(WithTrees(20), WithWorkers(8))
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))

	pa, err := a.PredictBatch(x[:20])
	require.NoError(t, err)
	pb, err := b.PredictBatch(x[:20])
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.Equal(t, a.Importances, b.Importances)
}

func TestForestSeedChangesModel(t *testing.T) {
	x, y := linearData(200, 3)
	a := NewRandomForest(WithTrees(10), WithSeed(1))
	b := NewRandomForest(WithTrees(10), WithSeed(2))
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))
	assert.NotEqual(t, a.Importances, b.Importances)
}

func TestForestRejectsDegenerateInput(t *testing.T) {
	f := NewRandomForest(WithTrees(5))
	assert.ErrorIs(t, f.Fit(nil, nil), ErrDegenerate)
	assert.ErrorIs(t, f.Fit([][]float64{{1}, {2}}, []float64{4, 4}), ErrDegenerate)
	assert.ErrorIs(t, f.Fit([][]float64{{1}, {2, 3}}, []float64{1, 2}), ErrDegenerate)
	assert.ErrorIs(t, f.Fit([][]float64{{1}, {math.NaN()}}, []float64{1, 2}), ErrDegenerate)
}

func TestForestPredictChecksWidth(t *testing.T) {
	_, err := NewRandomForest().Predict([]float64{1})
	assert.Error(t, err)

	x, y := linearData(50, 4)
	f := NewRandomForest(WithTrees(3))
	require.NoError(t, f.Fit(x, y))
	_, err = f.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestTreeRespectsDepth(t *testing.T) {
	x, y := linearData(100, 5)
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	tree, _ := fitTree(x, y, idx, treeParams{maxDepth: 1, minSamplesSplit: 2, minSamplesLeaf: 1})
	assert.Len(t, tree.Nodes, 3)

	stump, _ := fitTree(x, y, idx, treeParams{maxDepth: 0, minSamplesSplit: 2, minSamplesLeaf: 1})
	require.Len(t, stump.Nodes, 1)
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	assert.InDelta(t, mean/float64(len(y)), stump.Predict(x[0]), 1e-9)
}

func TestStandardScaler(t *testing.T) {
	x := [][]float64{{1, 5}, {2, 5}, {3, 5}}
	var s StandardScaler
	require.NoError(t, s.Fit(x))
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.InDelta(t, math.Sqrt(2.0/3.0), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1])

	out, err := s.TransformBatch(x)
	require.NoError(t, err)
	assert.InDelta(t, 0, out[1][0], 1e-12)
	assert.Equal(t, 0.0, out[2][1])

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)
}

func TestErrorMetrics(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	pred := []float64{1, 2, 3, 6}
	assert.InDelta(t, 0.5, MAE(actual, pred), 1e-12)
	assert.InDelta(t, 1, RMSE(actual, pred), 1e-12)
	assert.InDelta(t, 1, R2(actual, actual), 1e-12)
	assert.Equal(t, 0.0, R2([]float64{2, 2, 2}, []float64{1, 2, 3}))
	assert.Equal(t, 1.23, Round(1.2345, 2))
}
