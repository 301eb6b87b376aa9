package features

import (
	"math"
	"testing"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/indicators"
	"FinSight/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(t *testing.T, bars []models.PriceBar) *models.IndicatorFrame {
	t.Helper()
	frame, err := indicators.New().Compute("INFY.NS", bars)
	require.NoError(t, err)
	return frame
}

func TestBuildSchemaAndTargets(t *testing.T) {
	frame := frameOf(t, testsupport.WavyBars(300, 7))
	fs, err := Build(frame)
	require.NoError(t, err)

	assert.Len(t, fs.Schema, len(BaseColumns)+len(DerivedColumns()))
	assert.Equal(t, models.ColOpen, fs.Schema[0])
	assert.Equal(t, ColVolumeMean7, fs.Schema[len(fs.Schema)-1])
	require.Len(t, fs.Targets, len(fs.Rows))
	require.NotNil(t, fs.Latest)
	assert.Equal(t, frame.Bars[frame.Len()-1].Close, fs.LatestClose)

	// SMA_50 is the last column to warm up, so clean rows start at index 49 and
	// row j targets the close of bar 50+j.
	for j, y := range fs.Targets {
		assert.Equal(t, frame.Bars[50+j].Close, y)
	}
	for _, row := range fs.Rows {
		assert.Len(t, row, len(fs.Schema))
	}
}

func TestBuildDerivedValues(t *testing.T) {
	frame := frameOf(t, testsupport.WavyBars(200, 9))
	fs, err := Build(frame)
	require.NoError(t, err)

	idx := func(name string) int {
		for i, s := range fs.Schema {
			if s == name {
				return i
			}
		}
		t.Fatalf("missing %s", name)
		return -1
	}

	j := 20
	bar := frame.Bars[49+j]
	row := fs.Rows[j]
	assert.InDelta(t, bar.High-bar.Low, row[idx(ColPriceRange)], 1e-9)
	assert.InDelta(t, bar.Close-bar.Open, row[idx(ColPriceChange)], 1e-9)
	assert.InDelta(t, frame.Bars[49+j-3].Close, row[idx(CloseLag(3))], 1e-9)
	assert.InDelta(t, frame.Bars[49+j-7].Volume, row[idx(VolumeLag(7))], 1e-9)
	assert.InDelta(t, bar.Volume/frame.Bars[48+j].Volume-1, row[idx(ColVolumeChange)], 1e-9)

	sum := 0.0
	for k := 0; k < 7; k++ {
		sum += frame.Bars[49+j-k].Close
	}
	assert.InDelta(t, sum/7, row[idx(ColCloseMean7)], 1e-9)

	assert.True(t, math.IsNaN(fs.Rows[0][idx(CloseLag(1))]))
}

func TestBuildInsufficientRows(t *testing.T) {
	// 90 bars leave 41 rows once SMA_50 has warmed up.
	_, err := Build(frameOf(t, testsupport.WavyBars(90, 1)))
	assert.ErrorIs(t, err, models.ErrDataInsufficient)

	_, err = Build(&models.IndicatorFrame{})
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestBuildTooFewBaseColumns(t *testing.T) {
	bars := testsupport.WavyBars(120, 2)
	frame := testsupport.Frame("X", bars, map[string][]float64{
		models.ColSMA20: testsupport.Constant(len(bars), 100),
		models.ColRSI:   testsupport.Constant(len(bars), 50),
		models.ColATR:   testsupport.Constant(len(bars), 1),
	})
	// Open, High, Low, Volume plus three indicators.
	_, err := Build(frame)
	assert.ErrorIs(t, err, models.ErrDataInsufficient)
}

func TestLatestRowMatchesBuild(t *testing.T) {
	frame := frameOf(t, testsupport.WavyBars(220, 3))
	fs, err := Build(frame)
	require.NoError(t, err)

	row, err := LatestRow(frame, fs.Schema)
	require.NoError(t, err)
	assert.Equal(t, fs.Latest, row)
}

func TestLatestRowSchemaMismatch(t *testing.T) {
	frame := frameOf(t, testsupport.WavyBars(220, 3))
	fs, err := Build(frame)
	require.NoError(t, err)

	delete(frame.Columns, models.ColATR)
	_, err = LatestRow(frame, fs.Schema)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = LatestRow(frame, append(fs.Schema, "Unknown_Feature"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSanitize(t *testing.T) {
	rows := [][]float64{
		{1, 2, 3},
		{math.Inf(1), 2, 3},
		{1, math.NaN(), 3},
		{1e15, -1e15, 0},
		{4, 5, 6},
	}
	targets := []float64{10, 11, 12, 13, math.NaN()}

	x, y, err := Sanitize(rows, targets)
	require.NoError(t, err)
	require.Len(t, x, 2)
	assert.Equal(t, []float64{10, 13}, y)
	assert.Equal(t, []float64{ClipBound, -ClipBound, 0}, x[1])

	for _, row := range x {
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestSanitizeNothingSurvives(t *testing.T) {
	_, _, err := Sanitize([][]float64{{math.NaN()}, {math.Inf(-1)}}, []float64{1, 2})
	assert.ErrorIs(t, err, models.ErrNumericDegenerate)
}

func TestSanitizedTrainingMatrixIsFinite(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		fs, err := Build(frameOf(t, testsupport.WavyBars(160, seed)))
		require.NoError(t, err)
		x, y, err := Sanitize(fs.Rows, fs.Targets)
		require.NoError(t, err)
		require.Len(t, y, len(x))
		for _, row := range x {
			require.Len(t, row, len(fs.Schema))
			for _, v := range row {
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
				require.LessOrEqual(t, math.Abs(v), ClipBound)
			}
		}
	}
}
