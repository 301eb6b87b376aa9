package indicators

import (
	"math"
	"testing"

	"FinSight/internal/domain/models"
	"FinSight/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAllColumnsWithWarmup(t *testing.T) {
	bars := testsupport.WavyBars(120, 1)
	frame, err := New().Compute("INFY.NS", bars)
	require.NoError(t, err)

	assert.Equal(t, 120, frame.Len())
	for _, col := range []string{
		models.ColSMA20, models.ColSMA50, models.ColEMA12, models.ColEMA26, models.ColRSI,
		models.ColMACD, models.ColMACDSignal, models.ColMACDHistogram,
		models.ColBBUpper, models.ColBBMiddle, models.ColBBLower, models.ColROC, models.ColATR,
	} {
		require.True(t, frame.Has(col), col)
		_, ok := frame.Latest(col)
		assert.True(t, ok, "latest %s should be set", col)
	}

	_, ok := frame.Value(models.ColSMA50, 48)
	assert.False(t, ok, "SMA_50 warm-up must be missing")
	v, ok := frame.Value(models.ColSMA50, 49)
	require.True(t, ok)

	sum := 0.0
	for i := 0; i < 50; i++ {
		sum += bars[i].Close
	}
	assert.InDelta(t, sum/50, v, 1e-9)
}

func TestComputeBollingerOrdering(t *testing.T) {
	frame, err := New().Compute("TCS.NS", testsupport.WavyBars(80, 2))
	require.NoError(t, err)

	for i := 19; i < frame.Len(); i++ {
		up, _ := frame.Value(models.ColBBUpper, i)
		mid, _ := frame.Value(models.ColBBMiddle, i)
		low, _ := frame.Value(models.ColBBLower, i)
		assert.GreaterOrEqual(t, up, mid)
		assert.GreaterOrEqual(t, mid, low)
	}
}

func TestComputeShortHistoryOmitsLongColumns(t *testing.T) {
	frame, err := New().Compute("X", testsupport.WavyBars(30, 3))
	require.NoError(t, err)

	assert.True(t, frame.Has(models.ColSMA20))
	assert.False(t, frame.Has(models.ColSMA50))
	assert.False(t, frame.Has(models.ColMACDSignal))
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := New().Compute("X", nil)
	assert.ErrorIs(t, err, models.ErrNoData)

	bars := testsupport.WavyBars(10, 4)
	bars[5].Date = bars[4].Date
	_, err = New().Compute("X", bars)
	assert.Error(t, err)
}

func TestMaskMarksWarmup(t *testing.T) {
	out := mask([]float64{1, 2, 3, 4}, 2)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.Equal(t, 3.0, out[2])
}
