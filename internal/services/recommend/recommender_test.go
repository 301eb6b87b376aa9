package recommend

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/indicators"
	"FinSight/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func newRecommender() *Recommender {
	return New(WithClock(func() time.Time { return fixedNow }))
}

// compoundingBars rises 1% a day with constant volume.
func compoundingBars(n int) []models.PriceBar {
	dates := testsupport.BusinessDays(testsupport.Start, n)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 100 * math.Pow(1.01, float64(i))
		bars[i] = models.PriceBar{Date: dates[i], Open: c * 0.995, High: c * 1.005, Low: c * 0.99, Close: c, Volume: 1_000_000}
	}
	return bars
}

// 90 bars leave 41 complete rows after the SMA-50 warm-up, below the
// 50-row training minimum, so no fitted model can supply the forecast here.
// Without one the fused score lands at 52-54.25 (HOLD), so a +3% forecast
// is injected to exercise the bullish path.
func TestRecommendRisingSeries(t *testing.T) {
	frame, err := indicators.New().Compute("INFY.NS", compoundingBars(90))
	require.NoError(t, err)
	last, _ := frame.LastBar()

	rec, err := newRecommender().Recommend(Snapshot{
		Frame: frame,
		Forecast: &models.NextStepPrediction{
			CurrentPrice:   last.Close,
			PredictedPrice: last.Close * 1.03,
			ChangePercent:  3,
			Confidence:     0.8,
		},
	})
	require.NoError(t, err)

	assert.Greater(t, rec.Trend.Score, 50.0)
	assert.Contains(t, rec.Trend.Signals, "Strong uptrend")
	assert.Equal(t, 50.0, rec.Volume.Score)
	assert.Contains(t, rec.Technical.Signals, "Price above both SMAs (bullish)")
	assert.True(t, rec.Action.Bullish(), "got %s at %.2f", rec.Action, rec.Score)
	assert.Equal(t, fixedNow, rec.GeneratedAt)
	assert.True(t, strings.HasPrefix(rec.Summary, rec.Label+" recommendation based on: "))
}

func TestTechnicalOversoldInDowntrend(t *testing.T) {
	bars := testsupport.FlatBars(60, 100, 1_000_000)
	n := len(bars)
	frame := testsupport.Frame("TCS.NS", bars, map[string][]float64{
		models.ColRSI:           testsupport.Constant(n, 25),
		models.ColSMA20:         testsupport.Constant(n, 105),
		models.ColSMA50:         testsupport.Constant(n, 110),
		models.ColMACD:          testsupport.Constant(n, -1),
		models.ColMACDSignal:    testsupport.Constant(n, -0.5),
		models.ColMACDHistogram: testsupport.Constant(n, -0.5),
		models.ColBBUpper:       testsupport.Constant(n, 110),
		models.ColBBLower:       testsupport.Constant(n, 90),
	})

	s := TechnicalScore(frame)
	assert.Less(t, s.Score, 50.0)
	assert.Equal(t, 45.0, s.Score)
	assert.Contains(t, s.Signals, "RSI indicates oversold (bullish)")
	assert.Contains(t, s.Signals, "Price below both SMAs (bearish)")
	assert.Contains(t, s.Signals, "MACD bearish crossover")
	assert.Equal(t, 25.0, s.Indicators["RSI"])
}

func TestTechnicalDefaultsWithoutIndicators(t *testing.T) {
	s := TechnicalScore(testsupport.Frame("X", testsupport.FlatBars(5, 100, 10), nil))
	assert.Equal(t, 50.0, s.Score)
	assert.Empty(t, s.Signals)
	assert.Equal(t, 50.0, s.Indicators["RSI"])
}

func TestTechnicalBollingerBreaches(t *testing.T) {
	bars := testsupport.FlatBars(30, 100, 10)
	n := len(bars)
	below := testsupport.Frame("X", bars, map[string][]float64{
		models.ColBBUpper: testsupport.Constant(n, 120),
		models.ColBBLower: testsupport.Constant(n, 101),
	})
	assert.Equal(t, 58.0, TechnicalScore(below).Score)

	above := testsupport.Frame("X", bars, map[string][]float64{
		models.ColBBUpper: testsupport.Constant(n, 99),
		models.ColBBLower: testsupport.Constant(n, 80),
	})
	assert.Equal(t, 42.0, TechnicalScore(above).Score)
}

func TestForecastScoreMissingIsNeutral(t *testing.T) {
	s := ForecastScore(nil, nil)
	assert.Equal(t, 50.0, s.Score)
	assert.Equal(t, []string{SignalPredictionUnavailable}, s.Signals)
}

func TestForecastScoreZeroChangeIsNeutral(t *testing.T) {
	s := ForecastScore(&models.NextStepPrediction{CurrentPrice: 100, PredictedPrice: 100}, nil)
	assert.Equal(t, 50.0, s.Score)
	assert.Equal(t, []string{SignalPredictionUnavailable}, s.Signals)
	assert.Equal(t, 0.0, s.Indicators["change_percent"])
}

func TestForecastScoreTiers(t *testing.T) {
	cases := []struct {
		pct    float64
		score  float64
		signal string
	}{
		{6, 70, "ML predicts +6.00% gain (strong bullish)"},
		{3, 65, "ML predicts +3.00% gain (bullish)"},
		{0.5, 58, "ML predicts +0.50% gain"},
		{0, 50, SignalPredictionUnavailable},
		{-1, 42, "ML predicts -1.00% loss"},
		{-3, 35, "ML predicts -3.00% loss (bearish)"},
		{-7.5, 30, "ML predicts -7.50% loss (strong bearish)"},
	}
	for _, c := range cases {
		s := ForecastScore(&models.NextStepPrediction{CurrentPrice: 100, PredictedPrice: 100 + c.pct, ChangePercent: c.pct}, nil)
		assert.Equal(t, c.score, s.Score, "pct %.2f", c.pct)
		assert.Equal(t, []string{c.signal}, s.Signals)
	}

	live := &models.LivePrice{Price: 101.256}
	s := ForecastScore(&models.NextStepPrediction{CurrentPrice: 100, PredictedPrice: 103, ChangePercent: 3}, live)
	assert.Equal(t, 101.26, s.Indicators["current_price"])
}

func TestRecommendWithoutForecastUsesNeutralWeight(t *testing.T) {
	frame, err := indicators.New().Compute("INFY.NS", testsupport.WavyBars(120, 3))
	require.NoError(t, err)

	rec, err := newRecommender().Recommend(Snapshot{Frame: frame})
	require.NoError(t, err)

	assert.Equal(t, 50.0, rec.Forecast.Score)
	want := rec.Technical.Score*WeightTechnical + 50*WeightForecast +
		rec.Trend.Score*WeightTrend + rec.Volume.Score*WeightVolume
	assert.InDelta(t, want, rec.Score, 0.005)
	assert.Contains(t, rec.Summary, SignalPredictionUnavailable)
}

func TestRecommendEmptyFrame(t *testing.T) {
	_, err := newRecommender().Recommend(Snapshot{})
	assert.ErrorIs(t, err, models.ErrNoData)
	_, err = newRecommender().Recommend(Snapshot{Frame: &models.IndicatorFrame{Symbol: "X"}})
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestActionForIsMonotonic(t *testing.T) {
	prev := -1
	for s := 0.0; s <= 100; s += 0.05 {
		a, _ := ActionFor(s)
		require.GreaterOrEqual(t, a.Rank(), prev, "score %.2f", s)
		prev = a.Rank()
	}

	cases := map[float64]models.Action{
		100: models.ActionStrongBuy, 65: models.ActionStrongBuy, 64.99: models.ActionBuy,
		55: models.ActionBuy, 54.99: models.ActionHold, 45: models.ActionHold,
		44.99: models.ActionSell, 35: models.ActionSell, 34.99: models.ActionStrongSell, 0: models.ActionStrongSell,
	}
	for score, want := range cases {
		got, _ := ActionFor(score)
		assert.Equal(t, want, got, "score %.2f", score)
	}
}

func TestFusedScoreStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	r := newRecommender()
	for seed := int64(1); seed <= 10; seed++ {
		frame, err := indicators.New().Compute("X", testsupport.WavyBars(80+int(seed)*10, seed))
		require.NoError(t, err)
		pct := rng.Float64()*40 - 20
		rec, err := r.Recommend(Snapshot{
			Frame:    frame,
			Forecast: &models.NextStepPrediction{CurrentPrice: 100, PredictedPrice: 100 + pct, ChangePercent: pct},
		})
		require.NoError(t, err)
		for _, v := range []float64{rec.Score, rec.Technical.Score, rec.Forecast.Score, rec.Trend.Score, rec.Volume.Score} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
		want, _ := ActionFor(rec.Score)
		assert.Equal(t, want, rec.Action)
	}
}
