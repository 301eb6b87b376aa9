package recommend

import (
	"testing"

	"FinSight/internal/domain/models"
	"FinSight/internal/testsupport"

	"github.com/stretchr/testify/assert"
)

func TestTrendScoreDirections(t *testing.T) {
	up := testsupport.Frame("X", testsupport.RisingBars(40, 100, 1, 1000), nil)
	s := TrendScore(up)
	assert.Equal(t, 65.0, s.Score)
	assert.Equal(t, "Up", s.Indicators["direction"])

	down := testsupport.Frame("X", testsupport.RisingBars(40, 200, -1.5, 1000), nil)
	s = TrendScore(down)
	assert.Equal(t, 35.0, s.Score)
	assert.Equal(t, "Strong downtrend", s.Signals[0])

	flat := testsupport.Frame("X", testsupport.FlatBars(40, 50, 1000), nil)
	s = TrendScore(flat)
	assert.Equal(t, 50.0, s.Score)
	assert.Equal(t, []string{"Sideways trend", "Low volatility (stable)"}, s.Signals)
}

func TestTrendScoreSingleBar(t *testing.T) {
	s := TrendScore(testsupport.Frame("X", testsupport.FlatBars(1, 50, 1000), nil))
	assert.Equal(t, 50.0, s.Score)
}

func TestVolumeScoreConfirmsMove(t *testing.T) {
	bars := testsupport.RisingBars(25, 100, 1, 1000)
	bars[len(bars)-1].Volume = 5000
	s := VolumeScore(testsupport.Frame("X", bars, nil))
	assert.Equal(t, 60.0, s.Score)
	assert.Equal(t, int64(5000), s.Indicators["current"])

	falling := testsupport.RisingBars(25, 200, -1, 1000)
	falling[len(falling)-1].Volume = 5000
	assert.Equal(t, 40.0, VolumeScore(testsupport.Frame("X", falling, nil)).Score)

	quiet := testsupport.RisingBars(25, 100, 1, 1000)
	quiet[len(quiet)-1].Volume = 100
	s = VolumeScore(testsupport.Frame("X", quiet, nil))
	assert.Equal(t, 50.0, s.Score)
	assert.Equal(t, []string{"Low volume (lack of interest)"}, s.Signals)
}

func TestSummaryTakesTopSignals(t *testing.T) {
	got := summarize(models.ActionStrongBuy,
		models.SignalScore{Signals: []string{"a", "x"}},
		models.SignalScore{},
		models.SignalScore{Signals: []string{"c"}},
	)
	assert.Equal(t, "STRONG BUY recommendation based on: a; c", got)
}
