package recommend

import (
	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"

	"gonum.org/v1/gonum/stat"
)

// VolumeScore compares the latest volume with the 20-day average and checks
// whether heavy volume confirms the latest price move.
func VolumeScore(f *models.IndicatorFrame) models.SignalScore {
	volumes := tail(f.Volumes(), trendWindow)
	closes := tail(f.Closes(), trendWindow)
	score := neutral
	var signals []string

	avg, latest := 0.0, 0.0
	if len(volumes) > 0 {
		avg = stat.Mean(volumes, nil)
		latest = volumes[len(volumes)-1]
	}
	ratio := 1.0
	if avg > 0 {
		ratio = latest / avg
	}

	priceChange := 0.0
	if n := len(closes); n >= 2 && closes[n-2] != 0 {
		priceChange = closes[n-1]/closes[n-2] - 1
	}

	switch {
	case ratio > 1.5 && priceChange > 0:
		score += 10
		signals = append(signals, "High volume with price increase (bullish)")
	case ratio > 1.5 && priceChange < 0:
		score -= 10
		signals = append(signals, "High volume with price decrease (bearish)")
	case ratio > 1.2:
		signals = append(signals, "Above average volume")
	case ratio < 0.5:
		signals = append(signals, "Low volume (lack of interest)")
	}

	return models.SignalScore{
		Category: models.CategoryVolume,
		Score:    ml.Round(clamp(score), 2),
		Signals:  signals,
		Indicators: map[string]interface{}{
			"current": int64(latest),
			"average": int64(avg),
			"ratio":   ml.Round(ratio, 2),
		},
	}
}
