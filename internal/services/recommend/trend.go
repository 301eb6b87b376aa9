package recommend

import (
	"math"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"

	"gonum.org/v1/gonum/stat"
)

const trendWindow = 20

// TrendScore fits a least-squares line through the last 20 closes and buckets its
// slope as a percentage of the window mean. Volatility is reported but not scored.
func TrendScore(f *models.IndicatorFrame) models.SignalScore {
	closes := tail(f.Closes(), trendWindow)
	score := neutral
	var signals []string

	slopePct, volatility := 0.0, 0.0
	if len(closes) >= 2 {
		xs := make([]float64, len(closes))
		for i := range xs {
			xs[i] = float64(i)
		}
		_, slope := stat.LinearRegression(xs, closes, nil, false)
		mean := stat.Mean(closes, nil)
		if mean != 0 {
			slopePct = slope / mean * 100
			volatility = stat.PopStdDev(closes, nil) / mean
		}
	}
	if math.IsNaN(slopePct) || math.IsInf(slopePct, 0) {
		slopePct = 0
	}

	switch {
	case slopePct > 0.5:
		score += 15
		signals = append(signals, "Strong uptrend")
	case slopePct > 0.2:
		score += 10
		signals = append(signals, "Uptrend")
	case slopePct < -0.5:
		score -= 15
		signals = append(signals, "Strong downtrend")
	case slopePct < -0.2:
		score -= 10
		signals = append(signals, "Downtrend")
	default:
		signals = append(signals, "Sideways trend")
	}

	switch {
	case volatility > 0.05:
		signals = append(signals, "High volatility (risky)")
	case volatility < 0.02:
		signals = append(signals, "Low volatility (stable)")
	}

	direction := "Down"
	if slopePct > 0 {
		direction = "Up"
	}
	return models.SignalScore{
		Category: models.CategoryTrend,
		Score:    ml.Round(clamp(score), 2),
		Signals:  signals,
		Indicators: map[string]interface{}{
			"direction":  direction,
			"strength":   ml.Round(math.Abs(slopePct), 2),
			"volatility": ml.Round(volatility, 4),
		},
	}
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
