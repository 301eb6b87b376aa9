package recommend

import (
	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"
)

// TechnicalScore scores the newest row's oscillator, MACD, moving-average and
// Bollinger readings around a neutral 50.
func TechnicalScore(f *models.IndicatorFrame) models.SignalScore {
	score := neutral
	var signals []string

	rsi := latestOr(f, models.ColRSI, 50)
	switch {
	case rsi < 30:
		score += 15
		signals = append(signals, "RSI indicates oversold (bullish)")
	case rsi > 70:
		score -= 15
		signals = append(signals, "RSI indicates overbought (bearish)")
	case rsi < 40:
		score += 8
		signals = append(signals, "RSI shows buying opportunity")
	case rsi > 60:
		score -= 8
		signals = append(signals, "RSI shows selling pressure")
	}

	macd := latestOr(f, models.ColMACD, 0)
	macdSignal := latestOr(f, models.ColMACDSignal, 0)
	hist := latestOr(f, models.ColMACDHistogram, 0)
	switch {
	case macd > macdSignal && hist > 0:
		score += 10
		signals = append(signals, "MACD bullish crossover")
	case macd < macdSignal && hist < 0:
		score -= 10
		signals = append(signals, "MACD bearish crossover")
	}

	closePrice := latestOr(f, models.ColClose, 0)
	sma20 := latestOr(f, models.ColSMA20, closePrice)
	sma50 := latestOr(f, models.ColSMA50, closePrice)
	switch {
	case closePrice > sma20 && sma20 > sma50:
		score += 10
		signals = append(signals, "Price above both SMAs (bullish)")
	case closePrice < sma20 && sma20 < sma50:
		score -= 10
		signals = append(signals, "Price below both SMAs (bearish)")
	case closePrice > sma20:
		score += 5
		signals = append(signals, "Price above SMA 20")
	case closePrice < sma20:
		score -= 5
		signals = append(signals, "Price below SMA 20")
	}

	upper := latestOr(f, models.ColBBUpper, closePrice*1.02)
	lower := latestOr(f, models.ColBBLower, closePrice*0.98)
	switch {
	case closePrice < lower:
		score += 8
		signals = append(signals, "Price at lower Bollinger Band (potential bounce)")
	case closePrice > upper:
		score -= 8
		signals = append(signals, "Price at upper Bollinger Band (potential reversal)")
	}

	return models.SignalScore{
		Category: models.CategoryTechnical,
		Score:    ml.Round(clamp(score), 2),
		Signals:  signals,
		Indicators: map[string]interface{}{
			"RSI":            ml.Round(rsi, 2),
			"MACD":           ml.Round(macd, 4),
			"Price_vs_SMA20": ml.Round(percentFrom(closePrice, sma20), 2),
			"Price_vs_SMA50": ml.Round(percentFrom(closePrice, sma50), 2),
		},
	}
}

func latestOr(f *models.IndicatorFrame, col string, def float64) float64 {
	if v, ok := f.Latest(col); ok {
		return v
	}
	return def
}

// percentFrom is the percentage distance of v from ref; 0 when ref is 0.
func percentFrom(v, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return (v - ref) / ref * 100
}
