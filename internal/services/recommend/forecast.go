package recommend

import (
	"fmt"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"
)

// SignalPredictionUnavailable is reported when no forecast could be made.
const SignalPredictionUnavailable = "Prediction data unavailable"

// ForecastScore maps the predicted percentage change onto tiered adjustments.
// A missing prediction or a zero change scores exactly 50.
func ForecastScore(p *models.NextStepPrediction, live *models.LivePrice) models.SignalScore {
	if p == nil {
		return models.SignalScore{
			Category: models.CategoryForecast,
			Score:    neutral,
			Signals:  []string{SignalPredictionUnavailable},
		}
	}

	score := neutral
	var signals []string
	pct := p.ChangePercent
	switch {
	case pct > 5:
		score += 20
		signals = append(signals, fmt.Sprintf("ML predicts +%.2f%% gain (strong bullish)", pct))
	case pct > 2:
		score += 15
		signals = append(signals, fmt.Sprintf("ML predicts +%.2f%% gain (bullish)", pct))
	case pct > 0:
		score += 8
		signals = append(signals, fmt.Sprintf("ML predicts +%.2f%% gain", pct))
	case pct < -5:
		score -= 20
		signals = append(signals, fmt.Sprintf("ML predicts %.2f%% loss (strong bearish)", pct))
	case pct < -2:
		score -= 15
		signals = append(signals, fmt.Sprintf("ML predicts %.2f%% loss (bearish)", pct))
	case pct < 0:
		score -= 8
		signals = append(signals, fmt.Sprintf("ML predicts %.2f%% loss", pct))
	default:
		signals = append(signals, SignalPredictionUnavailable)
	}

	current := p.CurrentPrice
	if live != nil && live.Price > 0 {
		current = live.Price
	}
	return models.SignalScore{
		Category: models.CategoryForecast,
		Score:    ml.Round(clamp(score), 2),
		Signals:  signals,
		Indicators: map[string]interface{}{
			"current_price":   ml.Round(current, 2),
			"predicted_price": ml.Round(p.PredictedPrice, 2),
			"change_percent":  ml.Round(pct, 2),
			"confidence":      p.Confidence,
		},
	}
}
