package forecast

import (
	"math"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"
)

const (
	// HeuristicConfidence is the fixed confidence (percent) of a heuristic projection.
	HeuristicConfidence = 35.0

	heuristicDamping  = 0.35
	heuristicDailyCap = 0.03
)

// Project extrapolates the last observed percentage change without a model: the
// daily return is changePct damped by 0.35 and clamped to ±3%, compounded for
// each day of the horizon. Callers must tag the result with a heuristic engine.
func Project(price, changePct float64, days int) []models.ForecastPoint {
	daily := math.Max(-heuristicDailyCap, math.Min(heuristicDailyCap, changePct/100*heuristicDamping))
	out := make([]models.ForecastPoint, 0, days)
	running := price
	for d := 1; d <= days; d++ {
		running *= 1 + daily
		out = append(out, models.ForecastPoint{Day: d, Price: ml.Round(running, 2)})
	}
	return out
}

// Flat repeats price for every day of the horizon.
func Flat(price float64, days int) []models.ForecastPoint {
	out := make([]models.ForecastPoint, 0, days)
	for d := 1; d <= days; d++ {
		out = append(out, models.ForecastPoint{Day: d, Price: ml.Round(price, 2)})
	}
	return out
}
