package service

import (
	"context"

	"FinSight/internal/domain/models"
)

// IndicatorCalculator turns a raw bar sequence into an IndicatorFrame.
type IndicatorCalculator interface {
	Compute(symbol string, bars []models.PriceBar) (*models.IndicatorFrame, error)
}

// Explainer produces a narrative for a recommendation. It only reads its input.
type Explainer interface {
	Explain(ctx context.Context, rec *models.Recommendation, live models.LivePrice) (string, error)
}
