package repository

import (
	"context"
	"time"

	"FinSight/internal/domain/models"
)

// PriceFeed is the upstream market data source.
type PriceFeed interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	Quote(ctx context.Context, symbol string) (models.LivePrice, error)
}

// QuoteStream keeps the latest streamed quote per symbol.
type QuoteStream interface {
	Start(ctx context.Context) error
	Latest(symbol string) (models.LivePrice, bool)
	Close() error
}

// BarStore persists daily bars for reuse across requests.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error)
	StoreBars(ctx context.Context, symbol string, bars []models.PriceBar) error
}

// ModelStore persists one model artifact pair per symbol key.
type ModelStore interface {
	Save(ctx context.Context, key string, a *models.ModelArtifact) error
	// Load returns models.ErrArtifactNotFound when either half of the pair is missing.
	Load(ctx context.Context, key string) (*models.ModelArtifact, error)
	Delete(ctx context.Context, key string) error
}

// RecommendationPublisher fans computed recommendations out to downstream consumers.
type RecommendationPublisher interface {
	Publish(ctx context.Context, rec *models.Recommendation) error
	PublishAll(ctx context.Context, recs []*models.Recommendation) error
	Close() error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLastPrice(symbol string, price float64)
	RecordTraining(symbol string, seconds float64, ok bool)
	RecordForecast(engine string)
	RecordRecommendation(action string)
}
