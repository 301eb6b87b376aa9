package recommend

import (
	"math"
	"strings"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"
)

const neutral = 50.0

// Category weights of the fused score. They sum to 1.
const (
	WeightTechnical = 0.40
	WeightForecast  = 0.35
	WeightTrend     = 0.15
	WeightVolume    = 0.10
)

// Snapshot is the immutable input of one recommendation. Forecast and Live may
// be nil.
type Snapshot struct {
	Frame    *models.IndicatorFrame
	Forecast *models.NextStepPrediction
	Live     *models.LivePrice
}

// Recommender fuses the four category scores into one decision.
type Recommender struct {
	now func() time.Time
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithClock overrides the clock used to stamp recommendations.
func WithClock(now func() time.Time) Option {
	return func(r *Recommender) { r.now = now }
}

// New creates a recommender.
func New(opts ...Option) *Recommender {
	r := &Recommender{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend scores every category and fuses them. A missing forecast still takes
// its weight at the neutral value.
func (r *Recommender) Recommend(s Snapshot) (*models.Recommendation, error) {
	if s.Frame.Len() == 0 {
		return nil, models.ErrNoData
	}

	technical := TechnicalScore(s.Frame)
	forecast := ForecastScore(s.Forecast, s.Live)
	trend := TrendScore(s.Frame)
	volume := VolumeScore(s.Frame)

	score := ml.Round(clamp(technical.Score*WeightTechnical+
		forecast.Score*WeightForecast+
		trend.Score*WeightTrend+
		volume.Score*WeightVolume), 2)
	action, confidence := ActionFor(score)

	return &models.Recommendation{
		Symbol:      s.Frame.Symbol,
		Score:       score,
		Action:      action,
		Label:       action.Label(),
		Confidence:  confidence,
		Technical:   technical,
		Forecast:    forecast,
		Trend:       trend,
		Volume:      volume,
		Summary:     summarize(action, technical, forecast, trend),
		GeneratedAt: r.now().UTC(),
	}, nil
}

// ActionFor maps a fused score to an action. Higher scores never map to a less
// bullish action.
func ActionFor(score float64) (models.Action, models.ConfidenceLabel) {
	switch {
	case score >= 65:
		return models.ActionStrongBuy, models.ConfidenceHigh
	case score >= 55:
		return models.ActionBuy, models.ConfidenceMedium
	case score >= 45:
		return models.ActionHold, models.ConfidenceMedium
	case score >= 35:
		return models.ActionSell, models.ConfidenceMedium
	default:
		return models.ActionStrongSell, models.ConfidenceHigh
	}
}

func summarize(action models.Action, categories ...models.SignalScore) string {
	points := make([]string, 0, len(categories))
	for _, c := range categories {
		if top, ok := c.TopSignal(); ok {
			points = append(points, top)
		}
	}
	return action.Label() + " recommendation based on: " + strings.Join(points, "; ")
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
