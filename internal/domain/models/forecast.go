package models

import "time"

// Forecast engine tags. Consumers branch on these to tell model-backed forecasts
// from heuristic projections.
const (
	EngineML          = "ml"
	EngineMLFallback  = "ml_fallback"
	EngineHeuristic   = "heuristic_fallback"
	EnginePassthrough = "passthrough"
)

// ForecastPoint is one step of a forecast path.
type ForecastPoint struct {
	Day   int     `json:"day"`
	Price float64 `json:"price"`
}

// NextStepPrediction is the result of a single-step forecast.
type NextStepPrediction struct {
	CurrentPrice   float64 `json:"current_price"`
	PredictedPrice float64 `json:"predicted_price"`
	Change         float64 `json:"change"`
	ChangePercent  float64 `json:"change_percent"`
	Confidence     float64 `json:"confidence"`
}

// TrainingMetrics describes one successful training run.
type TrainingMetrics struct {
	TrainMAE     float64   `json:"train_mae"`
	TestMAE      float64   `json:"test_mae"`
	TrainRMSE    float64   `json:"train_rmse"`
	TestRMSE     float64   `json:"test_rmse"`
	TrainR2      float64   `json:"train_r2"`
	TestR2       float64   `json:"test_r2"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	Features     int       `json:"features"`
	TrainedAt    time.Time `json:"trained_at"`
}

// FeatureImportance pairs a feature name with its importance weight.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ModelArtifact is the persisted pair for one symbol: the encoded model (with its
// feature schema and metrics) and the encoded scaler.
type ModelArtifact struct {
	Model  []byte
	Scaler []byte
}

// DatedForecast is a forecast point with the calendar date it applies to.
type DatedForecast struct {
	Day   int       `json:"day"`
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Trend labels of a forecast path, and the compact direction used by the
// indicator endpoint.
const (
	TrendIncrease = "Increase"
	TrendDecrease = "Decrease"
	TrendStable   = "Stable"

	DirectionIncrease = "INCREASE"
	DirectionDecrease = "DECREASE"
	DirectionHold     = "HOLD"
)

// ForecastResult is the forecast returned to API consumers.
type ForecastResult struct {
	Symbol         string              `json:"symbol"`
	Engine         string              `json:"engine"`
	CurrentPrice   float64             `json:"current_price"`
	PredictedPrice float64             `json:"predicted_price"`
	ChangePercent  float64             `json:"change_percent"`
	Confidence     float64             `json:"confidence"`
	Trend          string              `json:"trend"`
	Direction      string              `json:"direction,omitempty"`
	Signal         string              `json:"ai_signal"`
	Days           int                 `json:"days"`
	Points         []DatedForecast     `json:"predictions"`
	Truncated      bool                `json:"truncated,omitempty"`
	Indicators     map[string]float64  `json:"indicators,omitempty"`
	NextDay        *NextStepPrediction `json:"next_day,omitempty"`
	TopFeatures    []FeatureImportance `json:"feature_importance,omitempty"`
	Retrained      bool                `json:"model_retrained"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

// TrainingReport is returned after a training run.
type TrainingReport struct {
	Symbol      string              `json:"symbol"`
	Metrics     TrainingMetrics     `json:"metrics"`
	TopFeatures []FeatureImportance `json:"top_features"`
	Confidence  float64             `json:"confidence"`
	JobID       string              `json:"job_id,omitempty"`
	Queued      bool                `json:"queued,omitempty"`
}

// TrainingJob is the progress of a queued training run.
type TrainingJob struct {
	JobID     string    `json:"job_id"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
