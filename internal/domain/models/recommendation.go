package models

import "time"

// Action is the recommended trading action.
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// Label returns the display form of the action ("STRONG BUY").
func (a Action) Label() string {
	switch a {
	case ActionStrongBuy:
		return "STRONG BUY"
	case ActionStrongSell:
		return "STRONG SELL"
	default:
		return string(a)
	}
}

// Bullish reports whether the action suggests buying.
func (a Action) Bullish() bool { return a == ActionBuy || a == ActionStrongBuy }

// Rank orders actions from most bearish (0) to most bullish (4).
func (a Action) Rank() int {
	switch a {
	case ActionStrongSell:
		return 0
	case ActionSell:
		return 1
	case ActionHold:
		return 2
	case ActionBuy:
		return 3
	case ActionStrongBuy:
		return 4
	default:
		return -1
	}
}

// ConfidenceLabel grades how decisive a recommendation is.
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "Low"
	ConfidenceMedium ConfidenceLabel = "Medium"
	ConfidenceHigh   ConfidenceLabel = "High"
)

// Signal categories.
const (
	CategoryTechnical = "technical"
	CategoryForecast  = "forecast"
	CategoryTrend     = "trend"
	CategoryVolume    = "volume"
)

// SignalScore is one category's score in [0,100] with its justification.
type SignalScore struct {
	Category   string                 `json:"category"`
	Score      float64                `json:"score"`
	Signals    []string               `json:"signals"`
	Indicators map[string]interface{} `json:"indicators,omitempty"`
}

// TopSignal returns the first (most specific) signal, if any.
func (s SignalScore) TopSignal() (string, bool) {
	if len(s.Signals) == 0 {
		return "", false
	}
	return s.Signals[0], true
}

// Recommendation fuses the four category scores into one decision.
type Recommendation struct {
	Symbol      string          `json:"symbol"`
	Score       float64         `json:"score"`
	Action      Action          `json:"action"`
	Label       string          `json:"label"`
	Confidence  ConfidenceLabel `json:"confidence"`
	Technical   SignalScore     `json:"technical"`
	Forecast    SignalScore     `json:"forecast"`
	Trend       SignalScore     `json:"trend"`
	Volume      SignalScore     `json:"volume"`
	Summary     string          `json:"summary"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// RecommendationReport is what the API returns: the core recommendation plus the
// context it was computed from.
type RecommendationReport struct {
	*Recommendation
	CurrentPrice  float64             `json:"current_price"`
	ChangePercent float64             `json:"change_percent"`
	Prediction    *NextStepPrediction `json:"prediction,omitempty"`
	Explanation   string              `json:"explanation,omitempty"`
	Cached        bool                `json:"cached"`
}
