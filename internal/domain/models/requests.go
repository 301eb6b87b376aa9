package models

// Requests for the stock HTTP endpoints. Defined in domain for consistency and reuse.

type ForecastRequest struct {
	Symbol  string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Days    int    `query:"days" json:"days" default:"30" validate:"gte=1,lte=90"`
	Retrain bool   `query:"retrain" json:"retrain"`
}

type IndicatorForecastRequest struct {
	Symbol  string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Days    int    `query:"days" json:"days" default:"5" validate:"gte=1,lte=30"`
	Retrain bool   `query:"retrain" json:"retrain"`
}

type RecommendRequest struct {
	Symbol  string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Explain bool   `query:"explain" json:"explain"`
	Refresh bool   `query:"refresh" json:"refresh"`
}

type TrainRequest struct {
	Symbol      string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Async       bool   `json:"async"`
	HistoryDays int    `json:"history_days" default:"1825" validate:"gte=120,lte=3650"`
}

type TrainingJobRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type FeatureImportanceRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
}

type PortfolioRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=20,dive,required,symbol"`
	Budget  float64  `json:"budget" validate:"required,gt=0"`
}

type LivePriceRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
}

type HistoricalRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Days   int    `query:"days" json:"days" default:"365" validate:"gte=1,lte=3650"`
}
