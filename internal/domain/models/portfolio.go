package models

import "github.com/shopspring/decimal"

// Position is one symbol's share of a proportional budget allocation.
type Position struct {
	Symbol   string          `json:"symbol"`
	Action   Action          `json:"action"`
	Score    float64         `json:"score"`
	Eligible bool            `json:"eligible"`
	Weight   float64         `json:"weight"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
	Shares   int64           `json:"shares"`
	Cost     decimal.Decimal `json:"cost"`
}

// PortfolioAllocation splits a budget across bullish recommendations.
type PortfolioAllocation struct {
	Budget    decimal.Decimal   `json:"budget"`
	Invested  decimal.Decimal   `json:"invested"`
	Remaining decimal.Decimal   `json:"remaining"`
	Positions []Position        `json:"positions"`
	Skipped   map[string]string `json:"skipped,omitempty"`
}
