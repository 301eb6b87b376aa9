package models

import (
	"math"
	"time"
)

// Indicator column keys produced by the indicator calculator and consumed by the
// feature builder and the technical scorer.
const (
	ColOpen          = "Open"
	ColHigh          = "High"
	ColLow           = "Low"
	ColClose         = "Close"
	ColVolume        = "Volume"
	ColSMA20         = "SMA_20"
	ColSMA50         = "SMA_50"
	ColEMA12         = "EMA_12"
	ColEMA26         = "EMA_26"
	ColRSI           = "RSI"
	ColMACD          = "MACD"
	ColMACDSignal    = "MACD_Signal"
	ColMACDHistogram = "MACD_Histogram"
	ColBBUpper       = "BB_Upper"
	ColBBMiddle      = "BB_Middle"
	ColBBLower       = "BB_Lower"
	ColROC           = "ROC"
	ColATR           = "ATR"
)

// PriceBar is one trading day of OHLCV data.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// LivePrice is the latest quote snapshot for a symbol.
type LivePrice struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        int64     `json:"volume"`
	PrevClose     float64   `json:"prev_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// IndicatorFrame is a date-ascending bar sequence extended with named indicator
// columns. Every column has the same length as Bars; NaN marks a missing value.
// Frames are read-only once built.
type IndicatorFrame struct {
	Symbol  string
	Bars    []PriceBar
	Columns map[string][]float64
}

// Len returns the number of rows.
func (f *IndicatorFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// Has reports whether the named column exists. OHLCV keys always exist.
func (f *IndicatorFrame) Has(name string) bool {
	switch name {
	case ColOpen, ColHigh, ColLow, ColClose, ColVolume:
		return true
	}
	_, ok := f.Columns[name]
	return ok
}

// Value returns the value of column name at row i. ok is false when the column is
// absent or the value is missing.
func (f *IndicatorFrame) Value(name string, i int) (float64, bool) {
	if f == nil || i < 0 || i >= len(f.Bars) {
		return 0, false
	}
	var v float64
	b := f.Bars[i]
	switch name {
	case ColOpen:
		v = b.Open
	case ColHigh:
		v = b.High
	case ColLow:
		v = b.Low
	case ColClose:
		v = b.Close
	case ColVolume:
		v = b.Volume
	default:
		col, ok := f.Columns[name]
		if !ok || i >= len(col) {
			return 0, false
		}
		v = col[i]
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Latest returns the newest value of the named column.
func (f *IndicatorFrame) Latest(name string) (float64, bool) {
	return f.Value(name, f.Len()-1)
}

// Closes returns the close series.
func (f *IndicatorFrame) Closes() []float64 {
	out := make([]float64, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume series.
func (f *IndicatorFrame) Volumes() []float64 {
	out := make([]float64, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Volume
	}
	return out
}

// LastBar returns the newest bar.
func (f *IndicatorFrame) LastBar() (PriceBar, bool) {
	if f.Len() == 0 {
		return PriceBar{}, false
	}
	return f.Bars[len(f.Bars)-1], true
}
