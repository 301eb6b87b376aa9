// Package testsupport builds deterministic market data for tests.
package testsupport

import (
	"math"
	"math/rand"
	"time"

	"FinSight/internal/domain/models"
)

// Start is the date of the first synthetic bar.
var Start = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

// BusinessDays returns n consecutive weekdays starting at from.
func BusinessDays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := from
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// WavyBars returns n bars drifting upward with a seasonal wave and seeded noise.
func WavyBars(n int, seed int64) []models.PriceBar {
	rng := rand.New(rand.NewSource(seed))
	dates := BusinessDays(Start, n)
	bars := make([]models.PriceBar, n)
	prev := 100.0
	for i := range bars {
		c := 100 + 0.15*float64(i) + 6*math.Sin(float64(i)/9) + rng.NormFloat64()
		bars[i] = models.PriceBar{
			Date:   dates[i],
			Open:   prev,
			High:   math.Max(prev, c) + 0.5 + rng.Float64(),
			Low:    math.Min(prev, c) - 0.5 - rng.Float64(),
			Close:  c,
			Volume: 1_000_000 + 250_000*math.Sin(float64(i)/4) + 50_000*rng.Float64(),
		}
		prev = c
	}
	return bars
}

// RisingBars returns n bars whose close rises strictly by step each day with a
// constant volume.
func RisingBars(n int, start, step, volume float64) []models.PriceBar {
	dates := BusinessDays(Start, n)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = models.PriceBar{
			Date:   dates[i],
			Open:   c - step/2,
			High:   c + step,
			Low:    c - step,
			Close:  c,
			Volume: volume,
		}
	}
	return bars
}

// FlatBars returns n bars with a constant price and volume.
func FlatBars(n int, price, volume float64) []models.PriceBar {
	dates := BusinessDays(Start, n)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{Date: dates[i], Open: price, High: price, Low: price, Close: price, Volume: volume}
	}
	return bars
}

// Frame wraps bars with explicit indicator columns, for scorer tests that pin
// indicator values directly.
func Frame(symbol string, bars []models.PriceBar, cols map[string][]float64) *models.IndicatorFrame {
	if cols == nil {
		cols = map[string][]float64{}
	}
	return &models.IndicatorFrame{Symbol: symbol, Bars: bars, Columns: cols}
}

// Constant returns a column of n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
