package indicators

import (
	"fmt"
	"math"

	"FinSight/internal/domain/models"

	"github.com/markcheno/go-talib"
)

// Config holds indicator periods.
type Config struct {
	SMAShort     int
	SMALong      int
	EMAFast      int
	EMASlow      int
	RSIPeriod    int
	MACDSignal   int
	BBPeriod     int
	BBDeviations float64
	ROCPeriod    int
	ATRPeriod    int
}

// Option configures Calculator.
type Option func(*Config)

// Calculator computes the technical columns of an IndicatorFrame with go-talib.
type Calculator struct {
	cfg Config
}

// New creates a calculator with the classic daily-chart periods.
func New(opts ...Option) *Calculator {
	cfg := Config{
		SMAShort:     20,
		SMALong:      50,
		EMAFast:      12,
		EMASlow:      26,
		RSIPeriod:    14,
		MACDSignal:   9,
		BBPeriod:     20,
		BBDeviations: 2,
		ROCPeriod:    10,
		ATRPeriod:    14,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Calculator{cfg: cfg}
}

// Compute builds the frame. Columns whose lookback exceeds the history are left
// out; warm-up rows of present columns are NaN.
func (c *Calculator) Compute(symbol string, bars []models.PriceBar) (*models.IndicatorFrame, error) {
	if len(bars) == 0 {
		return nil, models.ErrNoData
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return nil, fmt.Errorf("bars for %s not strictly ascending at %s", symbol, bars[i].Date.Format("2006-01-02"))
		}
	}

	n := len(bars)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range bars {
		open[i], high[i], low[i], closes[i] = b.Open, b.High, b.Low, b.Close
	}

	cols := make(map[string][]float64)
	put := func(name string, lookback int, values []float64) {
		cols[name] = mask(values, lookback)
	}
	cfg := c.cfg

	if n > cfg.SMAShort {
		put(models.ColSMA20, cfg.SMAShort-1, talib.Sma(closes, cfg.SMAShort))
	}
	if n > cfg.SMALong {
		put(models.ColSMA50, cfg.SMALong-1, talib.Sma(closes, cfg.SMALong))
	}
	if n > cfg.EMAFast {
		put(models.ColEMA12, cfg.EMAFast-1, talib.Ema(closes, cfg.EMAFast))
	}
	if n > cfg.EMASlow {
		put(models.ColEMA26, cfg.EMASlow-1, talib.Ema(closes, cfg.EMASlow))
	}
	if n > cfg.RSIPeriod {
		put(models.ColRSI, cfg.RSIPeriod, talib.Rsi(closes, cfg.RSIPeriod))
	}

	// The signal line is an EMA of the MACD line, so it needs its own warm-up on
	// top of the MACD lookback.
	macdLookback := (cfg.EMASlow - 1) + (cfg.MACDSignal - 1)
	signalLookback := macdLookback + cfg.MACDSignal - 1
	if n > signalLookback {
		macd, signal, hist := talib.Macd(closes, cfg.EMAFast, cfg.EMASlow, cfg.MACDSignal)
		put(models.ColMACD, macdLookback, macd)
		put(models.ColMACDSignal, signalLookback, signal)
		put(models.ColMACDHistogram, signalLookback, hist)
	}

	if n > cfg.BBPeriod {
		upper, middle, lower := talib.BBands(closes, cfg.BBPeriod, cfg.BBDeviations, cfg.BBDeviations, talib.SMA)
		put(models.ColBBUpper, cfg.BBPeriod-1, upper)
		put(models.ColBBMiddle, cfg.BBPeriod-1, middle)
		put(models.ColBBLower, cfg.BBPeriod-1, lower)
	}
	if n > cfg.ROCPeriod {
		put(models.ColROC, cfg.ROCPeriod, talib.Roc(closes, cfg.ROCPeriod))
	}
	if n > cfg.ATRPeriod+1 {
		put(models.ColATR, cfg.ATRPeriod, talib.Atr(high, low, closes, cfg.ATRPeriod))
	}

	out := make([]models.PriceBar, n)
	copy(out, bars)
	return &models.IndicatorFrame{Symbol: symbol, Bars: out, Columns: cols}, nil
}

func mask(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

// WithMovingAverages sets the short and long SMA periods.
func WithMovingAverages(short, long int) Option {
	return func(c *Config) {
		c.SMAShort = short
		c.SMALong = long
	}
}

// WithMACD sets the fast/slow EMA and signal periods.
func WithMACD(fast, slow, signal int) Option {
	return func(c *Config) {
		c.EMAFast = fast
		c.EMASlow = slow
		c.MACDSignal = signal
	}
}

// WithRSI sets the RSI period.
func WithRSI(period int) Option {
	return func(c *Config) { c.RSIPeriod = period }
}

// WithBollinger sets the band period and width in standard deviations.
func WithBollinger(period int, deviations float64) Option {
	return func(c *Config) {
		c.BBPeriod = period
		c.BBDeviations = deviations
	}
}
