package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	"FinSight/internal/services/forecast"
	"FinSight/internal/services/ml"
	"FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
	pkgmetrics "FinSight/pkg/metrics"
	"FinSight/pkg/util"
)

const (
	// signalThreshold is the path change, in percent, that turns ai_signal from
	// HOLD into BUY or SELL.
	signalThreshold = 1.0
	stableDelta     = 0.01

	minIndicatorDays = 3
	maxIndicatorDays = 5
)

// indicatorColumns are echoed by the short-horizon indicator endpoint.
var indicatorColumns = []string{
	models.ColRSI, models.ColMACD, models.ColMACDSignal,
	models.ColSMA20, models.ColSMA50, models.ColBBUpper, models.ColBBLower, models.ColATR,
}

// ForecastOptions tunes ForecastUseCase.
type ForecastOptions struct {
	HistoryDays int
	AutoTrain   bool
}

// ForecastUseCase produces multi-day price paths. The model path is preferred;
// when it cannot run the use case degrades to a damped projection of the last
// daily change rather than failing.
type ForecastUseCase struct {
	history  *HistoryUseCase
	registry *forecast.Registry
	locks    cache.Service
	metrics  domrepo.Metrics
	opts     ForecastOptions
	l        *applogger.Logger
	now      func() time.Time
}

// NewForecastUseCase creates the use case. locks guards on-demand fits with
// the same per-symbol lock TrainUseCase takes and may be nil.
func NewForecastUseCase(history *HistoryUseCase, registry *forecast.Registry, locks cache.Service, metrics domrepo.Metrics, opts ForecastOptions) *ForecastUseCase {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = domrepo.DefaultHistoryDays
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &ForecastUseCase{history: history, registry: registry, locks: locks, metrics: metrics, opts: opts, now: time.Now}
}

func (uc *ForecastUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// Forecast returns a days-long path for symbol, tagged with the engine that
// produced it.
func (uc *ForecastUseCase) Forecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error) {
	res, _, err := uc.run(ctx, util.FormatSymbol(symbol), days, retrain)
	return res, err
}

// IndicatorForecast is the compact 3 to 5 day forecast with a direction label
// and the latest technical indicators.
func (uc *ForecastUseCase) IndicatorForecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error) {
	days = max(minIndicatorDays, min(days, maxIndicatorDays))
	res, frame, err := uc.run(ctx, util.FormatSymbol(symbol), days, retrain)
	if err != nil {
		return nil, err
	}
	res.Direction = direction(res.Trend)
	if frame != nil {
		res.Indicators = make(map[string]float64, len(indicatorColumns))
		for _, col := range indicatorColumns {
			if v, ok := frame.Latest(col); ok {
				res.Indicators[col] = ml.Round(v, 2)
			}
		}
	}
	return res, nil
}

func (uc *ForecastUseCase) run(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, *models.IndicatorFrame, error) {
	if symbol == "" {
		return nil, nil, fmt.Errorf("symbol required")
	}
	start := time.Now()
	defer func() { uc.metrics.RecordLatency("forecast", time.Since(start).Seconds()) }()

	frame, ferr := uc.history.Frame(ctx, symbol, uc.opts.HistoryDays)
	if ferr != nil {
		uc.l.Warn("history unavailable, using heuristic", applogger.String("symbol", symbol), applogger.Error(ferr))
		live, err := uc.history.Quote(ctx, symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("forecast %s: %w", symbol, errors.Join(ferr, err))
		}
		res := uc.heuristic(symbol, models.EngineHeuristic, live, uc.now(), days)
		return res, nil, nil
	}

	live, err := uc.history.Quote(ctx, symbol)
	if err != nil {
		live = quoteFromFrame(frame)
	}
	last, _ := frame.LastBar()

	res, err := uc.model(ctx, symbol, frame, live, days, retrain)
	if err != nil {
		uc.l.Warn("model forecast failed, using heuristic", applogger.String("symbol", symbol), applogger.Error(err))
		return uc.heuristic(symbol, models.EngineMLFallback, live, last.Date, days), frame, nil
	}
	return res, frame, nil
}

// model runs the trained engine, loading or fitting it first when needed. A
// fit already running elsewhere surfaces as ErrTrainingInProgress.
func (uc *ForecastUseCase) model(ctx context.Context, symbol string, frame *models.IndicatorFrame, live models.LivePrice, days int, retrain bool) (*models.ForecastResult, error) {
	eng := uc.registry.Engine(symbol)
	retrained := false
	if retrain || (!eng.Trained() && !eng.Load(ctx)) {
		if !retrain && !uc.opts.AutoTrain {
			return nil, models.ErrNotTrained
		}
		err := withTrainLock(ctx, uc.locks, symbol, uc.l, func() error {
			_, err := fitAndSave(ctx, eng, frame, uc.metrics, uc.l)
			return err
		})
		if err != nil {
			return nil, err
		}
		retrained = true
	}

	points, err := eng.PredictPath(frame, days)
	if err != nil {
		return nil, err
	}
	current := live.Price
	if current <= 0 {
		current = frame.Bars[frame.Len()-1].Close
	}
	last, _ := frame.LastBar()

	engine := models.EngineML
	if len(points) == 0 {
		engine = models.EnginePassthrough
		points = forecast.Flat(current, days)
	}
	res := uc.result(symbol, engine, current, points, last.Date, days)
	res.Truncated = len(points) < days
	res.Confidence = ml.Round(eng.Confidence()*100, 2)
	res.Retrained = retrained
	res.TopFeatures = eng.FeatureImportance()
	if next, err := eng.PredictNextStep(frame); err == nil {
		res.NextDay = &next
	}
	return res, nil
}

func (uc *ForecastUseCase) heuristic(symbol, engine string, live models.LivePrice, from time.Time, days int) *models.ForecastResult {
	res := uc.result(symbol, engine, live.Price, forecast.Project(live.Price, live.ChangePercent, days), from, days)
	res.Confidence = forecast.HeuristicConfidence
	return res
}

func (uc *ForecastUseCase) result(symbol, engine string, current float64, points []models.ForecastPoint, from time.Time, days int) *models.ForecastResult {
	uc.metrics.RecordForecast(engine)

	dates := util.NextBusinessDays(from, len(points))
	dated := make([]models.DatedForecast, len(points))
	for i, p := range points {
		dated[i] = models.DatedForecast{Day: p.Day, Date: dates[i], Price: p.Price}
	}

	predicted := current
	if len(points) > 0 {
		predicted = points[len(points)-1].Price
	}
	trend, signal, changePct := classify(current, predicted)
	return &models.ForecastResult{
		Symbol:         symbol,
		Engine:         engine,
		CurrentPrice:   ml.Round(current, 2),
		PredictedPrice: ml.Round(predicted, 2),
		ChangePercent:  ml.Round(changePct, 2),
		Trend:          trend,
		Signal:         signal,
		Days:           days,
		Points:         dated,
		GeneratedAt:    uc.now().UTC(),
	}
}

// classify labels the move from current to predicted.
func classify(current, predicted float64) (trend, signal string, changePct float64) {
	delta := predicted - current
	if current != 0 {
		changePct = delta / current * 100
	}
	switch {
	case math.Abs(delta) < stableDelta:
		trend = models.TrendStable
	case delta > 0:
		trend = models.TrendIncrease
	default:
		trend = models.TrendDecrease
	}
	switch {
	case changePct > signalThreshold:
		signal = string(models.ActionBuy)
	case changePct < -signalThreshold:
		signal = string(models.ActionSell)
	default:
		signal = string(models.ActionHold)
	}
	return trend, signal, changePct
}

func direction(trend string) string {
	switch trend {
	case models.TrendIncrease:
		return models.DirectionIncrease
	case models.TrendDecrease:
		return models.DirectionDecrease
	default:
		return models.DirectionHold
	}
}
