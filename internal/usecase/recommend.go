package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	"FinSight/internal/services/forecast"
	"FinSight/internal/services/recommend"
	"FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
	pkgmetrics "FinSight/pkg/metrics"
	"FinSight/pkg/util"

	"golang.org/x/sync/errgroup"
)

// RecommendOptions tunes a single recommendation request.
type RecommendOptions struct {
	Explain bool
	Refresh bool
}

// RecommendUseCase gathers history, a live quote and an optional next-step
// forecast, then fuses them into a recommendation. Results are cached per
// symbol and published downstream.
type RecommendUseCase struct {
	history     *HistoryUseCase
	registry    *forecast.Registry
	recommender *recommend.Recommender
	cache       cache.Service
	cacheTTL    time.Duration
	publisher   domrepo.RecommendationPublisher
	explainer   domsvc.Explainer
	metrics     domrepo.Metrics
	historyDays int
	timeout     time.Duration
	l           *applogger.Logger
}

// RecommendConfig holds the optional collaborators of RecommendUseCase. Nil
// fields disable the corresponding step.
type RecommendConfig struct {
	Cache       cache.Service
	CacheTTL    time.Duration
	Publisher   domrepo.RecommendationPublisher
	Explainer   domsvc.Explainer
	Metrics     domrepo.Metrics
	HistoryDays int
}

func NewRecommendUseCase(history *HistoryUseCase, registry *forecast.Registry, recommender *recommend.Recommender, cfg RecommendConfig) *RecommendUseCase {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = domrepo.DefaultHistoryDays
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = pkgmetrics.Nop{}
	}
	return &RecommendUseCase{
		history:     history,
		registry:    registry,
		recommender: recommender,
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		publisher:   cfg.Publisher,
		explainer:   cfg.Explainer,
		metrics:     cfg.Metrics,
		historyDays: cfg.HistoryDays,
		timeout:     20 * time.Second,
	}
}

func (uc *RecommendUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// CacheKey is the cache entry of symbol's latest report.
func CacheKey(symbol string) string { return cache.Key("recommend", symbol) }

// Recommend returns the recommendation report for symbol, from cache unless
// Refresh is set.
func (uc *RecommendUseCase) Recommend(ctx context.Context, symbol string, opts RecommendOptions) (*models.RecommendationReport, error) {
	symbol = util.FormatSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}

	rep, hit := uc.cached(ctx, symbol, opts.Refresh)
	if !hit {
		var err error
		rep, err = uc.Evaluate(ctx, symbol)
		if err != nil {
			return nil, err
		}
		uc.publish(ctx, rep.Recommendation)
		uc.store(ctx, rep)
	}

	if opts.Explain && rep.Explanation == "" {
		uc.explain(ctx, rep)
		if rep.Explanation != "" {
			uc.store(ctx, rep)
		}
	}
	return rep, nil
}

// Evaluate computes a fresh report without touching the cache or publisher.
func (uc *RecommendUseCase) Evaluate(ctx context.Context, symbol string) (*models.RecommendationReport, error) {
	start := time.Now()
	defer func() { uc.metrics.RecordLatency("recommend", time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var (
		frame   *models.IndicatorFrame
		live    models.LivePrice
		liveErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		frame, err = uc.history.Frame(gctx, symbol, uc.historyDays)
		return err
	})
	g.Go(func() error {
		live, liveErr = uc.history.Quote(gctx, symbol)
		return nil
	})
	if err := g.Wait(); err != nil {
		uc.metrics.RecordError("recommend_history")
		return nil, fmt.Errorf("recommend %s: %w", symbol, err)
	}
	if liveErr != nil {
		uc.l.Warn("live quote unavailable, using last bar", applogger.String("symbol", symbol), applogger.Error(liveErr))
		live = quoteFromFrame(frame)
	}
	uc.metrics.RecordLastPrice(symbol, live.Price)

	pred := uc.nextStep(ctx, symbol, frame)
	rec, err := uc.recommender.Recommend(recommend.Snapshot{Frame: frame, Forecast: pred, Live: &live})
	if err != nil {
		return nil, fmt.Errorf("recommend %s: %w", symbol, err)
	}
	uc.metrics.RecordRecommendation(string(rec.Action))

	return &models.RecommendationReport{
		Recommendation: rec,
		CurrentPrice:   live.Price,
		ChangePercent:  live.ChangePercent,
		Prediction:     pred,
	}, nil
}

// nextStep is best effort: an untrained or failing model yields nil and the
// forecast category falls back to neutral.
func (uc *RecommendUseCase) nextStep(ctx context.Context, symbol string, frame *models.IndicatorFrame) *models.NextStepPrediction {
	eng := uc.registry.Engine(symbol)
	if !eng.Trained() && !eng.Load(ctx) {
		return nil
	}
	p, err := eng.PredictNextStep(frame)
	if err != nil {
		uc.l.Debug("next-step forecast skipped", applogger.String("symbol", symbol), applogger.Error(err))
		return nil
	}
	return &p
}

func (uc *RecommendUseCase) cached(ctx context.Context, symbol string, refresh bool) (*models.RecommendationReport, bool) {
	if uc.cache == nil || refresh {
		return nil, false
	}
	var rep models.RecommendationReport
	err := uc.cache.Get(ctx, CacheKey(symbol), &rep)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.l.Warn("recommendation cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return nil, false
	}
	if rep.Recommendation == nil {
		return nil, false
	}
	rep.Cached = true
	return &rep, true
}

func (uc *RecommendUseCase) store(ctx context.Context, rep *models.RecommendationReport) {
	if uc.cache == nil {
		return
	}
	cp := *rep
	cp.Cached = false
	if err := uc.cache.Set(ctx, CacheKey(rep.Symbol), &cp, uc.cacheTTL); err != nil {
		uc.l.Warn("recommendation cache write failed", applogger.String("symbol", rep.Symbol), applogger.Error(err))
	}
}

func (uc *RecommendUseCase) publish(ctx context.Context, rec *models.Recommendation) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, rec); err != nil {
		uc.metrics.RecordError("recommend_publish")
		uc.l.Warn("recommendation publish failed", applogger.String("symbol", rec.Symbol), applogger.Error(err))
	}
}

func (uc *RecommendUseCase) explain(ctx context.Context, rep *models.RecommendationReport) {
	if uc.explainer == nil {
		return
	}
	live := models.LivePrice{Symbol: rep.Symbol, Price: rep.CurrentPrice, ChangePercent: rep.ChangePercent}
	text, err := uc.explainer.Explain(ctx, rep.Recommendation, live)
	if err != nil {
		uc.metrics.RecordError("explain")
		uc.l.Warn("explanation failed", applogger.String("symbol", rep.Symbol), applogger.Error(err))
		return
	}
	rep.Explanation = text
}
