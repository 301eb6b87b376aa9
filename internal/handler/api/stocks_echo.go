package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/service/metrics"
	"FinSight/internal/service/ratelimit"
	"FinSight/internal/usecase"
	xhttp "FinSight/pkg/http"
	xlogger "FinSight/pkg/logger"
	"FinSight/pkg/queue"
	"FinSight/pkg/util"

	"github.com/labstack/echo/v4"
)

// Forecaster produces price paths.
type Forecaster interface {
	Forecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error)
	IndicatorForecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error)
}

// Recommender produces recommendation reports.
type Recommender interface {
	Recommend(ctx context.Context, symbol string, opts usecase.RecommendOptions) (*models.RecommendationReport, error)
}

// Trainer fits models and reports on them.
type Trainer interface {
	Train(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error)
	TrainAsync(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error)
	FeatureImportance(ctx context.Context, symbol string) (*models.TrainingReport, error)
	JobStatus(ctx context.Context, id string) (*models.TrainingJob, error)
}

// Allocator splits a budget across symbols.
type Allocator interface {
	Allocate(ctx context.Context, symbols []string, budget float64) (*models.PortfolioAllocation, error)
}

// MarketData serves quotes and bar history.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.LivePrice, error)
	Bars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error)
}

// RateLimits caps the expensive endpoints per client, in requests per minute.
// Zero disables a limit.
type RateLimits struct {
	TrainPerMinute     float64
	PortfolioPerMinute float64
}

// StocksEchoHandler serves the forecast, recommendation, training and market
// data endpoints.
type StocksEchoHandler struct {
	logger    *xlogger.Logger
	forecasts Forecaster
	recs      Recommender
	trainer   Trainer
	portfolio Allocator
	market    MarketData
	limits    RateLimits
	rl        *ratelimit.Limiter
}

func NewStocksEchoHandler(logger *xlogger.Logger, forecasts Forecaster, recs Recommender, trainer Trainer, portfolio Allocator, market MarketData, limits RateLimits) *StocksEchoHandler {
	metrics.Register()
	return &StocksEchoHandler{
		logger:    logger,
		forecasts: forecasts,
		recs:      recs,
		trainer:   trainer,
		portfolio: portfolio,
		market:    market,
		limits:    limits,
		rl:        ratelimit.New(),
	}
}

func (h *StocksEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predict/:symbol", h.Predict)
	g.GET("/predict-indicator/:symbol", h.PredictIndicator)
	g.GET("/recommend/:symbol", h.Recommend)
	g.POST("/train/:symbol", h.Train)
	g.GET("/train/jobs/:id", h.TrainingJob)
	g.GET("/feature-importance/:symbol", h.FeatureImportance)
	g.POST("/portfolio", h.Portfolio)
	g.GET("/live/:symbol", h.LivePrice)
	g.GET("/historical/:symbol", h.Historical)
}

func (h *StocksEchoHandler) Predict(c echo.Context) error {
	defer observe("predict", time.Now())
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecasts.Forecast(c.Request().Context(), req.Symbol, req.Days, req.Retrain)
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StocksEchoHandler) PredictIndicator(c echo.Context) error {
	defer observe("predict_indicator", time.Now())
	req := &models.IndicatorForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecasts.IndicatorForecast(c.Request().Context(), req.Symbol, req.Days, req.Retrain)
	if err != nil {
		return h.fail(c, "predict_indicator", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StocksEchoHandler) Recommend(c echo.Context) error {
	defer observe("recommend", time.Now())
	req := &models.RecommendRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.recs.Recommend(c.Request().Context(), req.Symbol, usecase.RecommendOptions{Explain: req.Explain, Refresh: req.Refresh})
	if err != nil {
		return h.fail(c, "recommend", err)
	}
	if rep.Cached {
		metrics.RecommendationCache.WithLabelValues("hit").Inc()
	} else {
		metrics.RecommendationCache.WithLabelValues("miss").Inc()
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, rep)
}

func (h *StocksEchoHandler) Train(c echo.Context) error {
	defer observe("train", time.Now())
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if ok, wait := h.allow(c, "train", h.limits.TrainPerMinute); !ok {
		return h.fail(c, "train", xhttp.TooManyRequestsError("training rate limit exceeded", wait))
	}

	ctx := c.Request().Context()
	if req.Async {
		rep, err := h.trainer.TrainAsync(ctx, req.Symbol, req.HistoryDays)
		if err != nil {
			return h.fail(c, "train", err)
		}
		if rep.Queued {
			return xhttp.AcceptedResponse(c, rep)
		}
		return xhttp.SuccessResponse(c, rep)
	}

	rep, err := h.trainer.Train(ctx, req.Symbol, req.HistoryDays)
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *StocksEchoHandler) TrainingJob(c echo.Context) error {
	defer observe("training_job", time.Now())
	req := &models.TrainingJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.trainer.JobStatus(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "training_job", err)
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *StocksEchoHandler) FeatureImportance(c echo.Context) error {
	defer observe("feature_importance", time.Now())
	req := &models.FeatureImportanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.trainer.FeatureImportance(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "feature_importance", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *StocksEchoHandler) Portfolio(c echo.Context) error {
	defer observe("portfolio", time.Now())
	req := &models.PortfolioRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(util.FormatSymbols(req.Symbols)) == 0 {
		return h.fail(c, "portfolio", xhttp.BadRequestError("symbols list required"))
	}
	if ok, wait := h.allow(c, "portfolio", h.limits.PortfolioPerMinute); !ok {
		return h.fail(c, "portfolio", xhttp.TooManyRequestsError("portfolio rate limit exceeded", wait))
	}

	res, err := h.portfolio.Allocate(c.Request().Context(), req.Symbols, req.Budget)
	if err != nil {
		return h.fail(c, "portfolio", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StocksEchoHandler) LivePrice(c echo.Context) error {
	defer observe("live", time.Now())
	req := &models.LivePriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	lp, err := h.market.Quote(c.Request().Context(), util.FormatSymbol(req.Symbol))
	if err != nil {
		return h.fail(c, "live", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, lp)
}

func (h *StocksEchoHandler) Historical(c echo.Context) error {
	defer observe("historical", time.Now())
	req := &models.HistoricalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	bars, err := h.market.Bars(c.Request().Context(), util.FormatSymbol(req.Symbol), req.Days)
	if err != nil {
		return h.fail(c, "historical", err)
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// allow applies a per-client limit of perMinute requests with an equal burst.
func (h *StocksEchoHandler) allow(c echo.Context, endpoint string, perMinute float64) (bool, time.Duration) {
	if perMinute <= 0 {
		return true, 0
	}
	return h.rl.Allow(c.RealIP()+":"+endpoint, perMinute, perMinute/60)
}

// fail maps domain errors onto API errors and writes them.
func (h *StocksEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= 500 {
		h.logger.Error("stocks endpoint failed", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	} else {
		h.logger.Debug("stocks endpoint rejected", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var (
		appErr    *xhttp.AppError
		statusErr *xhttp.StatusError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrDataInsufficient), errors.Is(err, models.ErrNumericDegenerate):
		return xhttp.UnprocessableError("ERR_DATA_INSUFFICIENT", "not enough usable price history").WithError(err)
	case errors.Is(err, models.ErrNoData):
		return xhttp.NotFoundError("no market data for symbol").WithError(err)
	case errors.Is(err, models.ErrNotTrained):
		return xhttp.ConflictError("ERR_NOT_TRAINED", "model not trained for symbol").WithError(err)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.ConflictError("ERR_TRAINING_IN_PROGRESS", "training already running for symbol").WithError(err)
	case errors.Is(err, queue.ErrUnknownMessage):
		return xhttp.NotFoundError("training job not found").WithError(err)
	case errors.Is(err, queue.ErrNotRunning):
		return xhttp.NewAppError("ERR_QUEUE_UNAVAILABLE", "", "training queue unavailable", http.StatusServiceUnavailable).WithError(err)
	case errors.As(err, &statusErr):
		return xhttp.BadGatewayError(fmt.Sprintf("market data provider returned %d", statusErr.Code)).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.BadGatewayError("upstream timeout").WithError(err)
	default:
		return xhttp.InternalError("request failed").WithError(err)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
