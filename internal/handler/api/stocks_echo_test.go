package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/usecase"
	xlogger "FinSight/pkg/logger"
	"FinSight/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockForecaster struct{ mock.Mock }

func (m *mockForecaster) Forecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error) {
	args := m.Called(ctx, symbol, days, retrain)
	res, _ := args.Get(0).(*models.ForecastResult)
	return res, args.Error(1)
}

func (m *mockForecaster) IndicatorForecast(ctx context.Context, symbol string, days int, retrain bool) (*models.ForecastResult, error) {
	args := m.Called(ctx, symbol, days, retrain)
	res, _ := args.Get(0).(*models.ForecastResult)
	return res, args.Error(1)
}

type mockRecommender struct{ mock.Mock }

func (m *mockRecommender) Recommend(ctx context.Context, symbol string, opts usecase.RecommendOptions) (*models.RecommendationReport, error) {
	args := m.Called(ctx, symbol, opts)
	res, _ := args.Get(0).(*models.RecommendationReport)
	return res, args.Error(1)
}

type mockTrainer struct{ mock.Mock }

func (m *mockTrainer) Train(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error) {
	args := m.Called(ctx, symbol, historyDays)
	res, _ := args.Get(0).(*models.TrainingReport)
	return res, args.Error(1)
}

func (m *mockTrainer) TrainAsync(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error) {
	args := m.Called(ctx, symbol, historyDays)
	res, _ := args.Get(0).(*models.TrainingReport)
	return res, args.Error(1)
}

func (m *mockTrainer) JobStatus(ctx context.Context, id string) (*models.TrainingJob, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.TrainingJob)
	return res, args.Error(1)
}

func (m *mockTrainer) FeatureImportance(ctx context.Context, symbol string) (*models.TrainingReport, error) {
	args := m.Called(ctx, symbol)
	res, _ := args.Get(0).(*models.TrainingReport)
	return res, args.Error(1)
}

type mockAllocator struct{ mock.Mock }

func (m *mockAllocator) Allocate(ctx context.Context, symbols []string, budget float64) (*models.PortfolioAllocation, error) {
	args := m.Called(ctx, symbols, budget)
	res, _ := args.Get(0).(*models.PortfolioAllocation)
	return res, args.Error(1)
}

type mockMarket struct{ mock.Mock }

func (m *mockMarket) Quote(ctx context.Context, symbol string) (models.LivePrice, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(models.LivePrice), args.Error(1)
}

func (m *mockMarket) Bars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error) {
	args := m.Called(ctx, symbol, days)
	res, _ := args.Get(0).([]models.PriceBar)
	return res, args.Error(1)
}

type fixture struct {
	e         *echo.Echo
	forecasts *mockForecaster
	recs      *mockRecommender
	trainer   *mockTrainer
	portfolio *mockAllocator
	market    *mockMarket
}

func newFixture(limits RateLimits) *fixture {
	f := &fixture{
		e:         echo.New(),
		forecasts: &mockForecaster{},
		recs:      &mockRecommender{},
		trainer:   &mockTrainer{},
		portfolio: &mockAllocator{},
		market:    &mockMarket{},
	}
	h := NewStocksEchoHandler(xlogger.NewNop(), f.forecasts, f.recs, f.trainer, f.portfolio, f.market, limits)
	h.RegisterRoutes(f.e)
	return f
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestPredict_DefaultsAndSuccess(t *testing.T) {
	f := newFixture(RateLimits{})
	f.forecasts.On("Forecast", mock.Anything, "infy", 30, false).Return(&models.ForecastResult{
		Symbol: "INFY.NS", Engine: models.EngineML, Days: 30,
	}, nil)

	rec, env := f.do(t, http.MethodGet, "/api/predict/infy", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	var res models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.EngineML, res.Engine)
	f.forecasts.AssertExpectations(t)
}

func TestPredict_ValidationError(t *testing.T) {
	f := newFixture(RateLimits{})
	rec, _ := f.do(t, http.MethodGet, "/api/predict/infy?days=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.forecasts.AssertNotCalled(t, "Forecast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPredictIndicator_PassesRetrain(t *testing.T) {
	f := newFixture(RateLimits{})
	f.forecasts.On("IndicatorForecast", mock.Anything, "TCS", 4, true).Return(&models.ForecastResult{
		Symbol: "TCS.NS", Direction: models.DirectionIncrease,
	}, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/predict-indicator/TCS?days=4&retrain=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	f.forecasts.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient", models.ErrDataInsufficient, http.StatusUnprocessableEntity, "ERR_DATA_INSUFFICIENT"},
		{"no data", models.ErrNoData, http.StatusNotFound, "ERR_NOT_FOUND"},
		{"not trained", models.ErrNotTrained, http.StatusConflict, "ERR_NOT_TRAINED"},
		{"busy", models.ErrTrainingInProgress, http.StatusConflict, "ERR_TRAINING_IN_PROGRESS"},
		{"unknown", assert.AnError, http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(RateLimits{})
			f.trainer.On("FeatureImportance", mock.Anything, "INFY").Return(nil, tc.err)

			rec, env := f.do(t, http.MethodGet, "/api/feature-importance/INFY", "")
			assert.Equal(t, tc.status, rec.Code)
			if tc.code == "" {
				return
			}
			var errs []map[string]interface{}
			require.NoError(t, json.Unmarshal(env.Data, &errs))
			require.Len(t, errs, 1)
			assert.Equal(t, tc.code, errs[0]["code"])
		})
	}
}

func TestRecommend_PassesOptions(t *testing.T) {
	f := newFixture(RateLimits{})
	rep := &models.RecommendationReport{
		Recommendation: &models.Recommendation{Symbol: "INFY.NS", Score: 58, Action: models.ActionBuy},
		CurrentPrice:   1500,
		Cached:         true,
	}
	f.recs.On("Recommend", mock.Anything, "INFY", usecase.RecommendOptions{Explain: true}).Return(rep, nil)

	rec, env := f.do(t, http.MethodGet, "/api/recommend/INFY?explain=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=60", rec.Header().Get(echo.HeaderCacheControl))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "BUY", got["action"])
	assert.Equal(t, true, got["cached"])
}

func TestTrain_SyncAsyncAndRateLimit(t *testing.T) {
	f := newFixture(RateLimits{TrainPerMinute: 2})
	f.trainer.On("Train", mock.Anything, "INFY", 1825).Return(&models.TrainingReport{Symbol: "INFY.NS"}, nil)
	f.trainer.On("TrainAsync", mock.Anything, "INFY", 730).Return(&models.TrainingReport{Symbol: "INFY.NS", JobID: "job-1", Queued: true}, nil)

	rec, _ := f.do(t, http.MethodPost, "/api/train/INFY", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/train/INFY", `{"async":true,"history_days":730}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	var rep models.TrainingReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, "job-1", rep.JobID)

	rec, _ = f.do(t, http.MethodPost, "/api/train/INFY", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	f.trainer.AssertNumberOfCalls(t, "Train", 1)
}

func TestTrainingJob(t *testing.T) {
	f := newFixture(RateLimits{})
	id := "6f1c2b8e-4a7d-4e39-9d1f-0c2a5b7e9f10"
	f.trainer.On("JobStatus", mock.Anything, id).Return(&models.TrainingJob{JobID: id, State: "done"}, nil)
	f.trainer.On("JobStatus", mock.Anything, mock.Anything).Return(nil, queue.ErrUnknownMessage)

	rec, env := f.do(t, http.MethodGet, "/api/train/jobs/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var job models.TrainingJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "done", job.State)

	rec, _ = f.do(t, http.MethodGet, "/api/train/jobs/0b7d3c1a-9e2f-4c5b-8a6d-1f3e5a7c9b2d", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/train/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolio(t *testing.T) {
	f := newFixture(RateLimits{})
	alloc := &models.PortfolioAllocation{
		Budget:    decimal.NewFromInt(10000),
		Invested:  decimal.NewFromInt(9000),
		Remaining: decimal.NewFromInt(1000),
	}
	f.portfolio.On("Allocate", mock.Anything, []string{"infy", "tcs"}, 10000.0).Return(alloc, nil)

	rec, _ := f.do(t, http.MethodPost, "/api/portfolio", `{"symbols":["infy","tcs"],"budget":10000}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/portfolio", `{"symbols":["infy"],"budget":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/portfolio", `{"symbols":["  "],"budget":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.portfolio.AssertNumberOfCalls(t, "Allocate", 1)
}

func TestLiveAndHistorical(t *testing.T) {
	f := newFixture(RateLimits{})
	f.market.On("Quote", mock.Anything, "INFY.NS").Return(models.LivePrice{Symbol: "INFY.NS", Price: 1500}, nil)
	f.market.On("Bars", mock.Anything, "INFY.NS", 30).Return([]models.PriceBar{
		{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Close: 1490},
		{Date: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), Close: 1500},
	}, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/live/infy", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/api/historical/infy?days=30", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.PriceBar `json:"rows"`
		Total int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Rows, 2)
}
