package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
	"FinSight/pkg/config"
)

func testRecommendation() *models.Recommendation {
	return &models.Recommendation{
		Symbol:     "TCS.NS",
		Score:      61.5,
		Action:     models.ActionBuy,
		Confidence: models.ConfidenceMedium,
		Technical:  models.SignalScore{Category: models.CategoryTechnical, Score: 60, Signals: []string{"RSI neutral"}},
		Forecast:   models.SignalScore{Category: models.CategoryForecast, Score: 70, Signals: []string{"Bullish forecast: +2.10%"}},
		Trend:      models.SignalScore{Category: models.CategoryTrend, Score: 55},
		Volume:     models.SignalScore{Category: models.CategoryVolume, Score: 50},
		Summary:    "BUY recommendation based on: RSI neutral; Bullish forecast: +2.10%",
	}
}

func explainerFor(url string, attempts int) *HTTPExplainer {
	cfg := &config.Config{}
	cfg.Explainer.URL = url + "/"
	cfg.Explainer.Timeout = time.Second
	cfg.Explainer.Attempts = attempts
	e := NewHTTPExplainer(cfg)
	e.base.backoff = time.Millisecond
	return e
}

func TestHTTPExplainer_Explain(t *testing.T) {
	var got explainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/explain", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"explanation":"  Momentum is improving.  "}`))
	}))
	defer srv.Close()

	text, err := explainerFor(srv.URL, 1).Explain(context.Background(), testRecommendation(), models.LivePrice{Price: 3500, ChangePercent: 1.2})
	require.NoError(t, err)
	assert.Equal(t, "Momentum is improving.", text)

	assert.Equal(t, "TCS.NS", got.Symbol)
	assert.Equal(t, "BUY", got.Action)
	assert.Equal(t, "Medium", got.Confidence)
	assert.Equal(t, 3500.0, got.Price)
	require.Len(t, got.Categories, 4)
	assert.Equal(t, 70.0, got.Categories[models.CategoryForecast].Score)
}

func TestHTTPExplainer_RetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"explanation":"ok"}`))
	}))
	defer srv.Close()

	text, err := explainerFor(srv.URL, 2).Explain(context.Background(), testRecommendation(), models.LivePrice{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPExplainer_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"explanation":""}`))
	}))
	defer srv.Close()

	e := explainerFor(srv.URL, 1)
	_, err := e.Explain(context.Background(), testRecommendation(), models.LivePrice{})
	assert.ErrorContains(t, err, "empty explanation")

	_, err = e.Explain(context.Background(), nil, models.LivePrice{})
	assert.Error(t, err)

	unconfigured := NewHTTPExplainer(&config.Config{})
	_, err = unconfigured.Explain(context.Background(), testRecommendation(), models.LivePrice{})
	assert.ErrorContains(t, err, "not initialized")
}

func TestNoopExplainer(t *testing.T) {
	text, err := NoopExplainer{}.Explain(context.Background(), testRecommendation(), models.LivePrice{})
	require.NoError(t, err)
	assert.Empty(t, text)
}
