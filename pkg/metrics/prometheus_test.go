package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordForecast("ml")
	r.RecordForecast("ml")
	r.RecordForecast("heuristic_fallback")
	r.RecordRecommendation("BUY")
	r.RecordTraining("TCS.NS", 3.2, true)
	r.RecordTraining("TCS.NS", 0, false)
	r.RecordError("feed_quote")
	r.RecordLastPrice("TCS.NS", 3500.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.forecasts.WithLabelValues("ml")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecasts.WithLabelValues("heuristic_fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recommendations.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trainings.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trainings.WithLabelValues("false")))
	assert.Equal(t, 3500.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("TCS.NS")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.trainDuration))
}
