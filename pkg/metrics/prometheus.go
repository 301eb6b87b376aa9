package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	trainings       *prometheus.CounterVec
	trainDuration   prometheus.Histogram
	forecasts       *prometheus.CounterVec
	recommendations *prometheus.CounterVec
}

// New creates a recorder registered on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsight_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsight_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		trainings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_model_trainings_total",
				Help: "Model training runs by outcome",
			},
			[]string{"success"},
		),
		trainDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finsight_model_training_seconds",
				Help:    "Duration of model training runs",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_forecasts_total",
				Help: "Forecasts served by engine tag",
			},
			[]string{"engine"},
		),
		recommendations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_recommendations_total",
				Help: "Recommendations computed by action",
			},
			[]string{"action"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordTraining records one training run. Symbols are not used as labels.
func (r *Recorder) RecordTraining(_ string, seconds float64, ok bool) {
	r.trainings.WithLabelValues(strconv.FormatBool(ok)).Inc()
	if ok {
		r.trainDuration.Observe(seconds)
	}
}

// RecordForecast counts a served forecast by engine tag.
func (r *Recorder) RecordForecast(engine string) {
	r.forecasts.WithLabelValues(engine).Inc()
}

// RecordRecommendation counts a computed recommendation by action.
func (r *Recorder) RecordRecommendation(action string) {
	r.recommendations.WithLabelValues(action).Inc()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordTraining(string, float64, bool) {}
func (Nop) RecordForecast(string) {}
func (Nop) RecordRecommendation(string) {}
