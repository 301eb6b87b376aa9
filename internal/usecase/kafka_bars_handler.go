package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	"FinSight/pkg/cache"
	pkgkafka "FinSight/pkg/kafka"
	applogger "FinSight/pkg/logger"
	pkgmetrics "FinSight/pkg/metrics"
	"FinSight/pkg/util"
)

// KafkaBarsHandler upserts daily bars from Kafka into the bar store and drops
// the cached recommendation of every symbol it touches.
type KafkaBarsHandler struct {
	topic   string
	store   domrepo.BarStore
	cache   cache.Service
	metrics domrepo.Metrics
	l       *applogger.Logger
}

// NewKafkaBarsHandler creates the handler. cache may be nil.
func NewKafkaBarsHandler(topic string, store domrepo.BarStore, c cache.Service, metrics domrepo.Metrics) *KafkaBarsHandler {
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &KafkaBarsHandler{topic: topic, store: store, cache: c, metrics: metrics}
}

func (h *KafkaBarsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// barMessage is either one bar or a batch for one symbol:
//
//	{"symbol":"INFY","date":"2024-06-03","o":1,"h":2,"l":0.5,"c":1.5,"v":1000}
//	{"symbol":"INFY","bars":[{"t":1717372800,"o":1,...}, ...]}
//
// date accepts RFC3339, YYYY-MM-DD or unix seconds; t is unix seconds or ms.
type barMessage struct {
	Symbol string    `json:"symbol"`
	Bars   []wireBar `json:"bars"`
	wireBar
}

type wireBar struct {
	Date string  `json:"date"`
	T    int64   `json:"t"`
	O    float64 `json:"o"`
	H    float64 `json:"h"`
	L    float64 `json:"l"`
	C    float64 `json:"c"`
	V    float64 `json:"v"`
}

func (b wireBar) toBar() (models.PriceBar, bool) {
	var ts time.Time
	switch {
	case b.Date != "":
		t, ok := util.ParseTime(b.Date)
		if !ok {
			return models.PriceBar{}, false
		}
		ts = t
	case b.T > 0:
		sec := b.T
		if sec > 1e11 { // ms
			sec /= 1000
		}
		ts = time.Unix(sec, 0)
	default:
		return models.PriceBar{}, false
	}
	if b.C <= 0 {
		return models.PriceBar{}, false
	}
	return models.PriceBar{
		Date:   util.TradingDay(ts),
		Open:   b.O,
		High:   b.H,
		Low:    b.L,
		Close:  b.C,
		Volume: b.V,
	}, true
}

// Handle decodes and stores one message. Malformed payloads are skipped rather
// than retried.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m barMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("bars_unmarshal")
		return fmt.Errorf("%w: decode bars: %v", pkgkafka.ErrSkip, err)
	}
	symbol := util.FormatSymbol(m.Symbol)
	if symbol == "" {
		h.metrics.RecordError("bars_invalid")
		return fmt.Errorf("%w: missing symbol", pkgkafka.ErrSkip)
	}

	wire := m.Bars
	if len(wire) == 0 {
		wire = []wireBar{m.wireBar}
	}
	bars := make([]models.PriceBar, 0, len(wire))
	for _, w := range wire {
		if bar, ok := w.toBar(); ok {
			bars = append(bars, bar)
		}
	}
	if len(bars) == 0 {
		h.metrics.RecordError("bars_invalid")
		return fmt.Errorf("%w: no valid bars for %s", pkgkafka.ErrSkip, symbol)
	}

	start := time.Now()
	err := h.store.StoreBars(ctx, symbol, bars)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("bars_store")
		return fmt.Errorf("store bars %s: %w", symbol, err)
	}
	h.metrics.RecordLastPrice(symbol, bars[len(bars)-1].Close)

	if h.cache != nil {
		if err := h.cache.Delete(ctx, CacheKey(symbol)); err != nil {
			h.l.Warn("recommendation cache invalidation failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	h.l.Debug("bars ingested", applogger.String("symbol", symbol), applogger.Int("count", len(bars)))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
