package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one keyed record. Values other than []byte and string are JSON
// encoded; Headers are added to the producer's own.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON records through a kafka-go Writer and records
// per-topic throughput and latency.
type Producer struct {
	w      messageWriter
	comp   string
	source string
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	comp, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  comp,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	return newProducer(w, cfg.Compression, cfg.Source), nil
}

func newProducer(w messageWriter, comp, source string) *Producer {
	registerProducerMetrics()
	return &Producer{w: w, comp: comp, source: source, now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch writes messages to topic in one call. Nothing is written when
// any value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := p.now()
	out := make([]kafka.Message, len(messages))
	var size int
	for i, m := range messages {
		v, ctype, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode message %d for %s: %w", i, topic, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: start, Headers: p.headers(ctype, m.Headers)}
		size += len(v)
	}

	err := p.w.WriteMessages(ctx, out...)
	producerMetrics.observe(topic, p.comp, len(out), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(out), topic, err)
	}
	return nil
}

func (p *Producer) headers(ctype string, extra map[string]string) []kafka.Header {
	h := make([]kafka.Header, 0, 2+len(extra))
	h = append(h, kafka.Header{Key: "content-type", Value: []byte(ctype)})
	if p.source != "" {
		h = append(h, kafka.Header{Key: "source", Value: []byte(p.source)})
	}
	for k, v := range extra {
		h = append(h, kafka.Header{Key: k, Value: []byte(v)})
	}
	return h
}

func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encodeValue(value interface{}) ([]byte, string, error) {
	switch v := value.(type) {
	case []byte:
		return v, "application/octet-stream", nil
	case string:
		return []byte(v), "text/plain", nil
	default:
		b, err := json.Marshal(v)
		return b, "application/json", err
	}
}

type producerCollectors struct {
	once     sync.Once
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var producerMetrics producerCollectors

func registerProducerMetrics() {
	producerMetrics.once.Do(func() {
		producerMetrics.messages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finsight_kafka_producer_messages_total",
			Help: "Records handed to Kafka by topic and outcome.",
		}, []string{"topic", "compression", "result"})
		producerMetrics.bytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finsight_kafka_producer_bytes_total",
			Help: "Uncompressed payload bytes written.",
		}, []string{"topic", "compression"})
		producerMetrics.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsight_kafka_producer_publish_seconds",
			Help:    "WriteMessages latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (m *producerCollectors) observe(topic, comp string, count, size int, d time.Duration, err error) {
	if m.messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, comp, result).Add(float64(count))
	if err == nil {
		m.bytes.WithLabelValues(topic, comp).Add(float64(size))
	}
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
