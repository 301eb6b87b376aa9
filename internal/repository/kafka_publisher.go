package repository

import (
	"context"

	"FinSight/internal/domain/models"
	"FinSight/pkg/kafka"
)

const recommendationEventType = "recommendation.v1"

// messageProducer is the part of pkg/kafka.Producer the publisher needs.
type messageProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
	Close() error
}

// KafkaRecommendationPublisher emits recommendations keyed by symbol.
type KafkaRecommendationPublisher struct {
	producer messageProducer
	topic    string
}

// NewKafkaRecommendationPublisher creates a publisher on topic.
func NewKafkaRecommendationPublisher(producer messageProducer, topic string) *KafkaRecommendationPublisher {
	return &KafkaRecommendationPublisher{producer: producer, topic: topic}
}

func (p *KafkaRecommendationPublisher) Publish(ctx context.Context, rec *models.Recommendation) error {
	return p.PublishAll(ctx, []*models.Recommendation{rec})
}

// PublishAll writes every recommendation in a single batch.
func (p *KafkaRecommendationPublisher) PublishAll(ctx context.Context, recs []*models.Recommendation) error {
	msgs := make([]kafka.Message, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(rec.Symbol),
			Value:   newRecommendationEvent(rec),
			Headers: map[string]string{"event": recommendationEventType},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func newRecommendationEvent(rec *models.Recommendation) recommendationEvent {
	return recommendationEvent{
		Symbol:      rec.Symbol,
		Action:      string(rec.Action),
		Score:       rec.Score,
		Confidence:  string(rec.Confidence),
		Technical:   rec.Technical.Score,
		Forecast:    rec.Forecast.Score,
		Trend:       rec.Trend.Score,
		Volume:      rec.Volume.Score,
		Summary:     rec.Summary,
		GeneratedAt: rec.GeneratedAt.Unix(),
	}
}

func (p *KafkaRecommendationPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// recommendationEvent is the wire form on the recommendations topic.
type recommendationEvent struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Score       float64 `json:"score"`
	Confidence  string  `json:"confidence"`
	Technical   float64 `json:"technical"`
	Forecast    float64 `json:"forecast"`
	Trend       float64 `json:"trend"`
	Volume      float64 `json:"volume"`
	Summary     string  `json:"summary"`
	GeneratedAt int64   `json:"t"`
}

// NoopRecommendationPublisher drops every recommendation; used when Kafka is off.
type NoopRecommendationPublisher struct{}

func (NoopRecommendationPublisher) Publish(context.Context, *models.Recommendation) error { return nil }
func (NoopRecommendationPublisher) PublishAll(context.Context, []*models.Recommendation) error {
	return nil
}
func (NoopRecommendationPublisher) Close() error { return nil }
