package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("queue not running")
	// ErrPermanent marks a job failure that must not be retried.
	ErrPermanent = errors.New("permanent job failure")
	// ErrUnknownMessage is returned by Status for IDs that were never queued
	// or whose status expired.
	ErrUnknownMessage = errors.New("unknown message")
)

// Job handles one message type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers       int           // number of workers
	RetryLimit    int           // number of maximum retries
	RetryDelay    time.Duration // first retry delay, doubled per attempt
	MaxRetryDelay time.Duration // cap for the doubled delay
	PollTimeout   time.Duration // BRPOP block time per poll
	JobTimeout    time.Duration // per-message handler deadline, 0 for none
	RetryInterval time.Duration // how often due retries are moved back to the queue
	StatusTTL     time.Duration // how long job status stays readable
}

// Message represents a message in the queue
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// State is the lifecycle position of a queued message.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateDone     State = "done"
	StateDead     State = "dead"
)

// JobStatus is what clients can learn about a message they queued.
type JobStatus struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// retryDelay is base doubled for every attempt after the first, capped at max.
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

type messageIDKey struct{}

// WithMessageID attaches the queue message ID to ctx.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

// MessageID returns the ID of the message being handled, if any.
func MessageID(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey{}).(string)
	return id
}

// ParsePayload converts a delivered payload into T. Payloads arrive as
// json.RawMessage from Redis and as T or *T when handlers are called directly.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload map: %w", err)
		}
		if err := json.Unmarshal(b, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
