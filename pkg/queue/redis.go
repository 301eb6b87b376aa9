package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinSight/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

// RedisQueue is a list-backed job queue with delayed retries, a dead letter
// list and per-message status records.
//
// Keys under the prefix: messages (list), retry (zset scored by due time in
// ms), dlq (list) and status:<id> (hash).
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 10 * config.RetryDelay
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if config.StatusTTL <= 0 {
		config.StatusTTL = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "finsight:queue",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// NewRedisPublisher creates and starts a publisher-only queue, used for log
// digests.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, &QueueConfig{}, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// RegisterJob registers the handler for job.Type(). The first registration
// of a type wins.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and, unless producer-only, starts the workers and the
// retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.logger.Info("redis publisher started", logger.String("prefix", r.keyPrefix))
		return nil
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers until ctx ends.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped", logger.String("prefix", r.keyPrefix))
		return nil
	}
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	_, err := r.EnqueueWithID(ctx, msgType, payload)
	return err
}

// EnqueueWithID adds a message and returns its ID. In producer-consumer mode
// the type must have a registered job; its status starts as queued.
func (r *RedisQueue) EnqueueWithID(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning {
		return "", ErrNotRunning
	}
	if r.mode != ModeProducerOnly {
		if _, exists := r.jobs[msgType]; !exists {
			return "", fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: r.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.queueKey(), data)
	if r.mode != ModeProducerOnly {
		r.writeStatus(ctx, pipe, msg, StateQueued, nil)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// PublishMessage enqueues payload under msgType. Used by the log collector.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Status returns the last recorded state of message id.
func (r *RedisQueue) Status(ctx context.Context, id string) (*JobStatus, error) {
	vals, err := r.client.HGetAll(ctx, r.statusKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read status %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("status %s: %w", id, ErrUnknownMessage)
	}

	st := &JobStatus{ID: id, Type: vals["type"], State: State(vals["state"]), Error: vals["error"]}
	st.Attempts, _ = strconv.Atoi(vals["attempts"])
	if ms, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		st.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return st, nil
}

// Len returns the number of messages waiting in the main queue.
func (r *RedisQueue) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.queueKey()).Result()
}

// DeadLetters returns the number of messages that exhausted their retries.
func (r *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.deadLetterKey()).Result()
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for r.ctx.Err() == nil {
		r.processNextMessage()
	}
	r.logger.Debug("queue worker stopped", logger.Int("worker_id", id))
}

func (r *RedisQueue) processNextMessage() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.PollTimeout+time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, r.config.PollTimeout, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.processMessage(msg)
}

func (r *RedisQueue) processMessage(msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.setStatus(msg, StateDead, fmt.Errorf("no job registered for type: %s", msg.Type))
		return
	}

	ctx := r.ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(r.ctx, r.config.JobTimeout)
		defer cancel()
	}
	ctx = WithMessageID(ctx, msg.ID)

	r.setStatus(msg, StateRunning, nil)
	start := time.Now()
	err := job.Handle(ctx, rawPayload(msg.Payload))
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.setStatus(msg, StateDone, nil)
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("duration_ms", elapsed))
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		// Shutdown interrupted the handler; run it again after restart.
		r.scheduleRetry(msg, r.now())
		r.logger.Warn("message interrupted by shutdown",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("duration_ms", elapsed))
	default:
		r.handleProcessingError(msg, job, err)
	}
}

// rawPayload hands JSON objects to jobs as json.RawMessage for ParsePayload.
func rawPayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	b, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(b)
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	attempt := msg.Attempts + 1
	if errors.Is(err, ErrPermanent) || msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("message failed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", attempt),
			logger.Bool("permanent", errors.Is(err, ErrPermanent)),
			logger.Error(err))
		msg.Attempts = attempt
		r.moveToDeadLetterQueue(msg, err)
		return
	}

	msg.Attempts = attempt
	due := r.now().Add(retryDelay(r.config.RetryDelay, r.config.MaxRetryDelay, attempt))
	r.scheduleRetry(msg, due)
	r.setStatus(msg, StateRetrying, err)
	r.logger.Warn("message retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", attempt),
		logger.String("retry_at", due.Format(time.RFC3339)),
		logger.Error(err))
}

func (r *RedisQueue) scheduleRetry(msg Message, due time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(due.UnixMilli()), Member: data}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), z).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message, cause error) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	ctx := context.Background()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.deadLetterKey(), data)
	r.writeStatus(ctx, pipe, msg, StateDead, cause)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) setStatus(msg Message, state State, cause error) {
	ctx := context.Background()
	pipe := r.client.TxPipeline()
	r.writeStatus(ctx, pipe, msg, state, cause)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("write job status", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) writeStatus(ctx context.Context, pipe redis.Pipeliner, msg Message, state State, cause error) {
	key := r.statusKey(msg.ID)
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	pipe.HSet(ctx, key,
		"type", msg.Type,
		"state", string(state),
		"attempts", msg.Attempts,
		"error", errText,
		"updated_at", r.now().UnixMilli())
	pipe.Expire(ctx, key, r.config.StatusTTL)
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.processRetryMessages()
		}
	}
}

// processRetryMessages moves due retries back to the main list. ZRem decides
// ownership so concurrent processes never requeue a message twice.
func (r *RedisQueue) processRetryMessages() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		if r.ctx.Err() != nil {
			return
		}
		removed, err := r.client.ZRem(r.ctx, r.retryKey(), data).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), data).Err(); err != nil {
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

func (r *RedisQueue) statusKey(id string) string {
	return r.keyPrefix + ":status:" + id
}
