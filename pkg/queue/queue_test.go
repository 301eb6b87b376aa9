package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/pkg/logger"
)

type trainPayload struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days"`
}

type recordingJob struct {
	mu    sync.Mutex
	seen  []trainPayload
	ids   []string
	fail  error
	calls int
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "train_model" }

func (j *recordingJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := ParsePayload[trainPayload](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	j.seen = append(j.seen, *p)
	j.ids = append(j.ids, MessageID(ctx))
	return j.fail
}

func (j *recordingJob) snapshot() (int, []trainPayload, []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls, append([]trainPayload(nil), j.seen...), append([]string(nil), j.ids...)
}

func newTestQueue(t *testing.T, job Job, retries int) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg := &QueueConfig{
		Workers:       1,
		RetryLimit:    retries,
		RetryDelay:    time.Millisecond,
		PollTimeout:   50 * time.Millisecond,
		RetryInterval: 20 * time.Millisecond,
	}
	q := NewRedisQueue(logger.NewNop(), cfg, client, ModeProducerConsumer, WithKeyPrefix("test:queue"))
	q.RegisterJob(job)
	return mr, q
}

func TestRedisQueue_DeliversPayload(t *testing.T) {
	job := &recordingJob{}
	_, q := newTestQueue(t, job, 0)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	id, err := q.EnqueueWithID(context.Background(), "train_model", trainPayload{Symbol: "TCS.NS", Days: 1825})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		calls, _, _ := job.snapshot()
		return calls == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, seen, ids := job.snapshot()
	assert.Equal(t, trainPayload{Symbol: "TCS.NS", Days: 1825}, seen[0])
	assert.Equal(t, id, ids[0])

	require.Eventually(t, func() bool {
		st, err := q.Status(context.Background(), id)
		return err == nil && st.State == StateDone
	}, 3*time.Second, 10*time.Millisecond)
	st, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "train_model", st.Type)
	assert.Equal(t, 0, st.Attempts)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestRedisQueue_StatusUnknownAndExpiring(t *testing.T) {
	job := &recordingJob{}
	mr, q := newTestQueue(t, job, 0)

	_, err := q.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	// Workers are not running, so the message stays queued.
	q.isRunning = true
	id, err := q.EnqueueWithID(context.Background(), "train_model", trainPayload{Symbol: "INFY.NS"})
	require.NoError(t, err)
	st, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st.State)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	mr.FastForward(25 * time.Hour)
	_, err = q.Status(context.Background(), id)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestRedisQueue_RejectsUnknownTypeAndStopped(t *testing.T) {
	job := &recordingJob{}
	_, q := newTestQueue(t, job, 0)

	err := q.Enqueue(context.Background(), "train_model", trainPayload{})
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, q.Start())
	defer q.Stop(context.Background())
	assert.Error(t, q.Enqueue(context.Background(), "unknown", nil))
}

func TestRedisQueue_RetriesThenDeadLetters(t *testing.T) {
	job := &recordingJob{fail: errors.New("feed down")}
	_, q := newTestQueue(t, job, 1)
	q.config.RetryDelay = 0
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "train_model", trainPayload{Symbol: "X"}))

	require.Eventually(t, func() bool {
		n, err := q.DeadLetters(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	calls, _, ids := job.snapshot()
	assert.Equal(t, 2, calls)

	st, err := q.Status(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, StateDead, st.State)
	assert.Equal(t, 2, st.Attempts)
	assert.Equal(t, "feed down", st.Error)
}

func TestRedisQueue_PermanentFailureSkipsRetry(t *testing.T) {
	job := &recordingJob{fail: ErrPermanent}
	_, q := newTestQueue(t, job, 3)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "train_model", trainPayload{Symbol: "X"}))
	require.Eventually(t, func() bool {
		n, _ := q.DeadLetters(context.Background())
		return n == 1
	}, 3*time.Second, 10*time.Millisecond)

	calls, _, _ := job.snapshot()
	assert.Equal(t, 1, calls)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(time.Second, 10*time.Second, 1))
	assert.Equal(t, 4*time.Second, retryDelay(time.Second, 10*time.Second, 3))
	assert.Equal(t, 10*time.Second, retryDelay(time.Second, 10*time.Second, 8))
	assert.Equal(t, time.Duration(0), retryDelay(0, 0, 3))
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[trainPayload](map[string]interface{}{"symbol": "A", "days": 5})
	require.NoError(t, err)
	assert.Equal(t, "A", p.Symbol)
	assert.Equal(t, 5, p.Days)

	_, err = ParsePayload[trainPayload](42)
	assert.Error(t, err)
}
