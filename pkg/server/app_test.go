package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

type fakeWorker struct {
	name     string
	j        *journal
	startErr error
}

func (w *fakeWorker) Start() error {
	if w.startErr != nil {
		return w.startErr
	}
	w.j.add("start " + w.name)
	return nil
}

func (w *fakeWorker) Stop(context.Context) error {
	w.j.add("stop " + w.name)
	return nil
}

type fakeStream struct {
	j   *journal
	err error
}

func (s *fakeStream) Start(context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.j.add("start stream")
	return nil
}

func (s *fakeStream) Close() error {
	s.j.add("close stream")
	return nil
}

func newTestServer() *xhttp.Server {
	return xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithLogger(applogger.NewNop()))
}

func TestRunStartsAndStopsInOrder(t *testing.T) {
	j := &journal{}
	app := New(applogger.NewNop(), newTestServer(),
		WithWorker("queue", &fakeWorker{name: "queue", j: j}),
		WithWorker("consumer", &fakeWorker{name: "consumer", j: j}),
		WithStream(&fakeStream{j: j}),
		WithCloser("redis", func() error { j.add("close redis"); return nil }),
		WithCloser("producer", func() error { j.add("close producer"); return errors.New("ignored") }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))

	assert.Equal(t, []string{
		"start queue", "start consumer", "start stream",
		"close stream", "stop consumer", "stop queue",
		"close producer", "close redis",
	}, j.events)
}

func TestRunStopsStartedWorkersOnStartupFailure(t *testing.T) {
	j := &journal{}
	boom := errors.New("redis ping: refused")
	app := New(applogger.NewNop(), newTestServer(),
		WithWorker("queue", &fakeWorker{name: "queue", j: j}),
		WithWorker("consumer", &fakeWorker{name: "consumer", j: j, startErr: boom}),
	)

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start queue", "stop queue"}, j.events)
}

func TestRunSkipsFailedStream(t *testing.T) {
	j := &journal{}
	app := New(applogger.NewNop(), newTestServer(), WithStream(&fakeStream{j: j, err: errors.New("dial")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
	assert.Empty(t, j.events)
}
