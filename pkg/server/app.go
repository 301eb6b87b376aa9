package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
)

// Worker is a background component with a blocking-free Start, such as a Kafka
// consumer or a queue.
type Worker interface {
	Start() error
	Stop(ctx context.Context) error
}

// Streamer is a long-lived connection started with the application context.
type Streamer interface {
	Start(ctx context.Context) error
	Close() error
}

type namedWorker struct {
	name string
	w    Worker
}

type namedCloser struct {
	name  string
	close func() error
}

// Option attaches optional components to App.
type Option func(*App)

// WithWorker runs w for the lifetime of the app. Workers start in order and
// stop in reverse.
func WithWorker(name string, w Worker) Option {
	return func(a *App) { a.workers = append(a.workers, namedWorker{name, w}) }
}

// WithStream starts s after the workers. A stream that fails to connect is
// logged and skipped.
func WithStream(s Streamer) Option {
	return func(a *App) { a.stream = s }
}

// WithCloser releases a resource on shutdown, after every worker stopped.
// Closers run in reverse registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, namedCloser{name, fn}) }
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// App encapsulates the application lifecycle.
type App struct {
	l               *applogger.Logger
	httpServer      *xhttp.Server
	stream          Streamer
	workers         []namedWorker
	closers         []namedCloser
	shutdownTimeout time.Duration
	started         []namedWorker
}

func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{l: l, httpServer: httpServer, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until ctx is done, SIGINT or SIGTERM
// arrives, or the HTTP listener fails. It always shuts down what it started.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.l.Error("startup failed", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *App) start(ctx context.Context) error {
	for _, nw := range a.workers {
		if err := nw.w.Start(); err != nil {
			return fmt.Errorf("start %s: %w", nw.name, err)
		}
		a.started = append(a.started, nw)
		a.l.Info("component started", applogger.String("component", nw.name))
	}

	if a.stream != nil {
		if err := a.stream.Start(ctx); err != nil {
			a.l.Warn("quote stream unavailable, serving REST quotes only", applogger.Error(err))
			a.stream = nil
		} else {
			a.l.Info("component started", applogger.String("component", "quote_stream"))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("start http: %w", err)
		}
	}
	return nil
}

// shutdown stops HTTP first so no new work arrives, then the stream, workers
// and finally plain resources.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.l.Warn("quote stream close failed", applogger.Error(err))
		}
	}
	for i := len(a.started) - 1; i >= 0; i-- {
		nw := a.started[i]
		if err := nw.w.Stop(ctx); err != nil {
			a.l.Warn("component stop failed", applogger.String("component", nw.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", nw.name, err))
		}
	}
	a.started = nil
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.l.Warn("close failed", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
