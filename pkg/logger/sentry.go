package logger

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards error-level log lines to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(dsn, environment string) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures msg with the log fields as extras. An error field is sent as
// the exception so Sentry groups by error type.
func (r *SentryReporter) Report(msg string, fields []Field) {
	hub := r.hub.Clone()
	var captured error
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("log_message", msg)
		for _, f := range fields {
			if err, ok := f.Value.(error); ok && err != nil {
				captured = err
				continue
			}
			scope.SetExtra(f.Key, f.plain())
		}
	})
	if captured != nil {
		hub.CaptureException(captured)
		return
	}
	hub.CaptureMessage(msg)
}

// Flush waits up to timeout for queued events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
