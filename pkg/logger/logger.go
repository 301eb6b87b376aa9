package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog. Warnings and errors are also folded into an optional
// LogCollector, and errors go to Sentry when a DSN is configured. A nil
// *Logger discards everything.
type Logger struct {
	zl    zerolog.Logger
	base  []Field
	sinks *sinks
}

// sinks is shared by a logger and every child made with With.
type sinks struct {
	mu        sync.RWMutex
	collector *LogCollector
	reporter  *SentryReporter
}

type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json or console
	Output      string // stdout, stderr or a file path
	TimeFormat  string
	SentryDSN   string
	Environment string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	l := &Logger{
		zl:    zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(4).Logger(),
		sinks: &sinks{},
	}
	if cfg.SentryDSN != "" {
		r, err := NewSentryReporter(cfg.SentryDSN, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		l.sinks.reporter = r
	}
	return l, nil
}

// NewNop returns a logger that writes nowhere but still feeds a collector.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), sinks: &sinks{}}
}

// NewWriter returns a JSON logger writing to w at level.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger(), sinks: &sinks{}}
}

// With returns a child logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.applyCtx(ctx)
	}
	return &Logger{
		zl:    ctx.Logger(),
		base:  append(append([]Field(nil), l.base...), fields...),
		sinks: l.sinks,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.write(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.write(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.write(l.zl.Warn(), msg, fields)
	l.collect("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	if l == nil {
		return
	}
	l.write(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)

	l.sinks.mu.RLock()
	r := l.sinks.reporter
	l.sinks.mu.RUnlock()
	if r != nil {
		r.Report(msg, append(l.base[:len(l.base):len(l.base)], fields...))
	}
}

func (l *Logger) write(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	l.sinks.mu.RLock()
	c := l.sinks.collector
	l.sinks.mu.RUnlock()
	if c == nil {
		return
	}

	// this function -> Warn/Error -> caller
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.LastIndex(file, "FinSight/"); i >= 0 {
			file = file[i+len("FinSight/"):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	m := make(map[string]interface{}, len(l.base)+len(fields))
	for _, f := range l.base {
		m[f.Key] = f.plain()
	}
	for _, f := range fields {
		m[f.Key] = f.plain()
	}
	c.AddLog(level, msg, m, caller)
}

// AddCollector starts aggregating warnings and errors, replacing any previous
// collector.
func (l *Logger) AddCollector(config *CollectionConfig) {
	next := NewLogCollector(config)
	l.sinks.mu.Lock()
	prev := l.sinks.collector
	l.sinks.collector = next
	l.sinks.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (l *Logger) RemoveCollector() {
	l.sinks.mu.Lock()
	prev := l.sinks.collector
	l.sinks.collector = nil
	l.sinks.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Close publishes the last digest and flushes pending Sentry events.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.RemoveCollector()
	if l.sinks.reporter != nil {
		l.sinks.reporter.Flush(2 * time.Second)
	}
}
