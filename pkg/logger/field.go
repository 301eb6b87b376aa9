package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field is one structured key/value attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) apply(e *zerolog.Event) {
	switch v := f.Value.(type) {
	case nil:
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case int64:
		e.Int64(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case bool:
		e.Bool(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	default:
		e.Interface(f.Key, v)
	}
}

func (f Field) applyCtx(c zerolog.Context) zerolog.Context {
	switch v := f.Value.(type) {
	case nil:
		return c
	case string:
		return c.Str(f.Key, v)
	case error:
		return c.AnErr(f.Key, v)
	default:
		return c.Interface(f.Key, v)
	}
}

// plain is the JSON-friendly value used by the collector and Sentry extras.
func (f Field) plain() interface{} {
	if err, ok := f.Value.(error); ok {
		return err.Error()
	}
	return f.Value
}

func String(key, value string) Field { return Field{key, value} }

func Strings(key string, value []string) Field { return Field{key, strings.Join(value, ", ")} }

func Int(key string, value int) Field { return Field{key, value} }

func Int64(key string, value int64) Field { return Field{key, value} }

func Float64(key string, value float64) Field { return Field{key, value} }

func Bool(key string, value bool) Field { return Field{key, value} }

// Duration logs whole milliseconds.
func Duration(key string, value time.Duration) Field { return Field{key, value.Milliseconds()} }

// Error logs err under "error". A nil err is dropped by zerolog.
func Error(err error) Field { return Field{zerolog.ErrorFieldName, err} }

func Any(key string, value interface{}) Field { return Field{key, value} }
