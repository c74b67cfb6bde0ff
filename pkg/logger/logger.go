// Package logger wraps zerolog behind the small field-chaining API used across
// the service.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

// RequestIDKey carries the request identifier through a request context.
const RequestIDKey contextKey = "request_id"

// Logger is a named, structured logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger for the given component at the given level. Unknown
// levels fall back to info.
func New(component, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	return &Logger{zl: zl}
}

// NewDefault creates an info-level logger for the given component.
func NewDefault(component string) *Logger {
	return New(component, "info")
}

// WithField returns a logger with an additional field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with all given fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithContext attaches the request id from ctx, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if id := RequestID(ctx); id != "" {
		return l.WithField("request_id", id)
	}
	return l
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

// WithRequestID stores a request id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID extracts the request id from the context, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
