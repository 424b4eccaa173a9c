// Package slogger provides structured, correlation-aware logging for the
// application. It wraps log/slog with the Fields map style used across the
// codebase and carries the correlation ID through context.
package slogger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fields represents structured logging fields.
type Fields map[string]interface{}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// EnsureCorrelationID returns a context that carries a correlation ID,
// generating one when the context has none, along with the ID itself.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithCorrelationID(ctx, id), id
}

// CorrelationIDFromContext extracts the correlation ID from the context.
// Returns an empty string when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger is a component-scoped structured logger.
type Logger struct {
	base      *slog.Logger
	component string
}

var (
	defaultLogger   *Logger    //nolint:gochecknoglobals // Required for singleton logging infrastructure
	defaultLoggerMu sync.Mutex //nolint:gochecknoglobals // Guards defaultLogger replacement
)

// Configure installs the global logger with the given level and format.
// Level is one of debug, info, warn, error; format is json or text.
func Configure(level, format string) {
	handler := newHandler(os.Stdout, level, format)
	setDefault(&Logger{base: slog.New(handler)})
}

// SetGlobalLogger replaces the global logger (useful for testing).
func SetGlobalLogger(logger *Logger) {
	setDefault(logger)
}

// NewLogger builds a logger writing to the given slog handler. Intended for
// tests that capture output.
func NewLogger(handler slog.Handler) *Logger {
	return &Logger{base: slog.New(handler)}
}

func setDefault(logger *Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}

func getLogger() *Logger {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = &Logger{base: slog.New(newHandler(os.Stdout, "info", "json"))}
	}
	return defaultLogger
}

func newHandler(w *os.File, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger that tags every entry with the component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{base: l.base, component: component}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields)+2)
	if id := CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	for key, value := range fields {
		attrs = append(attrs, slog.Any(key, value))
	}
	l.base.LogAttrs(ctx, level, msg, attrs...)
}

// Debug logs a debug message with context.
func (l *Logger) Debug(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

// Info logs an info message with context.
func (l *Logger) Info(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

// Warn logs a warning message with context.
func (l *Logger) Warn(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

// Error logs an error message with context.
func (l *Logger) Error(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, slog.LevelError, msg, fields)
}

// ErrorWithError logs an error message with an error object and context.
func (l *Logger) ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	merged := make(Fields, len(fields)+1)
	for key, value := range fields {
		merged[key] = value
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.log(ctx, slog.LevelError, msg, merged)
}

// LogPerformance logs an operation duration at info level.
func (l *Logger) LogPerformance(ctx context.Context, operation string, duration time.Duration, fields Fields) {
	merged := make(Fields, len(fields)+2)
	for key, value := range fields {
		merged[key] = value
	}
	merged["operation"] = operation
	merged["duration_ms"] = duration.Milliseconds()
	l.log(ctx, slog.LevelInfo, "operation completed", merged)
}

// No-context method variants for call sites without a context.

// DebugNoCtx logs a debug message without context.
func (l *Logger) DebugNoCtx(msg string, fields Fields) {
	l.log(context.Background(), slog.LevelDebug, msg, fields)
}

// InfoNoCtx logs an info message without context.
func (l *Logger) InfoNoCtx(msg string, fields Fields) {
	l.log(context.Background(), slog.LevelInfo, msg, fields)
}

// WarnNoCtx logs a warning message without context.
func (l *Logger) WarnNoCtx(msg string, fields Fields) {
	l.log(context.Background(), slog.LevelWarn, msg, fields)
}

// ErrorNoCtx logs an error message without context.
func (l *Logger) ErrorNoCtx(msg string, fields Fields) {
	l.log(context.Background(), slog.LevelError, msg, fields)
}

// ErrorWithErrorNoCtx logs an error with an error object without context.
func (l *Logger) ErrorWithErrorNoCtx(err error, msg string, fields Fields) {
	l.ErrorWithError(context.Background(), err, msg, fields)
}

// Context-aware logging functions (preferred)

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	getLogger().Debug(ctx, msg, fields)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	getLogger().Info(ctx, msg, fields)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	getLogger().Warn(ctx, msg, fields)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	getLogger().Error(ctx, msg, fields)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	getLogger().ErrorWithError(ctx, err, msg, fields)
}

// No-context fallback functions (for call sites without a context)

// DebugNoCtx logs a debug message without context (uses background context).
func DebugNoCtx(msg string, fields Fields) {
	getLogger().Debug(context.Background(), msg, fields)
}

// InfoNoCtx logs an info message without context (uses background context).
func InfoNoCtx(msg string, fields Fields) {
	getLogger().Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context (uses background context).
func WarnNoCtx(msg string, fields Fields) {
	getLogger().Warn(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without context (uses background context).
func ErrorNoCtx(msg string, fields Fields) {
	getLogger().Error(context.Background(), msg, fields)
}

// ErrorWithErrorNoCtx logs an error message with an error object without context.
func ErrorWithErrorNoCtx(err error, msg string, fields Fields) {
	getLogger().ErrorWithError(context.Background(), err, msg, fields)
}

// Helper functions for creating Fields

// Field creates a single-field Fields map.
func Field(key string, value interface{}) Fields {
	return Fields{key: value}
}

// Fields2 creates a Fields map with two key-value pairs.
func Fields2(k1 string, v1 interface{}, k2 string, v2 interface{}) Fields {
	return Fields{k1: v1, k2: v2}
}

// Fields3 creates a Fields map with three key-value pairs.
func Fields3(k1 string, v1 interface{}, k2 string, v2 interface{}, k3 string, v3 interface{}) Fields {
	return Fields{k1: v1, k2: v2, k3: v3}
}

// WithComponent returns a logger with a specific component name.
func WithComponent(component string) *Logger {
	return getLogger().WithComponent(component)
}
