package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogLoad logs the outcome of a list resource load
func (sl *StructuredLogger) LogLoad(ctx context.Context, resource, endpoint string, records int, durationMs int64, err error, errorType string) {
	fields := NewFields().
		WithResource(resource, endpoint).
		WithOperation(OpLoad)
	fields[FieldDuration] = durationMs
	logger := sl.logger.WithComponent(ComponentTable)

	if err != nil {
		fields.WithError(err).WithErrorType(errorType)
		logger.ErrorContext(ctx, "Resource load failed", fields.ToSlice()...)
		return
	}
	fields[FieldRecordCount] = records
	logger.InfoContext(ctx, "Resource loaded", fields.ToSlice()...)
}

// LogExport logs a completed spreadsheet export
func (sl *StructuredLogger) LogExport(ctx context.Context, resource, destination string, rows int) {
	fields := NewFields().
		WithResource(resource, "").
		WithOperation(OpExport)
	fields[FieldDestination] = destination
	fields[FieldViewCount] = rows

	sl.logger.WithComponent(ComponentExport).InfoContext(ctx, "View exported", fields.ToSlice()...)
}
