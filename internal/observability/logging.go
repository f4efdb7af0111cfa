// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stderr, "info", "json")
}

// NewLogger builds a Logger writing to w with the given level and format ("json" or "text").
func NewLogger(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// DiscardLogger returns a Logger that drops every record.
func DiscardLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetGlobalLogger replaces GlobalLogger.
func SetGlobalLogger(l *Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key carrying a correlation id.
const CorrelationID LogContextKey = "correlation_id"

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// APILogger provides structured logging for REST calls.
type APILogger struct {
	logger *Logger
}

// NewAPILogger creates an APILogger. A nil logger falls back to GlobalLogger.
func NewAPILogger(l *Logger) *APILogger {
	if l == nil {
		l = GlobalLogger
	}
	return &APILogger{logger: l}
}

// LogRequest logs a completed API call.
func (l *APILogger) LogRequest(ctx context.Context, method, endpoint string, status int, fields map[string]interface{}) {
	attrs := []any{
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.DebugContext(ctx, "api request", attrs...)
}

// LogError logs a failed API call.
func (l *APILogger) LogError(ctx context.Context, method, endpoint string, err error) {
	l.logger.ErrorContext(ctx, "api error",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// ChannelLogger provides structured logging for realtime channel operations.
type ChannelLogger struct {
	name   string
	logger *Logger
}

// NewChannelLogger creates a ChannelLogger for the named channel or hub.
func NewChannelLogger(name string, l *Logger) *ChannelLogger {
	if l == nil {
		l = GlobalLogger
	}
	return &ChannelLogger{name: name, logger: l}
}

// LogConnect logs a connection being established.
func (l *ChannelLogger) LogConnect(ctx context.Context, endpoint string) {
	l.logger.InfoContext(ctx, "realtime connected",
		slog.String("channel", l.name),
		slog.String("endpoint", endpoint),
	)
}

// LogDisconnect logs a connection being torn down.
func (l *ChannelLogger) LogDisconnect(ctx context.Context, reason string) {
	l.logger.InfoContext(ctx, "realtime disconnected",
		slog.String("channel", l.name),
		slog.String("reason", reason),
	)
}

// LogEvent logs an event crossing the channel.
func (l *ChannelLogger) LogEvent(ctx context.Context, direction, kind, eventID string) {
	l.logger.DebugContext(ctx, "realtime event",
		slog.String("channel", l.name),
		slog.String("direction", direction),
		slog.String("kind", kind),
		slog.String("event_id", eventID),
	)
}

// LogDrop logs a message that was not delivered.
func (l *ChannelLogger) LogDrop(ctx context.Context, reason string, err error) {
	attrs := []any{
		slog.String("channel", l.name),
		slog.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.WarnContext(ctx, "realtime message dropped", attrs...)
}

// LogError logs a channel failure.
func (l *ChannelLogger) LogError(ctx context.Context, operation string, err error) {
	l.logger.ErrorContext(ctx, "realtime error",
		slog.String("channel", l.name),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// ViewLogger provides structured logging for view lifecycles and mutations.
type ViewLogger struct {
	view   string
	logger *Logger
}

// NewViewLogger creates a ViewLogger for the named view.
func NewViewLogger(view string, l *Logger) *ViewLogger {
	if l == nil {
		l = GlobalLogger
	}
	return &ViewLogger{view: view, logger: l}
}

// LogLifecycle logs a mount, unmount or reload.
func (l *ViewLogger) LogLifecycle(ctx context.Context, event string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("view", l.view),
		slog.String("event", event),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.DebugContext(ctx, "view lifecycle", attrs...)
}

// LogFetchError logs a failed read.
func (l *ViewLogger) LogFetchError(ctx context.Context, resource string, err error) {
	l.logger.ErrorContext(ctx, "view fetch failed",
		slog.String("view", l.view),
		slog.String("resource", resource),
		slog.String("error", err.Error()),
	)
}

// LogMutationError logs a failed like/comment/photo mutation.
func (l *ViewLogger) LogMutationError(ctx context.Context, mutation, target string, rolledBack bool, err error) {
	l.logger.ErrorContext(ctx, "view mutation failed",
		slog.String("view", l.view),
		slog.String("mutation", mutation),
		slog.String("target", target),
		slog.Bool("rolled_back", rolledBack),
		slog.String("error", err.Error()),
	)
}

// Warn logs a warning scoped to the view.
func (l *ViewLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	attrs := []any{slog.String("view", l.view)}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.WarnContext(ctx, msg, attrs...)
}
