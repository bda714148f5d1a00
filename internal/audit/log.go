package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"meetbook.org/internal/auth"
	"meetbook.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var (
	sinkMu sync.RWMutex
	sink   *slog.Logger
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// NewFileWriter returns a size-rotated writer for the audit trail.
func NewFileWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// SetOutput mirrors audit events as JSON lines to w. A nil w disables the mirror.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if w == nil {
		sink = nil
		return
	}
	sink = slog.New(slog.NewJSONHandler(w, nil))
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	fieldAttrs := make([]any, 0, len(fields))
	for k, v := range fields {
		fieldAttrs = append(fieldAttrs, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", fieldAttrs...))

	obs.Logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)

	sinkMu.RLock()
	s := sink
	sinkMu.RUnlock()
	if s != nil {
		s.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	}
	return nil
}
