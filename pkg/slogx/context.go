package slogx

import (
	"context"
	"log/slog"
)

type (
	loggerKey struct{}
	reqIDKey  struct{}
)

// WithContext stores logger for FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithRequestID tags the context logger with req_id. A logger already tagged
// with the same id is left alone so the attribute appears once per line.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if RequestID(ctx) == reqID {
		return ctx
	}
	ctx = context.WithValue(ctx, reqIDKey{}, reqID)
	return WithContext(ctx, FromContext(ctx).With("req_id", reqID))
}

// RequestID returns the id the context logger is tagged with.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}
