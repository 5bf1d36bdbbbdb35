// Package ctxkey holds context keys shared by the HTTP layers.
// It must not import other internal packages.
package ctxkey

import (
	"context"
	"log/slog"
)

// LoggerKey is the context key type for the request-scoped logger.
type LoggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// Logger returns the logger stored in ctx, or fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
