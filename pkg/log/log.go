package log

import (
	"context"

	"go.uber.org/zap"
)

// ContextWithLogger adds logger to context. Equivalent to WithLogger;
// kept as a separate name because call sites in this package were
// written against both spellings.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return WithLogger(ctx, l)
}

// LoggerFromContext returns the logger from context, falling back to the
// shared default logger when none was attached.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	return FromContext(ctx)
}
