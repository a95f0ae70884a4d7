package logging

import (
	"context"
	"log/slog"

	"vitrine/internal/services"
)

// ContextAttrs collects the run correlation attributes carried by ctx.
func ContextAttrs(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	var attrs []Attr
	if id := services.RunID(ctx); id != "" {
		attrs = append(attrs, String(FieldRunID, id))
	}
	if key := services.ItemKey(ctx); key != "" {
		attrs = append(attrs, String(FieldItemKey, key))
	}
	return attrs
}

// WithContext augments logger with whatever ContextAttrs finds. The logger
// comes back unchanged when ctx carries nothing.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ContextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}
