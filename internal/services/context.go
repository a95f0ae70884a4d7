package services

import "context"

// Run correlation values ride the context so loggers deep in the call
// chain can tag their lines without widening every signature.

type runContextKey int

const (
	runIDContextKey runContextKey = iota + 1
	itemKeyContextKey
)

// WithRunID stamps the run identifier onto the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDContextKey, runID)
}

// RunID returns the run identifier carried by ctx, or "" when absent.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDContextKey).(string)
	return id
}

// WithItemKey stamps the catalog item key onto the context.
func WithItemKey(ctx context.Context, itemKey string) context.Context {
	if itemKey == "" {
		return ctx
	}
	return context.WithValue(ctx, itemKeyContextKey, itemKey)
}

// ItemKey returns the catalog item key carried by ctx, or "" when absent.
func ItemKey(ctx context.Context) string {
	key, _ := ctx.Value(itemKeyContextKey).(string)
	return key
}
