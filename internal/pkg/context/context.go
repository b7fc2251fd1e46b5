// Package context carries request-scoped identifiers through the orchestrator.
package context

import (
	"context"
)

type contextKey string

const (
	// CorrelationIDKey is the context key for the bus correlation ID of the
	// event or request being handled.
	CorrelationIDKey contextKey = "correlation_id"

	// SourceKey is the context key for the service a call is made on behalf of.
	SourceKey contextKey = "source"
)

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context.
// Returns empty string if not found.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSource tags the context with the service name.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// GetSource retrieves the service name from context.
func GetSource(ctx context.Context) string {
	if s, ok := ctx.Value(SourceKey).(string); ok {
		return s
	}
	return ""
}
