package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type tableKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTable tags the context with the table number a request acts on.
func WithTable(ctx context.Context, table string) context.Context {
	table = strings.TrimSpace(table)
	if table == "" {
		return ctx
	}
	return context.WithValue(ctx, tableKey{}, table)
}

func TableFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(tableKey{}).(string); ok {
		return v
	}
	return ""
}
