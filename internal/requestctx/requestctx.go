// Package requestctx carries small per-request identifiers through
// context.Context so the logging layer can stamp every log line without
// threading extra parameters through every call.
package requestctx

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	graphNameKey
)

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	id, ok := ctx.Value(requestIDKey).(string)

	return id, ok
}

// WithGraphName attaches the name of the graph a request is bound to.
func WithGraphName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, graphNameKey, name)
}

// GraphName returns the graph name stored in ctx, if any.
func GraphName(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	name, ok := ctx.Value(graphNameKey).(string)

	return name, ok
}
