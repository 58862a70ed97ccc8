// Package pipeline runs a chain of request-normalizing hooks once per
// request, before metadata reconciliation and prompt building. There is
// exactly one backend and no network attempt or provider wire format to
// rewrite here, so the chain only ever touches the inbound request.
package pipeline

import (
	"context"

	"github.com/llamaedge/chat-core/llm"
)

// Middleware normalizes an inbound request before the driver acts on it.
// Implementations run in registration order.
type Middleware interface {
	// Name identifies the middleware for logging/debugging.
	Name() string

	// OnRequest runs once per request, before metadata reconciliation.
	OnRequest(ctx context.Context, request *llm.Request) (*llm.Request, error)
}

// OnRequest adapts a bare function into a named Middleware.
func OnRequest(name string, fn func(ctx context.Context, request *llm.Request) (*llm.Request, error)) Middleware {
	return &funcMiddleware{name: name, fn: fn}
}

type funcMiddleware struct {
	name string
	fn   func(ctx context.Context, request *llm.Request) (*llm.Request, error)
}

func (m *funcMiddleware) Name() string { return m.name }

func (m *funcMiddleware) OnRequest(ctx context.Context, request *llm.Request) (*llm.Request, error) {
	return m.fn(ctx, request)
}

// Chain runs every middleware over req in order, threading the
// (possibly-replaced) request through each.
func Chain(ctx context.Context, middlewares []Middleware, req *llm.Request) (*llm.Request, error) {
	for _, m := range middlewares {
		var err error

		req, err = m.OnRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	return req, nil
}
