package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/llamaedge/chat-core/internal/requestctx"
)

// Hook derives extra structured fields from a log call's context.
type Hook interface {
	Apply(ctx context.Context, msg string) []zap.Field
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx context.Context, msg string) []zap.Field

func (f HookFunc) Apply(ctx context.Context, msg string) []zap.Field {
	return f(ctx, msg)
}

// requestFields is installed by default: it stamps request_id and
// graph_name onto every log line whose context carries them.
var requestFields = HookFunc(func(ctx context.Context, _ string) []zap.Field {
	var fields []zap.Field

	if id, ok := requestctx.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}

	if name, ok := requestctx.GraphName(ctx); ok {
		fields = append(fields, zap.String("graph_name", name))
	}

	return fields
})

func init() {
	AddHook(requestFields)
}
