package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/llamaedge/chat-core/internal/requestctx"
)

func TestRequestFieldsHook(t *testing.T) {
	hook := requestFields

	t.Run("with request id", func(t *testing.T) {
		ctx := requestctx.WithRequestID(context.Background(), "req-test-id")
		fields := hook.Apply(ctx, "test message")
		assert.Len(t, fields, 1)
		assert.Equal(t, "request_id", fields[0].Key)
		assert.Equal(t, "req-test-id", fields[0].String)
	})

	t.Run("with graph name", func(t *testing.T) {
		ctx := requestctx.WithGraphName(context.Background(), "llama-2-7b")
		fields := hook.Apply(ctx, "test message")
		assert.Len(t, fields, 1)
		assert.Equal(t, "graph_name", fields[0].Key)
		assert.Equal(t, "llama-2-7b", fields[0].String)
	})

	t.Run("with both request id and graph name", func(t *testing.T) {
		ctx := requestctx.WithRequestID(context.Background(), "req-test-id")
		ctx = requestctx.WithGraphName(ctx, "llama-2-7b")
		fields := hook.Apply(ctx, "test message")
		assert.Len(t, fields, 2)
	})

	t.Run("with context that has neither", func(t *testing.T) {
		ctx := context.Background()
		fields := hook.Apply(ctx, "test message")
		assert.Len(t, fields, 0)
	})

	t.Run("with nil context", func(t *testing.T) {
		fields := hook.Apply(nil, "test message") //nolint:staticcheck // explicit nil-context test, mirrors upstream
		assert.Len(t, fields, 0)
	})
}
