// Package maxtoken provides a request-normalizing pipeline.Middleware that
// caps max_tokens to a configured ceiling.
package maxtoken

import (
	"context"

	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/pipeline"
)

// EnsureMaxTokens builds a middleware that sets request.MaxTokens to
// defaultValue when unset, and clamps it down to defaultValue when the
// caller asked for more.
func EnsureMaxTokens(defaultValue int64) pipeline.Middleware {
	return pipeline.OnRequest("max-tokens", func(ctx context.Context, request *llm.Request) (*llm.Request, error) {
		if request.MaxTokens == nil {
			request.MaxTokens = &defaultValue
		}

		if *request.MaxTokens > defaultValue {
			request.MaxTokens = &defaultValue
		}

		return request, nil
	})
}
