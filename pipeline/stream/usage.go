// Package stream provides a request-normalizing pipeline.Middleware that
// forces a trailing usage chunk on every streaming request.
package stream

import (
	"context"

	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/pipeline"
)

// EnsureUsage builds a middleware that turns on StreamOptions.IncludeUsage
// whenever the request streams, so the driver always emits the final usage
// chunk regardless of what the caller asked for.
func EnsureUsage() pipeline.Middleware {
	return pipeline.OnRequest("stream-usage", func(ctx context.Context, request *llm.Request) (*llm.Request, error) {
		if request.Stream {
			if request.StreamOptions == nil {
				request.StreamOptions = &llm.StreamOptions{}
			}

			request.StreamOptions.IncludeUsage = true
		}

		return request, nil
	})
}
