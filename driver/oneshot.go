// Package driver implements the One-shot (C8) and Stream (C9) drivers: the
// two ways a reconciled, rendered prompt is turned into an OpenAI-shaped
// response, against a Graph held under the registry's exclusive lock.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/metadata"
	"github.com/llamaedge/chat-core/pipeline"
	"github.com/llamaedge/chat-core/postprocess"
	"github.com/llamaedge/chat-core/prompt"
	"github.com/llamaedge/chat-core/registry"
	"github.com/llamaedge/chat-core/toolcall"
)

// Driver wires the registry, prompt builder and image fetcher together into
// the request-handling entry points an HTTP edge calls.
type Driver struct {
	registry    *registry.Registry
	builder     *prompt.Builder
	fetch       ImageFetcher
	middlewares []pipeline.Middleware
}

// ImageFetcher resolves an image part (URL or inline) to the backend's
// image metadata value. A nil ImageFetcher disables image handling: any
// image content part is passed through untouched.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// New builds a Driver. fetch may be nil.
func New(reg *registry.Registry, builder *prompt.Builder, fetch ImageFetcher, middlewares ...pipeline.Middleware) *Driver {
	return &Driver{registry: reg, builder: builder, fetch: fetch, middlewares: middlewares}
}

// ErrEmbeddingsMode is returned when the registry is running in
// embeddings-only mode and a chat request arrives.
var ErrEmbeddingsMode = errors.New("driver: chat completions unavailable in embeddings mode")

// Complete runs the One-shot Driver (C8): reconcile metadata, build the
// prompt, invoke a blocking compute, and translate the graph's terminal
// state into a ChatCompletionObject.
func (d *Driver) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	created := time.Now().Unix()

	if d.registry.Mode() == registry.ModeEmbeddings {
		return nil, ErrEmbeddingsMode
	}

	req, err := pipeline.Chain(ctx, d.middlewares, req)
	if err != nil {
		return nil, fmt.Errorf("driver: request middleware: %w", err)
	}

	g, release, err := d.registry.Acquire(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("driver: acquire graph: %w", err)
	}
	defer release()

	image, err := d.resolveImage(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := metadata.CheckModelMetadata(g, req, image); err != nil {
		return nil, err
	}

	result, err := d.builder.Build(ctx, g, req)
	if err != nil {
		return nil, err
	}

	if err := metadata.UpdateNPredict(g, req, result.Available); err != nil {
		return nil, err
	}

	meta := g.Metadata()

	computeErr := g.Compute()

	switch {
	case computeErr == nil:
		return d.respond(g, meta, result, created, llm.FinishReasonStop, true)
	case errors.Is(computeErr, backend.ErrContextFull):
		return d.respond(g, meta, result, created, llm.FinishReasonLength, false)
	case errors.Is(computeErr, backend.ErrPromptTooLong):
		return d.respond(g, meta, result, created, llm.FinishReasonLength, false)
	default:
		return nil, backend.NewError(backend.KindBackendCompute, "driver.Complete", computeErr)
	}
}

func (d *Driver) respond(g backend.Graph, meta backend.Metadata, result *prompt.Result, created int64, finishReason string, tryToolCalls bool) (*llm.Response, error) {
	raw, err := g.GetOutput(backend.SlotPrompt)
	if err != nil {
		return nil, backend.NewError(backend.KindBackendGetOutput, "driver.respond", err)
	}

	content := postprocess.Process(string(raw), prompt.Kind(meta.PromptTemplate))

	info, err := readTokenInfo(g)
	if err != nil {
		return nil, err
	}

	message := &llm.Message{Role: llm.RoleAssistant, Content: llm.MessageContent{Text: &content}}

	if tryToolCalls && result.ToolUse {
		if calls, ok := toolcall.Parse(content, prompt.Kind(meta.PromptTemplate)); ok {
			message.ToolCalls = calls
			finishReason = llm.FinishReasonToolCalls
		}
	}

	return &llm.Response{
		ID:                "chatcmpl-" + uuid.NewString(),
		Object:            "chat.completion",
		Created:           created,
		Model:             g.Name(),
		SystemFingerprint: llm.SystemFingerprint,
		Choices: []llm.Choice{{
			Index:        0,
			Message:      message,
			FinishReason: llm.FinishReason(finishReason),
			Logprobs:     nil,
		}},
		Usage: llm.NewUsage(int64(info.PromptTokens), int64(info.CompletionTokens)),
	}, nil
}

func (d *Driver) resolveImage(ctx context.Context, req *llm.Request) (string, error) {
	if d.fetch == nil {
		return "", nil
	}

	for _, m := range req.Messages {
		for _, p := range m.Content.Parts {
			if p.Type == llm.ContentPartImage && p.ImageURL != nil {
				resolved, err := d.fetch.Fetch(ctx, p.ImageURL.URL)
				if err != nil {
					log.Warn(ctx, "driver: image fetch failed", log.Cause(err))
					continue
				}

				return resolved, nil
			}
		}
	}

	return "", nil
}

func readTokenInfo(g backend.Graph) (backend.TokenInfo, error) {
	raw, err := g.GetOutput(backend.SlotMetadata)
	if err != nil {
		return backend.TokenInfo{}, backend.NewError(backend.KindBackendGetOutput, "driver.readTokenInfo", err)
	}

	var info backend.TokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return backend.TokenInfo{}, backend.NewError(backend.KindOperation, "driver.readTokenInfo", err)
	}

	return info, nil
}
