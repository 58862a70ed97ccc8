package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/llm/streams"
	"github.com/llamaedge/chat-core/metadata"
	"github.com/llamaedge/chat-core/pipeline"
	"github.com/llamaedge/chat-core/postprocess"
	"github.com/llamaedge/chat-core/prompt"
	"github.com/llamaedge/chat-core/registry"
	"github.com/llamaedge/chat-core/toolcall"
)

// maxUTF8Residual bounds the per-stream byte buffer used to reassemble a
// multi-byte code point that straddles a compute_single token boundary.
// Bytes left over this long can never decode: the backend is emitting
// garbage, and the stream fails outright rather than buffer forever.
const maxUTF8Residual = 4

// terminator is the sentinel value Next returns to signal the stream is
// exhausted; it is never written to the wire.
const terminator = "[GGML] End of sequence"

// streamState tags which wind-down chunk an incremental stream emits next
// once generation itself has ended (normally or via a context/prompt
// limit), independent of whichever terminal condition triggered it.
type streamState int

const (
	stateUsage streamState = iota
	stateDone
	stateEndOfSequence
)

// Stream is the pull-based SSE sequence the Stream Driver (C9) exposes.
// Call Next until it returns false, reading Current (or Err) after each
// call; Close must run at least once, including when the caller abandons
// the stream early, to release the graph's backend-side session state.
type Stream struct {
	g    backend.Graph
	meta backend.Metadata

	release func()
	done    bool
	err     error
	current string

	// pre-computed mode: a fixed chunk sequence drained in order. No
	// compute_single session is ever opened in this mode, so Close must not
	// call FinishSingle.
	cache       streams.Stream[string]
	precomputed bool

	// incremental mode.
	includeUsage bool
	kind         prompt.Kind
	state        streamState
	contextFull  bool
	promptLong   bool
	residual     []byte
	toolUse      bool

	id      string
	model   string
	created int64
	started bool

	finished bool
}

// Stream runs the Stream Driver (C9): reconcile, build the prompt and
// hand back a pull-based Stream of SSE event bodies. Each body is a bare
// marshaled chunk or the literal "[DONE]", not yet framed; the caller
// frames each one as a `data: ...` event (see package sse).
func (d *Driver) Stream(ctx context.Context, req *llm.Request) (*Stream, error) {
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

	image, err := d.resolveImage(ctx, req)
	if err != nil {
		release()
		return nil, err
	}

	if err := metadata.CheckModelMetadata(g, req, image); err != nil {
		release()
		return nil, err
	}

	result, err := d.builder.Build(ctx, g, req)
	if err != nil {
		release()
		return nil, err
	}

	if err := metadata.UpdateNPredict(g, req, result.Available); err != nil {
		release()
		return nil, err
	}

	meta := g.Metadata()

	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage

	s := &Stream{
		g:            g,
		meta:         meta,
		release:      release,
		includeUsage: includeUsage,
		kind:         prompt.Kind(meta.PromptTemplate),
		toolUse:      result.ToolUse,
		id:           "chatcmpl-" + uuid.NewString(),
		model:        g.Name(),
		created:      created,
	}

	if !includeUsage {
		s.state = stateDone
	}

	// Tool-call streams need the full generation materialized up front to
	// run the parser against, so they alone take the blocking Compute()
	// path into pre-computed mode. Every other stream starts in genuine
	// incremental mode: its first Next() call drives the first
	// compute_single pull itself, which is what reports ContextFull or
	// PromptTooLong at the very start of generation, not a separate
	// blocking call.
	if !result.ToolUse {
		return s, nil
	}

	computeErr := g.Compute()

	switch {
	case computeErr == nil:
		s.precomputed = true

		if err := s.buildCompletedCache(); err != nil {
			release()
			return nil, err
		}
	case errors.Is(computeErr, backend.ErrContextFull):
		s.precomputed = true

		if err := s.buildLimitCache("<|WASMEDGE-GGML-CONTEXT-FULL|>", false); err != nil {
			release()
			return nil, err
		}
	case errors.Is(computeErr, backend.ErrPromptTooLong):
		s.precomputed = true

		if err := s.buildLimitCache("", true); err != nil {
			release()
			return nil, err
		}
	default:
		release()
		return nil, backend.NewError(backend.KindBackendCompute, "driver.Stream", computeErr)
	}

	return s, nil
}

// buildLimitCache handles the case where the initial blocking Compute
// reported ContextFull or PromptTooLong immediately (before any token was
// streamed): the Message/Usage/Done sequence is built entirely up front,
// matching the pre-computed-mode contract.
func (s *Stream) buildLimitCache(content string, contentNull bool) error {
	delta := &llm.Message{Role: llm.RoleAssistant}
	if !contentNull {
		delta.Content = llm.MessageContent{Text: &content}
	}

	items := []string{s.encode(delta, nil, llm.FinishReason(llm.FinishReasonLength))}

	if s.includeUsage {
		info, err := readTokenInfo(s.g)
		if err != nil {
			return err
		}

		items = append(items, s.encodeUsage(info))
	}

	items = append(items, "[DONE]")
	s.cache = streams.SliceStream(items)

	return nil
}

// buildCompletedCache handles the case where the initial blocking Compute
// already ran to completion (rather than streaming token by token): used
// when the one-shot path's output is re-exposed as a pre-computed chunk
// sequence, e.g. for tool-call streams.
func (s *Stream) buildCompletedCache() error {
	raw, err := s.g.GetOutput(backend.SlotPrompt)
	if err != nil {
		return backend.NewError(backend.KindBackendGetOutput, "driver.Stream", err)
	}

	content := postprocess.Process(string(raw), s.kind)

	info, err := readTokenInfo(s.g)
	if err != nil {
		return err
	}

	delta := &llm.Message{Role: llm.RoleAssistant}
	finishReason := llm.FinishReasonStop

	if s.toolUse {
		if calls, ok := toolcall.Parse(content, s.kind); ok {
			delta.ToolCalls = calls
			finishReason = llm.FinishReasonToolCalls
		} else {
			delta.Content = llm.MessageContent{Text: &content}
		}
	} else {
		delta.Content = llm.MessageContent{Text: &content}
	}

	items := []string{s.encode(delta, nil, llm.FinishReason(finishReason))}

	if s.includeUsage {
		items = append(items, s.encodeUsage(info))
	}

	items = append(items, "[DONE]")
	s.cache = streams.SliceStream(items)

	return nil
}

// Next advances the stream by one SSE event body. It returns false once
// the stream is exhausted; callers must then stop writing and call Close.
func (s *Stream) Next(ctx context.Context) bool {
	if s.done {
		return false
	}

	if s.cache != nil {
		if s.cache.Next() {
			s.current = s.cache.Current()
			return true
		}

		s.done = true

		return false
	}

	if s.contextFull {
		return s.nextLimited(ctx, "<|WASMEDGE-GGML-CONTEXT-FULL|>", false)
	}

	if s.promptLong {
		return s.nextLimited(ctx, "", true)
	}

	return s.nextIncremental(ctx)
}

// nextLimited drives the ContextFull/PromptTooLong wind-down: a Message
// chunk (content set or null), then the same Usage/Done/EndOfSequence
// cascade as normal completion.
func (s *Stream) nextLimited(ctx context.Context, content string, contentNull bool) bool {
	if !s.started {
		s.started = true

		delta := &llm.Message{Role: llm.RoleAssistant}
		if !contentNull {
			delta.Content = llm.MessageContent{Text: &content}
		}

		s.current = s.encode(delta, nil, llm.FinishReason(llm.FinishReasonLength))

		return true
	}

	return s.windDown(ctx)
}

// nextIncremental drives one compute_single pull.
func (s *Stream) nextIncremental(ctx context.Context) bool {
	err := s.g.ComputeSingle()

	switch {
	case err == nil:
		return s.nextToken(ctx)
	case errors.Is(err, backend.ErrEndOfSequence):
		return s.windDown(ctx)
	case errors.Is(err, backend.ErrContextFull):
		s.contextFull = true
		return s.nextLimited(ctx, "<|WASMEDGE-GGML-CONTEXT-FULL|>", false)
	case errors.Is(err, backend.ErrPromptTooLong):
		s.promptLong = true
		return s.nextLimited(ctx, "", true)
	default:
		s.finishSingle(ctx)
		s.err = backend.NewError(backend.KindBackendComputeOne, "driver.Stream.Next", err)
		s.done = true

		return false
	}
}

func (s *Stream) nextToken(ctx context.Context) bool {
	raw, err := s.g.GetOutputSingle(backend.SlotPrompt)
	if err != nil {
		s.finishSingle(ctx)
		s.err = backend.NewError(backend.KindBackendGetOutput, "driver.Stream.Next", err)
		s.done = true

		return false
	}

	buf := append(s.residual, raw...)

	if !utf8.Valid(buf) {
		if len(buf) > maxUTF8Residual {
			s.finishSingle(ctx)
			s.err = backend.NewError(backend.KindOperation, "driver.Stream.Next",
				fmt.Errorf("utf8 residual exceeded %d bytes without decoding", maxUTF8Residual))
			s.done = true

			return false
		}

		s.residual = buf

		return s.nextIncremental(ctx)
	}

	s.residual = nil
	token := string(buf)

	delta := &llm.Message{Role: llm.RoleAssistant, Content: llm.MessageContent{Text: &token}}
	s.current = s.encode(delta, nil, nil)

	return true
}

// windDown advances the shared Usage -> Done -> EndOfSequence cascade used
// by normal completion and by both limit wind-downs.
func (s *Stream) windDown(ctx context.Context) bool {
	switch s.state {
	case stateUsage:
		info, err := readTokenInfo(s.g)
		if err != nil {
			s.finishSingle(ctx)
			s.err = err
			s.done = true

			return false
		}

		s.current = s.encodeUsage(info)
		s.state = stateDone

		return true
	case stateDone:
		s.current = "[DONE]"
		s.state = stateEndOfSequence

		return true
	default:
		s.finishSingle(ctx)
		s.current = terminator
		s.done = true

		return false
	}
}

// Current returns the most recent SSE event body produced by Next.
func (s *Stream) Current() string { return s.current }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the graph's streaming session state and the registry
// lock. It is safe to call more than once.
func (s *Stream) Close() error {
	s.finishSingle(context.Background())
	s.done = true

	if s.release != nil {
		s.release()
		s.release = nil
	}

	return s.err
}

// finishSingle calls the graph's FinishSingle exactly once per stream,
// releasing backend-side streaming session state on every exit path
// (normal drain, error, or caller drop).
func (s *Stream) finishSingle(ctx context.Context) {
	if s.finished || s.precomputed {
		return
	}

	s.finished = true

	if err := s.g.FinishSingle(); err != nil && s.err == nil {
		s.err = backend.NewError(backend.KindBackendFinishSingle, "driver.Stream.Close", err)
	}

	_ = ctx
}

func (s *Stream) encode(delta *llm.Message, usage *llm.Usage, finishReason *string) string {
	chunk := &llm.Response{
		ID:                s.id,
		Object:            "chat.completion.chunk",
		Created:           s.created,
		Model:             s.model,
		SystemFingerprint: llm.SystemFingerprint,
		Choices: []llm.Choice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
			Logprobs:     nil,
		}},
		Usage: usage,
	}

	return marshalChunk(chunk)
}

func (s *Stream) encodeUsage(info backend.TokenInfo) string {
	chunk := &llm.Response{
		ID:                s.id,
		Object:            "chat.completion.chunk",
		Created:           s.created,
		Model:             s.model,
		SystemFingerprint: llm.SystemFingerprint,
		Choices:           []llm.Choice{},
		Usage:             llm.NewUsage(int64(info.PromptTokens), int64(info.CompletionTokens)),
	}

	return marshalChunk(chunk)
}

func marshalChunk(chunk *llm.Response) string {
	body, err := json.Marshal(chunk)
	if err != nil {
		// Response marshals every field with static types; a failure here
		// means a programming error, not a runtime condition callers can
		// recover from.
		panic(fmt.Sprintf("driver: marshal chunk: %v", err))
	}

	return string(body)
}
