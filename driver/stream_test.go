package driver_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/backend/backendtest"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/prompt"
)

func decodeChunk(t *testing.T, raw string) *llm.Response {
	t.Helper()

	var resp llm.Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	return &resp
}

func drain(t *testing.T, s interface {
	Next(context.Context) bool
	Current() string
	Err() error
}) []string {
	t.Helper()

	var out []string
	for s.Next(context.Background()) {
		out = append(out, s.Current())
	}

	require.NoError(t, s.Err())

	return out
}

func TestStream_IncrementalNormalEnd(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.Steps = []backendtest.Step{
		{Token: []byte("Hel")},
		{Token: []byte("lo")},
	}
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 5, CompletionTokens: 2}

	d, _ := newDriver(t, mock)

	req := userRequest("demo", "Hi")
	req.Stream = true
	req.StreamOptions = &llm.StreamOptions{IncludeUsage: true}

	s, err := d.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	chunks := drain(t, s)
	require.Len(t, chunks, 4) // "Hel", "lo", usage, [DONE]

	first := decodeChunk(t, chunks[0])
	require.Equal(t, "Hel", *first.Choices[0].Delta.Content.Text)
	require.Nil(t, first.Choices[0].FinishReason)
	require.NotZero(t, first.Created)

	second := decodeChunk(t, chunks[1])
	require.Equal(t, "lo", *second.Choices[0].Delta.Content.Text)
	require.Equal(t, first.Created, second.Created)

	usage := decodeChunk(t, chunks[2])
	require.Equal(t, int64(5), usage.Usage.PromptTokens)
	require.Equal(t, int64(2), usage.Usage.CompletionTokens)
	require.Equal(t, first.Created, usage.Created)

	require.Equal(t, "[DONE]", chunks[3])
	require.Equal(t, 1, mock.FinishSingleCalls)
}

func TestStream_ContextFullMidStream(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.Steps = []backendtest.Step{
		{Token: []byte("Hi")},
		{Err: backend.ErrContextFull},
	}
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 5, CompletionTokens: 500}

	d, _ := newDriver(t, mock)

	req := userRequest("demo", "Hi")
	req.Stream = true
	req.StreamOptions = &llm.StreamOptions{IncludeUsage: true}

	s, err := d.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	chunks := drain(t, s)
	require.Len(t, chunks, 4) // "Hi", length-chunk, usage, [DONE]

	limit := decodeChunk(t, chunks[1])
	require.Equal(t, "<|WASMEDGE-GGML-CONTEXT-FULL|>", *limit.Choices[0].Delta.Content.Text)
	require.Equal(t, llm.FinishReasonLength, *limit.Choices[0].FinishReason)

	require.Equal(t, "[DONE]", chunks[3])
	require.Equal(t, 1, mock.FinishSingleCalls)
}

func TestStream_PromptTooLongAtStart(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.Steps = []backendtest.Step{
		{Err: backend.ErrPromptTooLong},
	}
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 4096, CompletionTokens: 0}

	d, _ := newDriver(t, mock)

	req := userRequest("demo", "Hi")
	req.Stream = true
	req.StreamOptions = &llm.StreamOptions{IncludeUsage: true}

	s, err := d.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	chunks := drain(t, s)
	require.Len(t, chunks, 3) // length-chunk(content=null), usage, [DONE]

	limit := decodeChunk(t, chunks[0])
	require.Nil(t, limit.Choices[0].Delta.Content.Text)
	require.Equal(t, llm.FinishReasonLength, *limit.Choices[0].FinishReason)

	require.Equal(t, 1, mock.FinishSingleCalls)
}

func TestStream_ToolCallPrecomputed(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{
		CtxSize:        4096,
		NPredict:       512,
		PromptTemplate: string(prompt.ChatMLToolKind),
	})
	mock.OneShotOutput = []byte(`<tool_call>{"name": "get_weather", "arguments": {"city": "NYC"}}</tool_call>`)
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 20, CompletionTokens: 8}

	d, _ := newDriver(t, mock)

	req := userRequest("demo", "What's the weather?")
	req.Stream = true
	req.Tools = []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "get_weather"}}}
	req.ToolChoice = &llm.ToolChoice{Kind: llm.ToolChoiceAuto}

	s, err := d.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	chunks := drain(t, s)
	require.Len(t, chunks, 2) // tool-call chunk, [DONE]

	toolChunk := decodeChunk(t, chunks[0])
	require.Equal(t, llm.FinishReasonToolCalls, *toolChunk.Choices[0].FinishReason)
	require.Len(t, toolChunk.Choices[0].Delta.ToolCalls, 1)

	// Pre-computed mode never opens a compute_single session.
	require.Equal(t, 0, mock.FinishSingleCalls)
}

func TestStream_Close_ReleasesOnEarlyDrop(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.Steps = []backendtest.Step{
		{Token: []byte("Hello")},
		{Token: []byte(" world")},
	}

	d, reg := newDriver(t, mock)

	req := userRequest("demo", "Hi")
	req.Stream = true

	s, err := d.Stream(context.Background(), req)
	require.NoError(t, err)

	require.True(t, s.Next(context.Background()))
	require.NoError(t, s.Close())
	require.Equal(t, 1, mock.FinishSingleCalls)

	// A second Close must be a no-op, not a double FinishSingle call.
	require.NoError(t, s.Close())
	require.Equal(t, 1, mock.FinishSingleCalls)

	require.NotNil(t, reg)
}
