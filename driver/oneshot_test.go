package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/backend/backendtest"
	"github.com/llamaedge/chat-core/driver"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/prompt"
	"github.com/llamaedge/chat-core/registry"
)

func strPtr(s string) *string { return &s }

func newChatMLMock(name string) *backendtest.Mock {
	return backendtest.NewMock(name, backend.Metadata{
		CtxSize:        4096,
		NPredict:       512,
		PromptTemplate: string(prompt.ChatML),
	})
}

func userRequest(model, text string) *llm.Request {
	return &llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: llm.MessageContent{Text: strPtr(text)}},
		},
	}
}

func newDriver(t *testing.T, mocks ...*backendtest.Mock) (*driver.Driver, *registry.Registry) {
	t.Helper()

	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	for _, m := range mocks {
		reg.Register(m)
	}

	builder := prompt.NewBuilder(prompt.NewRegistry())

	return driver.New(reg, builder, nil), reg
}

func TestComplete_PlainOneShot(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.OneShotOutput = []byte("Hello there<|im_end|>")
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 10, CompletionTokens: 3}

	d, _ := newDriver(t, mock)

	resp, err := d.Complete(context.Background(), userRequest("demo", "Hi"))
	require.NoError(t, err)

	require.Len(t, resp.Choices, 1)
	require.Equal(t, "Hello there", resp.Choices[0].Message.Content.AsText())
	require.Equal(t, llm.FinishReasonStop, *resp.Choices[0].FinishReason)
	require.Equal(t, int64(10), resp.Usage.PromptTokens)
	require.Equal(t, int64(3), resp.Usage.CompletionTokens)
	require.Equal(t, int64(13), resp.Usage.TotalTokens)
	require.Equal(t, llm.SystemFingerprint, resp.SystemFingerprint)
	require.NotZero(t, resp.Created)
}

func TestComplete_ContextFull(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.OneShotOutput = []byte("partial output<|im_end|>")
	mock.OneShotErr = backend.ErrContextFull
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 10, CompletionTokens: 500}

	d, _ := newDriver(t, mock)

	resp, err := d.Complete(context.Background(), userRequest("demo", "Hi"))
	require.NoError(t, err)
	require.Equal(t, llm.FinishReasonLength, *resp.Choices[0].FinishReason)
}

func TestComplete_PromptTooLong(t *testing.T) {
	mock := newChatMLMock("demo")
	mock.OneShotErr = backend.ErrPromptTooLong
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 4096, CompletionTokens: 0}

	d, _ := newDriver(t, mock)

	resp, err := d.Complete(context.Background(), userRequest("demo", "Hi"))
	require.NoError(t, err)
	require.Equal(t, llm.FinishReasonLength, *resp.Choices[0].FinishReason)
}

func TestComplete_EmbeddingsModeRejected(t *testing.T) {
	reg, err := registry.New(registry.ModeEmbeddings, nil, 0)
	require.NoError(t, err)

	builder := prompt.NewBuilder(prompt.NewRegistry())
	d := driver.New(reg, builder, nil)

	_, err = d.Complete(context.Background(), userRequest("demo", "Hi"))
	require.ErrorIs(t, err, driver.ErrEmbeddingsMode)
}

func TestComplete_ToolCallParsed(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{
		CtxSize:        4096,
		NPredict:       512,
		PromptTemplate: string(prompt.ChatMLToolKind),
	})
	mock.OneShotOutput = []byte(`<tool_call>{"name": "get_weather", "arguments": {"city": "NYC"}}</tool_call>`)
	mock.TokenInfo = backend.TokenInfo{PromptTokens: 20, CompletionTokens: 8}

	d, _ := newDriver(t, mock)

	req := userRequest("demo", "What's the weather?")
	req.Tools = []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "get_weather"}}}
	req.ToolChoice = &llm.ToolChoice{Kind: llm.ToolChoiceAuto}

	resp, err := d.Complete(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, llm.FinishReasonToolCalls, *resp.Choices[0].FinishReason)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "get_weather", resp.Choices[0].Message.ToolCalls[0].Function.Name)
}
