// Package llm defines the OpenAI-compatible wire model shared by every
// component of the chat core: the request the HTTP edge decodes, the
// message/content union the prompt templates walk, and the response/chunk
// shapes the drivers emit.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DoneResponse is a Response carrying the SSE "[DONE]" terminator as its
// Object. The stream driver ends a chunk sequence with the plain "[DONE]"
// string and does not use this value.
var DoneResponse = &Response{Object: "[DONE]"}

// SystemFingerprint is the fixed fingerprint string this backend reports,
// matching the original WasmEdge-GGML server's build identifier.
const SystemFingerprint = "fp_44709d6fcb"

// Request is the unified chat-completion request model. It follows the
// OpenAI chat/completions shape, trimmed to the fields this core actually
// reconciles, renders, or reports back in usage.
type Request struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`

	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        *int64   `json:"max_tokens,omitempty"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	User *string `json:"user,omitempty"`
}

// StreamOptions controls whether a trailing usage-only chunk is emitted.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Tool is a function tool schema offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function's name, description and schema.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceKind tags the polymorphic tool_choice field.
type ToolChoiceKind string

const (
	ToolChoiceNone ToolChoiceKind = "none"
	ToolChoiceAuto ToolChoiceKind = "auto"
	ToolChoiceName ToolChoiceKind = "named"
)

// ToolChoice is the {none, auto, named(name)} union from the request body.
type ToolChoice struct {
	Kind ToolChoiceKind
	Name string
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case ToolChoiceNone, "":
		return json.Marshal("none")
	case ToolChoiceAuto:
		return json.Marshal("auto")
	case ToolChoiceName:
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.Name},
		})
	default:
		return json.Marshal("auto")
	}
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "none":
			t.Kind = ToolChoiceNone
		case "auto", "required":
			t.Kind = ToolChoiceAuto
		default:
			t.Kind = ToolChoiceAuto
		}

		return nil
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}

	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("invalid tool_choice: %w", err)
	}

	t.Kind = ToolChoiceName
	t.Name = named.Function.Name

	return nil
}

// Role enumerates the four message roles the prompt templates understand.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single role-tagged turn. Content is polymorphic (bare string
// or a list of parts); ToolCalls/ToolCallID are populated for the assistant
// and tool roles respectively.
type Message struct {
	Role       Role           `json:"role"`
	Content    MessageContent `json:"content,omitzero"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID *string        `json:"tool_call_id,omitempty"`
}

// MessageContent is the string-or-parts polymorphic content union.
type MessageContent struct {
	Text  *string
	Parts []ContentPart
}

// AsText returns the flattened text of the content, concatenating part text
// for a Parts-shaped message. It never returns nil for a zero-value content.
func (c MessageContent) AsText() string {
	if c.Text != nil {
		return *c.Text
	}

	var sb strings.Builder

	for _, p := range c.Parts {
		if p.Type == ContentPartText {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		if len(c.Parts) == 1 && c.Parts[0].Type == ContentPartText {
			return json.Marshal(c.Parts[0].Text)
		}

		return json.Marshal(c.Parts)
	}

	if c.Text == nil {
		return json.Marshal("")
	}

	return json.Marshal(*c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = &s
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		c.Parts = parts
		return nil
	}

	return errors.New("llm: invalid message content")
}

// ContentPartType tags a MessageContentPart.
type ContentPartType string

const (
	ContentPartText  ContentPartType = "text"
	ContentPartImage ContentPartType = "image_url"
)

// ContentPart is one element of a Parts-shaped message content.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

// ImageURL carries either a remote URL or a data: URL with base64 payload.
type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall is a structured function invocation emitted by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the name/arguments payload of a ToolCall.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the unified non-streaming/streaming-chunk response shape.
// Non-streaming responses set Message on each Choice; chunks set Delta.
type Response struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	Error             *ResponseError `json:"error,omitempty"`
}

// Choice is a single completion choice; exactly one of Message/Delta is set
// depending on whether Response.Object is "chat.completion" or
// "chat.completion.chunk".
type Choice struct {
	Index        int              `json:"index"`
	Message      *Message         `json:"message,omitempty"`
	Delta        *Message         `json:"delta,omitempty"`
	FinishReason *string          `json:"finish_reason"`
	Logprobs     *LogprobsContent `json:"logprobs"`
}

// LogprobsContent is always nil in this core; kept so the wire shape matches
// OpenAI's schema exactly (the key is always present, value always null).
type LogprobsContent struct{}

// Usage reports token accounting for a request.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// NewUsage builds a Usage with TotalTokens always computed as the sum of
// the two counts, so a PromptTooLong response with zero completion tokens
// still reports a correct total rather than an inconsistent one.
func NewUsage(promptTokens, completionTokens int64) *Usage {
	return &Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// ResponseError is the error body shape returned on unrecovered failures.
type ResponseError struct {
	StatusCode int         `json:"-"`
	Detail     ErrorDetail `json:"error"`
}

func (e ResponseError) Error() string {
	sb := strings.Builder{}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf("request failed: %s, ", http.StatusText(e.StatusCode)))
	}

	sb.WriteString(e.Detail.Message)

	return sb.String()
}

// ErrorDetail is the nested error object in ResponseError.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Finish reason literals, exact OpenAI wire values.
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonToolCalls = "tool_calls"
)

func ptr[T any](v T) *T { return &v }

// FinishReason returns a pointer to one of the FinishReason* constants,
// convenient for populating Choice.FinishReason.
func FinishReason(reason string) *string { return ptr(reason) }
