// Package prompt renders a chat-completion message list into the single
// flat prompt string a model's training template expects (C3), and fits
// that prompt inside the model's context window by pruning old turns (C4).
package prompt

import (
	"errors"
	"fmt"

	"github.com/llamaedge/chat-core/llm"
)

// Kind identifies a prompt-template family. Values match the model
// metadata's prompt_template field pushed by the Metadata Reconciler.
type Kind string

const (
	Llama2Chat      Kind = "llama-2-chat"
	Llama3Chat      Kind = "llama-3-chat"
	ChatML          Kind = "chatml"
	ChatMLToolKind  Kind = "chatml-tool"
	MistralInstruct Kind = "mistral-instruct"
	MistralLite     Kind = "mistral-lite"
	MistralToolKind Kind = "mistral-tool"
	GemmaInstruct   Kind = "gemma-instruct"
	Phi3Chat        Kind = "phi-3-chat"
	Baichuan2       Kind = "baichuan-2"
	DeepseekChat    Kind = "deepseek-chat"
	SolarInstruct   Kind = "solar-instruct"
	OpenChat        Kind = "openchat"
	HumanAssistant  Kind = "human-assistant"
	Qwen2vl         Kind = "qwen2-vl"
	CodeLlama       Kind = "codellama-instruct"
)

// Failure modes a Template.Build/BuildWithTools call can report.
var (
	ErrNoMessages       = errors.New("prompt: no messages")
	ErrNoAssistantMessage = errors.New("prompt: assistant message has neither content nor tool_calls")
	ErrBadImageFormat   = errors.New("prompt: could not sniff image format from data")
)

// Template renders a message list into a single prompt string. Messages
// are never reordered; a renderer walks them once, in sequence.
type Template interface {
	Kind() Kind
	// Build renders without tool schemas.
	Build(messages []llm.Message) (string, error)
	// BuildWithTools renders with tool schemas embedded in the system turn,
	// per the template's convention. Only MistralTool/ChatMLTool honor the
	// tools argument; other templates ignore it (callers should not invoke
	// BuildWithTools on a template that doesn't support tool use).
	BuildWithTools(messages []llm.Message, tools []llm.Tool) (string, error)
	// SupportsTools reports whether this template can embed tool schemas
	// and later have its output parsed for tool calls.
	SupportsTools() bool
}

// Registry maps a Kind to its Template implementation.
type Registry struct {
	templates map[Kind]Template
}

// NewRegistry returns a Registry pre-populated with every template kind
// listed in the design's C3 table.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[Kind]Template)}

	for _, t := range []Template{
		newSimpleTemplate(Llama2Chat, simpleConfig{
			defaultSystem: "",
			systemWrap:    func(s string) string { return fmt.Sprintf("<s>[INST] <<SYS>>\n%s\n<</SYS>>\n\n", s) },
			firstUserWrap: func(sys, u string) string {
				if sys == "" {
					return fmt.Sprintf("<s>[INST] %s [/INST]", u)
				}
				return sys + u + " [/INST]"
			},
			userWrap:      func(u string) string { return fmt.Sprintf("<s>[INST] %s [/INST]", u) },
			assistantWrap: func(chatHistory, a string) string { return fmt.Sprintf("%s %s</s>", chatHistory, a) },
		}),
		newSimpleTemplate(Llama3Chat, simpleConfig{
			defaultSystem: "You are a helpful assistant.",
			systemWrap:    func(s string) string { return fmt.Sprintf("<|start_header_id|>system<|end_header_id|>\n\n%s<|eot_id|>", s) },
			userWrap: func(u string) string {
				return fmt.Sprintf("<|start_header_id|>user<|end_header_id|>\n\n%s<|eot_id|>", u)
			},
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n<|start_header_id|>assistant<|end_header_id|>\n\n%s<|eot_id|>", chatHistory, a)
			},
			finalSuffix: "\n<|start_header_id|>assistant<|end_header_id|>\n\n",
		}),
		newSimpleTemplate(ChatML, simpleConfig{
			defaultSystem: "Answer as concisely as possible.",
			systemWrap:    func(s string) string { return fmt.Sprintf("<|im_start|>system\n%s<|im_end|>", s) },
			userWrap:      func(u string) string { return fmt.Sprintf("<|im_start|>user\n%s<|im_end|>", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n<|im_start|>assistant\n%s<|im_end|>", chatHistory, a)
			},
			finalSuffix: "\n<|im_start|>assistant",
		}),
		newSimpleTemplate(MistralInstruct, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("<s>[INST] %s [/INST]", u) },
			assistantWrap: func(chatHistory, a string) string { return fmt.Sprintf("%s%s</s>", chatHistory, a) },
		}),
		newSimpleTemplate(MistralLite, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("<|im_start|>user\n%s<|im_end|>", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n<|im_start|>assistant\n%s</s>", chatHistory, a)
			},
		}),
		newSimpleTemplate(GemmaInstruct, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("<start_of_turn>user\n%s<end_of_turn>", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n<start_of_turn>model\n%s<end_of_turn>", chatHistory, a)
			},
			finalSuffix: "\n<start_of_turn>model",
		}),
		newSimpleTemplate(Phi3Chat, simpleConfig{
			systemWrap:    func(s string) string { return fmt.Sprintf("<|system|>\n%s<|end|>", s) },
			userWrap:      func(u string) string { return fmt.Sprintf("<|user|>\n%s<|end|>", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n<|assistant|>\n%s<|end|>", chatHistory, a)
			},
			finalSuffix: "\n<|assistant|>",
		}),
		newSimpleTemplate(Baichuan2, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("用户：%s", u) },
			assistantWrap: func(chatHistory, a string) string { return fmt.Sprintf("%s\n助手：%s", chatHistory, a) },
			finalSuffix:   "\n助手：",
		}),
		newSimpleTemplate(DeepseekChat, simpleConfig{
			defaultSystem: "",
			userWrap:      func(u string) string { return fmt.Sprintf("User: %s", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n\nAssistant: %s<|end_of_sentence|>", chatHistory, a)
			},
			finalSuffix: "\n\nAssistant:",
		}),
		newSimpleTemplate(OpenChat, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("GPT4 Correct User: %s<|end_of_turn|>", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%sGPT4 Correct Assistant: %s<|end_of_turn|>", chatHistory, a)
			},
			finalSuffix: "GPT4 Correct Assistant:",
		}),
		newSimpleTemplate(HumanAssistant, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("Human: %s", u) },
			assistantWrap: func(chatHistory, a string) string { return fmt.Sprintf("%s\n\nAssistant: %s", chatHistory, a) },
			finalSuffix:   "\n\nAssistant:",
		}),
		newSimpleTemplate(CodeLlama, simpleConfig{
			userWrap:      func(u string) string { return fmt.Sprintf("[INST] %s [/INST]", u) },
			assistantWrap: func(chatHistory, a string) string { return fmt.Sprintf("%s %s</s><s>", chatHistory, a) },
		}),
		newSimpleTemplate(SolarInstruct, simpleConfig{
			systemWrap: func(s string) string { return fmt.Sprintf("### System:\n%s", s) },
			userWrap:   func(u string) string { return fmt.Sprintf("### User:\n%s", u) },
			assistantWrap: func(chatHistory, a string) string {
				return fmt.Sprintf("%s\n\n### Assistant:\n%s", chatHistory, a)
			},
			finalSuffix: "\n\n### Assistant:\n",
		}),
		newMistralToolTemplate(),
		newChatMLToolTemplate(),
		newQwen2vlTemplate(),
	} {
		r.templates[t.Kind()] = t
	}

	return r
}

// Get returns the template for kind.
func (r *Registry) Get(kind Kind) (Template, error) {
	t, ok := r.templates[kind]
	if !ok {
		return nil, fmt.Errorf("prompt: unknown template kind %q", kind)
	}

	return t, nil
}
