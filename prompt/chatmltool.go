package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llamaedge/chat-core/llm"
)

// chatMLToolTemplate is ChatML plus a `<tools>…</tools>` schema block
// embedded in the system turn.
type chatMLToolTemplate struct{}

func newChatMLToolTemplate() *chatMLToolTemplate { return &chatMLToolTemplate{} }

func (t *chatMLToolTemplate) Kind() Kind          { return ChatMLToolKind }
func (t *chatMLToolTemplate) SupportsTools() bool { return true }

func (t *chatMLToolTemplate) Build(messages []llm.Message) (string, error) {
	return t.BuildWithTools(messages, nil)
}

func (t *chatMLToolTemplate) BuildWithTools(messages []llm.Message, tools []llm.Tool) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	systemPrompt := "Answer as concisely as possible."
	if messages[0].Role == llm.RoleSystem {
		systemPrompt = messages[0].Content.AsText()
	}

	if len(tools) > 0 {
		schema, err := json.Marshal(tools)
		if err != nil {
			return "", fmt.Errorf("prompt: marshal tool schemas: %w", err)
		}

		systemPrompt += "\n\nYou have access to the following tools:\n<tools>" + string(schema) + "</tools>\n" +
			"To call a tool, respond with <tool_call>{\"name\": <name>, \"arguments\": <args-json>}</tool_call>."
	}

	prompt := fmt.Sprintf("<|im_start|>system\n%s<|im_end|>", systemPrompt)

	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			prompt += fmt.Sprintf("\n<|im_start|>user\n%s<|im_end|>", flattenUserText(m.Content))
		case llm.RoleAssistant:
			content, err := assistantText(m)
			if err != nil {
				return "", err
			}

			prompt += fmt.Sprintf("\n<|im_start|>assistant\n%s<|im_end|>", content)
		case llm.RoleTool:
			prompt += fmt.Sprintf("\n<|im_start|>tool\n%s<|im_end|>", strings.TrimSpace(m.Content.AsText()))
		default:
			continue
		}
	}

	prompt += "\n<|im_start|>assistant"

	return prompt, nil
}
