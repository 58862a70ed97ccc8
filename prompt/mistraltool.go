package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llamaedge/chat-core/llm"
)

// mistralToolTemplate embeds tool schemas as a raw JSON array in the system
// turn, the convention the MistralTool post-processor and tool-call parser
// (regex `\[\{.*?\}\]`) expect on the way out.
type mistralToolTemplate struct{}

func newMistralToolTemplate() *mistralToolTemplate { return &mistralToolTemplate{} }

func (t *mistralToolTemplate) Kind() Kind          { return MistralToolKind }
func (t *mistralToolTemplate) SupportsTools() bool { return true }

func (t *mistralToolTemplate) Build(messages []llm.Message) (string, error) {
	return t.BuildWithTools(messages, nil)
}

func (t *mistralToolTemplate) BuildWithTools(messages []llm.Message, tools []llm.Tool) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	var systemPrompt string
	if messages[0].Role == llm.RoleSystem {
		systemPrompt = messages[0].Content.AsText()
	}

	if len(tools) > 0 {
		schema, err := json.Marshal(tools)
		if err != nil {
			return "", fmt.Errorf("prompt: marshal tool schemas: %w", err)
		}

		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}

		systemPrompt += "[AVAILABLE_TOOLS]" + string(schema) + "[/AVAILABLE_TOOLS]"
	}

	var prompt string

	first := true

	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			content := flattenUserText(m.Content)

			switch {
			case first && systemPrompt != "":
				prompt = fmt.Sprintf("<s>[INST] %s\n\n%s [/INST]", systemPrompt, content)
			case first:
				prompt = fmt.Sprintf("<s>[INST] %s [/INST]", content)
			default:
				prompt = strings.TrimSpace(prompt) + fmt.Sprintf("</s>[INST] %s [/INST]", content)
			}

			first = false
		case llm.RoleAssistant:
			content, err := assistantText(m)
			if err != nil {
				return "", err
			}

			prompt = strings.TrimSpace(prompt) + " " + content
			first = false
		case llm.RoleTool:
			prompt = strings.TrimSpace(prompt) + fmt.Sprintf("[TOOL_RESULTS]%s[/TOOL_RESULTS]", m.Content.AsText())
		default:
			continue
		}
	}

	return prompt, nil
}
