package prompt

import (
	"strings"

	"github.com/llamaedge/chat-core/llm"
)

// simpleConfig configures simpleTemplate's sentinel wrapping for a template
// family that needs no tool-schema embedding and no image handling beyond
// the bare <image> sentinel. This generalizes the renderer shape qwen.rs
// shows (accumulate chat_history, wrap each turn in the family's
// sentinels) across every single-modal-text template in the design's C3
// table, rather than repeating the same walk thirteen times.
type simpleConfig struct {
	// defaultSystem is injected when messages[0] isn't System. Empty means
	// no default system turn is inserted.
	defaultSystem string
	// systemWrap wraps system content into its sentinel form. Nil means the
	// system prompt is not rendered at all.
	systemWrap func(content string) string
	// firstUserWrap, if set, renders the very first user turn (no prior
	// chat history), given the already-wrapped system prompt (or "" if
	// none). Templates that fold system+first-user into one block (e.g.
	// Llama2Chat's single [INST] turn) set this; others leave it nil and
	// rely on systemWrap + userWrap composing on their own line.
	firstUserWrap func(wrappedSystem, content string) string
	userWrap      func(content string) string
	assistantWrap func(chatHistory, content string) string
	// finalSuffix is appended once after the last message to open the
	// model's turn. Empty means no suffix (e.g. Llama2Chat/CodeLlama close
	// each turn themselves, with no separate assistant-opening sentinel).
	finalSuffix string
}

type simpleTemplate struct {
	kind Kind
	cfg  simpleConfig
}

func newSimpleTemplate(kind Kind, cfg simpleConfig) *simpleTemplate {
	return &simpleTemplate{kind: kind, cfg: cfg}
}

func (t *simpleTemplate) Kind() Kind         { return t.kind }
func (t *simpleTemplate) SupportsTools() bool { return false }

func (t *simpleTemplate) BuildWithTools(messages []llm.Message, _ []llm.Tool) (string, error) {
	return t.Build(messages)
}

func (t *simpleTemplate) Build(messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	systemPrompt := t.cfg.defaultSystem
	if messages[0].Role == llm.RoleSystem {
		systemPrompt = messages[0].Content.AsText()
	}

	var wrappedSystem string
	if t.cfg.systemWrap != nil && systemPrompt != "" {
		wrappedSystem = t.cfg.systemWrap(systemPrompt)
	}

	var prompt string

	first := true

	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			content := flattenUserText(m.Content)

			switch {
			case first && t.cfg.firstUserWrap != nil:
				prompt = t.cfg.firstUserWrap(wrappedSystem, content)
			case first && wrappedSystem != "":
				prompt = wrappedSystem + "\n" + t.cfg.userWrap(content)
			case first:
				prompt = t.cfg.userWrap(content)
			default:
				prompt = strings.TrimSpace(prompt) + "\n" + t.cfg.userWrap(content)
			}

			first = false
		case llm.RoleAssistant:
			content, err := assistantText(m)
			if err != nil {
				return "", err
			}

			prompt = t.cfg.assistantWrap(strings.TrimSpace(prompt), content)
			first = false
		default:
			continue
		}
	}

	return prompt + t.cfg.finalSuffix, nil
}

func flattenUserText(c llm.MessageContent) string {
	if c.Text != nil {
		return strings.TrimSpace(*c.Text)
	}

	var sb strings.Builder

	for _, p := range c.Parts {
		switch p.Type {
		case llm.ContentPartText:
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		case llm.ContentPartImage:
			sb.WriteString("<image>\n")
		}
	}

	return strings.TrimSpace(sb.String())
}

func assistantText(m llm.Message) (string, error) {
	if m.Content.Text != nil || len(m.Content.Parts) > 0 {
		return strings.TrimSpace(m.Content.AsText()), nil
	}

	if len(m.ToolCalls) > 0 {
		return "", nil
	}

	return "", ErrNoAssistantMessage
}
