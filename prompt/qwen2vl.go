package prompt

import (
	"fmt"
	"strings"

	"github.com/llamaedge/chat-core/llm"
)

// qwen2vlTemplate is a direct port of chat-prompts' Qwen2vlPrompt: image
// parts are sniffed for URL-vs-base64 and wrapped in
// `<|vision_start|>…<|vision_end|>`, ahead of the text content of the same
// turn.
type qwen2vlTemplate struct{}

func newQwen2vlTemplate() *qwen2vlTemplate { return &qwen2vlTemplate{} }

func (t *qwen2vlTemplate) Kind() Kind          { return Qwen2vl }
func (t *qwen2vlTemplate) SupportsTools() bool { return false }

func (t *qwen2vlTemplate) BuildWithTools(messages []llm.Message, _ []llm.Tool) (string, error) {
	return t.Build(messages)
}

func (t *qwen2vlTemplate) Build(messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	systemPrompt := "<|im_start|>system\nAnswer as concisely as possible.<|im_end|>"
	if messages[0].Role == llm.RoleSystem {
		content := messages[0].Content.AsText()
		if content != "" {
			systemPrompt = fmt.Sprintf("<|im_start|>system\n%s<|im_end|>", content)
		}
	}

	var prompt string

	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			rendered, err := t.appendUser(prompt, systemPrompt, m)
			if err != nil {
				return "", err
			}

			prompt = rendered
		case llm.RoleAssistant:
			content, err := assistantText(m)
			if err != nil {
				return "", err
			}

			prompt = fmt.Sprintf("%s\nASSISTANT: %s", strings.TrimSpace(prompt), content)
		default:
			continue
		}
	}

	prompt += "\n<|im_start|>assistant"

	return prompt, nil
}

func (t *qwen2vlTemplate) appendUser(chatHistory, systemPrompt string, m llm.Message) (string, error) {
	if m.Content.Text != nil {
		content := strings.TrimSpace(*m.Content.Text)

		if chatHistory == "" {
			if systemPrompt == "" {
				return fmt.Sprintf("<|im_start|>user\n%s<|im_end|>", content), nil
			}

			return fmt.Sprintf("%s\n<|im_start|>user\n%s<|im_end|>", strings.TrimSpace(systemPrompt), content), nil
		}

		return fmt.Sprintf("%s\n<|im_start|>user\n%s<|im_end|>", strings.TrimSpace(chatHistory), content), nil
	}

	var text strings.Builder

	var imageEmbeddings strings.Builder

	for _, p := range m.Content.Parts {
		switch p.Type {
		case llm.ContentPartText:
			text.WriteString(p.Text)
			text.WriteString("\n")
		case llm.ContentPartImage:
			var imageContent string

			if p.ImageURL != nil && isHTTPURL(p.ImageURL.URL) {
				imageContent = "<image>"
			} else if p.ImageURL != nil {
				format, err := SniffImageFormat(p.ImageURL.URL)
				if err != nil {
					return "", err
				}

				imageContent = fmt.Sprintf(`<img src="data:image/%s;base64,%s">`, format, p.ImageURL.URL)
			}

			imageEmbeddings.WriteString(fmt.Sprintf("<|vision_start|>%s<|vision_end|>", strings.TrimSpace(imageContent)))
		}
	}

	userMessage := strings.TrimSpace(text.String())

	if chatHistory == "" {
		return fmt.Sprintf(
			"%s\n<|im_start|>user\n%s%s<|im_end|>",
			strings.TrimSpace(systemPrompt), strings.TrimSpace(imageEmbeddings.String()), userMessage,
		), nil
	}

	return fmt.Sprintf(
		"%s\n<|im_start|>user\n%s%s<|im_end|>",
		strings.TrimSpace(chatHistory), strings.TrimSpace(imageEmbeddings.String()), userMessage,
	), nil
}
