package prompt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/llm"
)

// Builder selects a renderer from the graph's metadata, composes the
// prompt, then iteratively prunes old turns until the rendered prompt fits
// inside the context budget (C4).
type Builder struct {
	templates *Registry
}

// NewBuilder returns a Builder backed by the given template Registry.
func NewBuilder(templates *Registry) *Builder {
	return &Builder{templates: templates}
}

// Result is what a successful Build call returns: the final prompt string,
// the remaining token budget available for generation, and whether tool
// schemas were embedded (and therefore tool-call parsing should run).
type Result struct {
	Prompt    string
	Available uint64
	ToolUse   bool
}

// Build renders req.Messages against g's template, pruning the oldest
// turns until the prompt fits ctx_size*4/5 tokens.
func (b *Builder) Build(ctx context.Context, g backend.Graph, req *llm.Request) (*Result, error) {
	meta := g.Metadata()

	tmpl, err := b.templates.Get(Kind(meta.PromptTemplate))
	if err != nil {
		return nil, backend.NewError(backend.KindOperation, "prompt.Build", err)
	}

	maxPromptTokens := meta.CtxSize * 4 / 5
	messages := append([]llm.Message(nil), req.Messages...)

	for {
		prompt, toolUse, err := render(tmpl, messages, req)
		if err != nil {
			return nil, backend.NewError(backend.KindOperation, "prompt.Build", err)
		}

		if err := g.SetInput(backend.SlotPrompt, []byte(prompt)); err != nil {
			return nil, backend.NewError(backend.KindOperation, "prompt.Build.SetInput", err)
		}

		info, err := readTokenInfo(g)
		if err != nil {
			return nil, err
		}

		if info.PromptTokens <= maxPromptTokens {
			return &Result{
				Prompt:    prompt,
				Available: meta.CtxSize - maxPromptTokens,
				ToolUse:   toolUse,
			}, nil
		}

		pruned, done := prune(messages)
		if done {
			log.Warn(ctx, "prompt: cannot prune further, returning over-budget prompt",
				log.Int64("prompt_tokens", int64(info.PromptTokens)),
				log.Int64("max_prompt_tokens", int64(maxPromptTokens)))

			return &Result{
				Prompt:    prompt,
				Available: meta.CtxSize - maxPromptTokens,
				ToolUse:   toolUse,
			}, nil
		}

		messages = pruned
	}
}

func render(tmpl Template, messages []llm.Message, req *llm.Request) (string, bool, error) {
	if req.ToolChoice == nil || req.ToolChoice.Kind == llm.ToolChoiceNone {
		prompt, err := tmpl.Build(messages)
		return prompt, false, err
	}

	if len(req.Tools) == 0 {
		// tool_choice requested but no tools given: downgrade silently to a
		// plain prompt rather than erroring on what is likely a client bug.
		prompt, err := tmpl.Build(messages)
		return prompt, false, err
	}

	if !tmpl.SupportsTools() {
		return "", false, fmt.Errorf("prompt: template %q does not support tool use", tmpl.Kind())
	}

	prompt, err := tmpl.BuildWithTools(messages, req.Tools)

	return prompt, true, err
}

func readTokenInfo(g backend.Graph) (backend.TokenInfo, error) {
	raw, err := g.GetOutput(backend.SlotMetadata)
	if err != nil {
		return backend.TokenInfo{}, backend.NewError(backend.KindBackendGetOutput, "prompt.readTokenInfo", err)
	}

	var info backend.TokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return backend.TokenInfo{}, backend.NewError(backend.KindOperation, "prompt.readTokenInfo", err)
	}

	return info, nil
}

// prune drops the oldest prunable turn from messages. done=true means the
// list has reached a minimal shape (system+final-user, or lone final-user)
// and cannot be pruned further; the caller should return the current prompt.
func prune(messages []llm.Message) (pruned []llm.Message, done bool) {
	if len(messages) == 0 {
		return messages, true
	}

	switch messages[0].Role {
	case llm.RoleSystem:
		switch {
		case len(messages) >= 4:
			return append([]llm.Message{messages[0]}, messages[3:]...), false
		case len(messages) == 3 && messages[1].Role == llm.RoleUser:
			return append([]llm.Message{messages[0]}, messages[2:]...), false
		default:
			return messages, true
		}
	case llm.RoleUser:
		switch {
		case len(messages) >= 3:
			rest := messages[2:]
			if len(rest) > 0 && rest[0].Role == llm.RoleTool {
				if len(rest) > 1 && rest[1].Role == llm.RoleAssistant {
					rest = rest[2:]
				} else {
					rest = rest[1:]
				}
			}

			return rest, false
		case len(messages) == 2 && messages[0].Role == llm.RoleUser:
			return messages[1:], false
		default:
			return messages, true
		}
	default:
		panic(fmt.Sprintf("prompt: fatal - unexpected leading message role %q", messages[0].Role))
	}
}
