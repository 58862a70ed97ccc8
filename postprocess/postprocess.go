// Package postprocess implements the Post-Processor (C6): a pure function
// stripping each template family's end-of-turn sentinel from a raw
// generation. Every rule below is ported directly from the original
// post_process match arms, one template at a time.
package postprocess

import (
	"strings"

	"github.com/llamaedge/chat-core/prompt"
)

// Process strips template-specific sentinels from raw. It is idempotent:
// Process(Process(x, t), t) == Process(x, t) for every template t.
func Process(raw string, kind prompt.Kind) string {
	switch kind {
	case prompt.Baichuan2:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "用户:"))
	case prompt.OpenChat:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "<|end_of_turn|>"))
	case prompt.GemmaInstruct:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "<end_of_turn>"))
	case prompt.ChatML, prompt.ChatMLToolKind:
		return processChatML(raw)
	case prompt.MistralLite, prompt.MistralToolKind, prompt.MistralInstruct:
		return processMistral(raw)
	case prompt.DeepseekChat:
		return processDeepseek(raw)
	case prompt.HumanAssistant:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "Human:"))
	case prompt.SolarInstruct:
		return processSolar(raw)
	case prompt.Llama2Chat:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "</s>"))
	case prompt.Llama3Chat:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "<|eot_id|>"))
	case prompt.Phi3Chat:
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "<|end|>"))
	default:
		return strings.TrimSpace(raw)
	}
}

func processChatML(raw string) string {
	const start, end = "<|im_start|>", "<|im_end|>"

	hasStart := strings.Contains(raw, start)
	hasEnd := strings.Contains(raw, end)

	switch {
	case hasStart && hasEnd:
		startIdx := strings.Index(raw, start)
		endIdx := strings.Index(raw, end)

		if startIdx <= endIdx {
			return strings.TrimSpace(raw[:startIdx])
		}

		return strings.TrimSpace(raw[:endIdx])
	case hasStart:
		return strings.TrimSpace(raw[:strings.Index(raw, start)])
	case hasEnd:
		return strings.TrimSpace(raw[:strings.Index(raw, end)])
	default:
		return strings.TrimSpace(raw)
	}
}

func processMistral(raw string) string {
	switch {
	case strings.Contains(raw, "</s><"):
		return strings.TrimSpace(raw[:strings.Index(raw, "</s><")])
	case strings.Contains(raw, "</s>"):
		return strings.TrimSpace(strings.TrimSuffix(raw, "</s>"))
	default:
		return strings.TrimSpace(raw)
	}
}

func processDeepseek(raw string) string {
	const sentinel = "<|end_of_sentence|>"

	if !strings.Contains(raw, sentinel) {
		return strings.TrimSpace(raw)
	}

	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), sentinel)

	return strings.TrimSpace(strings.ReplaceAll(trimmed, sentinel, " "))
}

func processSolar(raw string) string {
	raw = strings.TrimSpace(raw)

	if !strings.HasPrefix(raw, "### Answer") {
		return raw
	}

	remainder := strings.TrimSpace(strings.TrimPrefix(raw, "###"))

	if rest, ok := strings.CutPrefix(remainder, "Answer:\n"); ok {
		return "Answer: " + strings.TrimSpace(rest)
	}

	return remainder
}
