// Package toolcall implements the Tool-Call Parser (C7): extracting
// structured function calls from a raw generation, active only for the
// MistralTool and ChatMLTool templates. Ported directly from the original
// parse_tool_calls match arms, one regex/JSON-shape per template family.
package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2/v2"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"

	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/prompt"
)

var (
	mistralPattern = regexp2.MustCompile(`\[\{.*?\}\]`, regexp2.None)
	chatMLPattern  = regexp2.MustCompile(`<tool_call>(.*?)</tool_call>`, regexp2.None)
)

// record is the {name, arguments} pair extracted from a matched JSON blob,
// before it is wrapped into a wire-shaped llm.ToolCall.
type record struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Parse extracts tool calls from raw for the given template kind. It
// returns ok=false when the template doesn't carry tool-call syntax, no
// match is found, or every match fails to parse — in which case the
// generation should be treated as plain assistant content instead.
func Parse(raw string, kind prompt.Kind) (calls []llm.ToolCall, ok bool) {
	var records []record

	switch kind {
	case prompt.MistralToolKind:
		records = parseMistral(raw)
	case prompt.ChatMLToolKind:
		records = parseChatML(raw)
	default:
		return nil, false
	}

	if len(records) == 0 {
		return nil, false
	}

	calls = make([]llm.ToolCall, 0, len(records))

	for _, r := range records {
		calls = append(calls, llm.ToolCall{
			ID:   "call_" + uuid.NewString(),
			Type: "function",
			Function: llm.ToolCallFunction{
				Name:      r.Name,
				Arguments: string(r.Arguments),
			},
		})
	}

	return calls, true
}

func parseMistral(raw string) []record {
	var records []record

	for _, matched := range allMatches(mistralPattern, raw, 0) {
		var group []record
		if err := unmarshalRepaired(matched, &group); err != nil {
			continue
		}

		records = append(records, group...)
	}

	return records
}

func parseChatML(raw string) []record {
	var records []record

	for _, matched := range allMatches(chatMLPattern, raw, 1) {
		cleaned := strings.ReplaceAll(matched, `\n`, "")

		var r record
		if err := unmarshalRepaired(cleaned, &r); err != nil {
			continue
		}

		records = append(records, r)
	}

	return records
}

// allMatches walks every match of re against input, returning the
// group-th capture of each (group 0 is the whole match).
func allMatches(re *regexp2.Regexp, input string, group int) []string {
	var out []string

	m, err := re.FindStringMatch(input)
	for err == nil && m != nil {
		if g := m.GroupByNumber(group); g != nil {
			out = append(out, g.String())
		}

		m, err = re.FindNextMatch(m)
	}

	return out
}

// unmarshalRepaired tries a strict JSON decode first, falls back to
// jsonrepair for truncated or malformed arguments, and as a last resort
// pulls the name/arguments fields out by path with gjson — the same
// best-effort field-extraction-from-a-raw-body technique the override
// pipeline uses against provider payloads it can't fully parse.
func unmarshalRepaired(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.JSONRepair(s); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return gjsonFallback(s, v)
}

// gjsonFallback only applies to a single record: a malformed Mistral array
// isn't safe to field-extract element by element, so it simply fails.
func gjsonFallback(s string, v any) error {
	rec, ok := v.(*record)
	if !ok {
		return fmt.Errorf("toolcall: no recovery path for %T", v)
	}

	name := gjson.Get(s, "name")
	if !name.Exists() || name.String() == "" {
		return fmt.Errorf("toolcall: could not locate a name field in %q", s)
	}

	rec.Name = name.String()
	rec.Arguments = json.RawMessage(gjson.Get(s, "arguments").Raw)

	return nil
}
