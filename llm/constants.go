package llm

// APIFormat identifies the wire format a request/response is expressed in.
// This core only ever speaks OpenAI's chat-completions format; it stays a
// distinct type rather than a bare string so it slots cleanly into response
// envelope fields that other formats could occupy.
type APIFormat string

const (
	APIFormatOpenAIChatCompletion APIFormat = "openai/chat_completions"
)

func (f APIFormat) String() string {
	return string(f)
}

// ToolTypeFunction is the only tool type this core dispatches: function
// calling via the Tool-Call Parser.
const ToolTypeFunction = "function"
