package postprocess_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/postprocess"
	"github.com/llamaedge/chat-core/prompt"
)

func TestProcess_ChatML_TrimsAtImEnd(t *testing.T) {
	got := postprocess.Process("Hello there<|im_end|>", prompt.ChatML)
	require.Equal(t, "Hello there", got)
}

func TestProcess_ChatML_TrimsAtImStartWhenNoEnd(t *testing.T) {
	got := postprocess.Process("Hello there<|im_start|>user\nnext turn", prompt.ChatML)
	require.Equal(t, "Hello there", got)
}

func TestProcess_ChatML_PicksEarlierSentinel(t *testing.T) {
	got := postprocess.Process("Answer<|im_end|><|im_start|>user", prompt.ChatMLToolKind)
	require.Equal(t, "Answer", got)
}

func TestProcess_ChatML_NoSentinel_TrimsSpaceOnly(t *testing.T) {
	got := postprocess.Process("  plain reply  ", prompt.ChatML)
	require.Equal(t, "plain reply", got)
}

func TestProcess_Mistral_TrimsBeforeNextTurn(t *testing.T) {
	got := postprocess.Process("Hi there</s><s>[INST] next", prompt.MistralInstruct)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Mistral_TrimsTrailingEOS(t *testing.T) {
	got := postprocess.Process("Hi there</s>", prompt.MistralLite)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Llama2_TrimsTrailingEOS(t *testing.T) {
	got := postprocess.Process("Hi there</s>", prompt.Llama2Chat)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Llama3_TrimsEOT(t *testing.T) {
	got := postprocess.Process("Hi there<|eot_id|>", prompt.Llama3Chat)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Gemma_TrimsEndOfTurn(t *testing.T) {
	got := postprocess.Process("Hi there<end_of_turn>", prompt.GemmaInstruct)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Phi3_TrimsEnd(t *testing.T) {
	got := postprocess.Process("Hi there<|end|>", prompt.Phi3Chat)
	require.Equal(t, "Hi there", got)
}

func TestProcess_OpenChat_TrimsEndOfTurn(t *testing.T) {
	got := postprocess.Process("Hi there<|end_of_turn|>", prompt.OpenChat)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Baichuan2_TrimsUserMarker(t *testing.T) {
	got := postprocess.Process("Hi there用户:", prompt.Baichuan2)
	require.Equal(t, "Hi there", got)
}

func TestProcess_HumanAssistant_TrimsHumanMarker(t *testing.T) {
	got := postprocess.Process("Hi there Human:", prompt.HumanAssistant)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Deepseek_TrimsAndCollapsesSentinel(t *testing.T) {
	got := postprocess.Process("Hi there<|end_of_sentence|>", prompt.DeepseekChat)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Solar_ReformatsAnswerPrefix(t *testing.T) {
	got := postprocess.Process("### Answer:\nHi there", prompt.SolarInstruct)
	require.Equal(t, "Answer: Hi there", got)
}

func TestProcess_Solar_NoAnswerPrefix_PassesThrough(t *testing.T) {
	got := postprocess.Process("Hi there", prompt.SolarInstruct)
	require.Equal(t, "Hi there", got)
}

func TestProcess_Idempotent(t *testing.T) {
	for _, kind := range []prompt.Kind{
		prompt.ChatML, prompt.ChatMLToolKind, prompt.MistralInstruct, prompt.MistralLite,
		prompt.MistralToolKind, prompt.Llama2Chat, prompt.Llama3Chat, prompt.GemmaInstruct,
		prompt.Phi3Chat, prompt.OpenChat, prompt.Baichuan2, prompt.HumanAssistant,
		prompt.DeepseekChat, prompt.SolarInstruct,
	} {
		once := postprocess.Process("Hi there", kind)
		twice := postprocess.Process(once, kind)
		require.Equal(t, once, twice, "not idempotent for kind %s", kind)
	}
}

func TestProcess_UnknownKind_TrimsSpaceOnly(t *testing.T) {
	got := postprocess.Process("  plain  ", prompt.Qwen2vl)
	require.Equal(t, "plain", got)
}
