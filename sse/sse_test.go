package sse_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/sse"
)

func TestWriter_Write_FramesAsSSEDataEvent(t *testing.T) {
	var buf bytes.Buffer

	w := sse.NewWriter(&buf, nil)
	require.NoError(t, w.Write(`{"id":"chatcmpl-1"}`))

	require.Equal(t, "data: {\"id\":\"chatcmpl-1\"}\n\n", buf.String())
}

func TestWriter_Write_DoneSentinel(t *testing.T) {
	var buf bytes.Buffer

	w := sse.NewWriter(&buf, nil)
	require.NoError(t, w.Write("[DONE]"))

	require.Equal(t, "data: [DONE]\n\n", buf.String())
}

func TestWriter_Write_MultipleEventsAppend(t *testing.T) {
	var buf bytes.Buffer

	w := sse.NewWriter(&buf, nil)
	require.NoError(t, w.Write("first"))
	require.NoError(t, w.Write("second"))

	require.Equal(t, "data: first\n\ndata: second\n\n", buf.String())
}

func TestHeaders_SetForStreaming(t *testing.T) {
	require.Equal(t, "text/event-stream", sse.Headers["Content-Type"])
	require.Equal(t, "no-cache", sse.Headers["Cache-Control"])
	require.Equal(t, "keep-alive", sse.Headers["Connection"])
	require.Equal(t, "no", sse.Headers["X-Accel-Buffering"])
}
