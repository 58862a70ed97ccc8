// Package sse frames chat-completion chunks as Server-Sent Events on the
// wire, using the same encoder gin's own c.SSEvent relies on, with a space
// after the "data:" field name.
package sse

import (
	"io"
	"net/http"

	ginsse "github.com/gin-contrib/sse"
)

// Writer frames pre-encoded event bodies (already-marshaled JSON chunks, or
// the literal "[DONE]") as `data: ...\n\n` events, flushing after every
// write so a client sees each chunk as soon as it's produced.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. flusher may be nil when the underlying writer doesn't
// support flushing (e.g. in tests).
func NewWriter(w io.Writer, flusher http.Flusher) *Writer {
	return &Writer{w: w, flusher: flusher}
}

// Write frames data as a single SSE data event. data is whatever the caller
// already produced — a marshaled chunk body or the "[DONE]" sentinel — this
// package never marshals on its own behalf.
func (sw *Writer) Write(data string) error {
	// The encoder writes the field name as "data:" with no separator; the
	// leading space yields the `data: <body>` framing.
	if err := ginsse.Encode(sw.w, ginsse.Event{Data: " " + data}); err != nil {
		return err
	}

	sw.flush()

	return nil
}

func (sw *Writer) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// Headers are the response headers an HTTP edge must set before streaming
// chat-completion chunks.
var Headers = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}
