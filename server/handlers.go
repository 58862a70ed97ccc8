// Package server wires the Driver into the OpenAI-compatible HTTP edge:
// gin routes, CORS, and the chat-completions/models handlers.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llamaedge/chat-core/driver"
	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/registry"
	"github.com/llamaedge/chat-core/sse"
)

// Handlers serves /v1/chat/completions and /v1/models against a Driver.
type Handlers struct {
	driver   *driver.Driver
	registry *registry.Registry
}

// NewHandlers builds the HTTP-facing Handlers around d and reg.
func NewHandlers(d *driver.Driver, reg *registry.Registry) *Handlers {
	return &Handlers{driver: d, registry: reg}
}

// ChatCompletion implements POST /v1/chat/completions, dispatching to the
// one-shot or streaming driver depending on request.Stream.
func (h *Handlers) ChatCompletion(c *gin.Context) {
	ctx := c.Request.Context()

	var req llm.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	if req.Stream {
		h.stream(c, &req)
		return
	}

	resp, err := h.driver.Complete(ctx, &req)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) stream(c *gin.Context, req *llm.Request) {
	ctx := c.Request.Context()

	s, err := h.driver.Stream(ctx, req)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}

	defer func() {
		if err := s.Close(); err != nil {
			log.Warn(ctx, "server: error closing stream", log.Cause(err))
		}
	}()

	for name, value := range sse.Headers {
		c.Header(name, value)
	}

	w := sse.NewWriter(c.Writer, c.Writer)

	clientGone := c.Writer.CloseNotify()

	for {
		select {
		case <-clientGone:
			log.Warn(ctx, "server: client disconnected mid-stream")
			return
		case <-ctx.Done():
			return
		default:
			if !s.Next(ctx) {
				if err := s.Err(); err != nil {
					log.Error(ctx, "server: stream error", log.Cause(err))
				}

				return
			}

			if err := w.Write(s.Current()); err != nil {
				log.Warn(ctx, "server: write chunk failed", log.Cause(err))
				return
			}
		}
	}
}

// ListModels implements GET /v1/models, reporting every currently loaded
// graph name in the OpenAI model-listing shape.
func (h *Handlers) ListModels(c *gin.Context) {
	names := h.registry.Names()

	data := make([]modelObject, 0, len(names))
	for _, name := range names {
		data = append(data, modelObject{ID: name, Object: "model", OwnedBy: "chat-core"})
	}

	c.JSON(http.StatusOK, modelList{Object: "list", Data: data})
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, llm.ResponseError{
		StatusCode: status,
		Detail: llm.ErrorDetail{
			Message: err.Error(),
			Type:    http.StatusText(status),
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, driver.ErrEmbeddingsMode):
		return http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrNoGraphs):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
