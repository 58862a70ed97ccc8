// Package backend is the thin abstraction over the native tensor-style
// inference capability (WasmEdge-GGML style: build-from-cache, set-input,
// compute, get-output). Everything above this package talks to a Graph,
// never to the concrete plugin.
package backend

import (
	"errors"
	"fmt"
)

// Slot indices used by every SetInput/GetOutput call in this core.
const (
	SlotPrompt   = 0 // input: prompt bytes. output: generation text.
	SlotMetadata = 1 // input: JSON-encoded Metadata. output: JSON TokenInfo.
)

// Sentinel terminal conditions a backend's Compute/ComputeSingle call must
// report distinguishably (never by matching an error string) so the Stream
// Driver can dispatch its state machine on them.
var (
	// ErrEndOfSequence marks normal generation completion.
	ErrEndOfSequence = errors.New("backend: end of sequence")
	// ErrContextFull marks the context window filling up mid-generation.
	ErrContextFull = errors.New("backend: context full")
	// ErrPromptTooLong marks a prompt that did not fit even after pruning.
	ErrPromptTooLong = errors.New("backend: prompt too long")
)

// Metadata is the per-graph mutable configuration pushed back to the
// backend as a JSON tensor on SlotMetadata whenever the Metadata
// Reconciler changes it before a compute call.
type Metadata struct {
	CtxSize          uint64  `json:"ctx_size"`
	NPredict         uint64  `json:"n_predict"`
	Temperature      float32 `json:"temperature"`
	TopP             float32 `json:"top_p"`
	FrequencyPenalty float32 `json:"frequency_penalty"`
	PresencePenalty  float32 `json:"presence_penalty"`
	Embeddings       bool    `json:"embeddings"`
	PromptTemplate   string  `json:"prompt_template"`
	Image            string  `json:"image,omitempty"`
}

// Clone returns a deep copy; Metadata is compared by value in the
// reconciler so mutating a clone never affects the graph's stored copy
// until it is explicitly written back.
func (m Metadata) Clone() Metadata { return m }

// TokenInfo is decoded from JSON on SlotMetadata after every compute call.
type TokenInfo struct {
	PromptTokens     uint64 `json:"input_tokens"`
	CompletionTokens uint64 `json:"output_tokens"`
}

// Graph is an opaque handle bound to a single loaded model. An
// implementation of the native plugin must satisfy this interface; a
// process typically has several, one per loaded model, held by the Graph
// Registry, each behind its own exclusive lock.
type Graph interface {
	// Name returns the model name this graph was built from.
	Name() string

	// Metadata returns the graph's current metadata. Callers must not
	// mutate the returned value in place; use SetMetadata to push changes.
	Metadata() Metadata

	// SetMetadata overwrites the graph's metadata and serializes it to
	// SlotMetadata, the backend's side-channel for reconfiguration.
	SetMetadata(Metadata) error

	// SetInput writes raw bytes to the given input slot.
	SetInput(slot int, data []byte) error

	// GetOutput reads the given output slot in full (blocking-compute mode).
	GetOutput(slot int) ([]byte, error)

	// GetOutputSingle reads the given output slot for one streamed token.
	GetOutputSingle(slot int) ([]byte, error)

	// Compute runs inference to completion. Returns ErrEndOfSequence,
	// ErrContextFull, ErrPromptTooLong, or any other error on backend
	// failure.
	Compute() error

	// ComputeSingle advances generation by exactly one token. Same error
	// contract as Compute.
	ComputeSingle() error

	// FinishSingle releases backend-side streaming session state. Must be
	// called exactly once to end any incremental ComputeSingle session,
	// including on error paths.
	FinishSingle() error
}

// Error classifies a failure from this package's consumers into the
// abstract taxonomy from the design: Operation vs Backend.* vs Prompt.*.
type Error struct {
	Kind string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Error kinds, one per distinct failure surface a caller needs to branch on.
const (
	KindOperation           = "operation"
	KindBackendCompute      = "backend.compute"
	KindBackendComputeOne   = "backend.compute_single"
	KindBackendFinishSingle = "backend.finish_single"
	KindBackendGetOutput    = "backend.get_output"
)

// NewError builds a classified *Error wrapping err.
func NewError(kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
