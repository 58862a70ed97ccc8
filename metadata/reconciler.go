// Package metadata implements the Metadata Reconciler (C5): it diffs
// request-level sampling options against a graph's current Metadata and,
// when anything changed, pushes the whole record back to the backend as a
// JSON tensor on input slot 1 — the backend's side-channel for
// reconfiguration between requests.
package metadata

import (
	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/llm"
)

// CheckModelMetadata overlays temperature/top_p/frequency_penalty/
// presence_penalty from req onto g's metadata (only where the request
// specifies a value different from the current one), forces
// embeddings=false unconditionally, and — if anything changed — writes the
// metadata back. Every request reconciles metadata before compute; nothing
// here relies on a prior request's state.
func CheckModelMetadata(g backend.Graph, req *llm.Request, image string) error {
	meta := g.Metadata()
	changed := false

	if req.Temperature != nil && float32(*req.Temperature) != meta.Temperature {
		meta.Temperature = float32(*req.Temperature)
		changed = true
	}

	if req.TopP != nil && float32(*req.TopP) != meta.TopP {
		meta.TopP = float32(*req.TopP)
		changed = true
	}

	if req.FrequencyPenalty != nil && float32(*req.FrequencyPenalty) != meta.FrequencyPenalty {
		meta.FrequencyPenalty = float32(*req.FrequencyPenalty)
		changed = true
	}

	if req.PresencePenalty != nil && float32(*req.PresencePenalty) != meta.PresencePenalty {
		meta.PresencePenalty = float32(*req.PresencePenalty)
		changed = true
	}

	if image != "" && image != meta.Image {
		meta.Image = image
		changed = true
	}

	if meta.Embeddings {
		meta.Embeddings = false
		changed = true
	}

	if !changed {
		return nil
	}

	return pushMetadata(g, meta)
}

// UpdateNPredict sets meta.n_predict = min(request.max_tokens, available)
// when max_tokens is given, else clamps n_predict down to available if it
// currently exceeds it. Writes back only if the value actually changed.
func UpdateNPredict(g backend.Graph, req *llm.Request, available uint64) error {
	meta := g.Metadata()
	nPredict := meta.NPredict

	if req.MaxTokens != nil {
		want := uint64(*req.MaxTokens)
		if want > available {
			want = available
		}

		nPredict = want
	} else if nPredict > available {
		nPredict = available
	}

	if nPredict == meta.NPredict {
		return nil
	}

	meta.NPredict = nPredict

	return pushMetadata(g, meta)
}

func pushMetadata(g backend.Graph, meta backend.Metadata) error {
	if err := g.SetMetadata(meta); err != nil {
		return backend.NewError(backend.KindOperation, "metadata.pushMetadata", err)
	}

	return nil
}
