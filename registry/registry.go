// Package registry is the process-wide Graph Registry (C2): a
// model-name-to-Graph map guarded by a mutex, with a separate exclusive
// lock on each graph.
package registry

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/internal/log"
)

// Mode is the process-wide running mode; chat endpoints fail fast unless
// the registry is in Chat or ChatEmbeddings mode.
type Mode string

const (
	ModeChat           Mode = "chat"
	ModeEmbeddings     Mode = "embeddings"
	ModeChatEmbeddings Mode = "chat_embeddings"
)

// Builder constructs a Graph for a model name not yet loaded, e.g. by
// calling the native plugin's build_from_cache. It is supplied by the
// collaborator that owns model-file discovery (out of scope for this core).
type Builder func(ctx context.Context, name string) (backend.Graph, error)

// entry pairs a loaded Graph with its own exclusive lock, so holding one
// graph's lock across a long-running stream never blocks a request against
// a different graph.
type entry struct {
	graph backend.Graph
	mu    sync.Mutex
}

// Registry holds every loaded Graph behind a mutex that guards only the
// name-to-entry map itself; each entry carries its own lock for the
// backend's one-compute-session-at-a-time contract, acquired via Acquire.
type Registry struct {
	mu     sync.Mutex
	graphs map[string]*entry
	mode   Mode
	build  Builder
	sf     singleflight.Group
	lru    *lru.Cache[string, struct{}]
}

// New creates an empty registry in the given mode. If capacity > 0, the
// registry evicts the least-recently-used graph once more than capacity
// distinct models have been loaded, bounding memory use for long-running
// multi-model servers.
func New(mode Mode, build Builder, capacity int) (*Registry, error) {
	r := &Registry{
		graphs: make(map[string]*entry),
		mode:   mode,
		build:  build,
	}

	if capacity > 0 {
		evictFn := func(name string, _ struct{}) {
			// golang-lru invokes this synchronously in the caller's own
			// goroutine, and every lru.Add below happens while that caller
			// already holds r.mu — re-locking here would deadlock on the
			// first eviction.
			delete(r.graphs, name)
		}

		c, err := lru.NewWithEvict[string, struct{}](capacity, evictFn)
		if err != nil {
			return nil, fmt.Errorf("registry: build lru: %w", err)
		}

		r.lru = c
	}

	return r, nil
}

// Mode returns the registry's current running mode.
func (r *Registry) Mode() Mode { return r.mode }

// Register adds an already-built graph under its own name, used during
// startup to pre-populate the registry.
func (r *Registry) Register(g backend.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.graphs[g.Name()] = &entry{graph: g}
	if r.lru != nil {
		r.lru.Add(g.Name(), struct{}{})
	}
}

// ErrNoGraphs is returned by Get(ctx, "") when the registry is empty.
var ErrNoGraphs = fmt.Errorf("registry: no graphs available")

// Get returns the graph for name, or the first graph in the map if name is
// empty (matching get_token_info_by_graph_name's "no model given" fallback).
// If the graph isn't loaded yet and a Builder was supplied, concurrent
// requests for the same unloaded name collapse into a single build call via
// singleflight.
func (r *Registry) Get(ctx context.Context, name string) (backend.Graph, error) {
	e, err := r.getEntry(ctx, name)
	if err != nil {
		return nil, err
	}

	return e.graph, nil
}

// getEntry resolves name to its entry, building it via the Builder if it
// isn't loaded yet. Only the map lookup/insert is guarded by r.mu; the
// entry's own lock is left untouched for Acquire to take.
func (r *Registry) getEntry(ctx context.Context, name string) (*entry, error) {
	r.mu.Lock()

	if name == "" {
		for _, e := range r.graphs {
			r.mu.Unlock()
			return e, nil
		}

		r.mu.Unlock()

		return nil, ErrNoGraphs
	}

	if e, ok := r.graphs[name]; ok {
		if r.lru != nil {
			r.lru.Get(name)
		}

		r.mu.Unlock()

		return e, nil
	}

	r.mu.Unlock()

	if r.build == nil {
		return nil, fmt.Errorf("registry: model %q not found", name)
	}

	v, err, _ := r.sf.Do(name, func() (any, error) {
		g, err := r.build(ctx, name)
		if err != nil {
			return nil, err
		}

		e := &entry{graph: g}

		r.mu.Lock()
		r.graphs[name] = e
		if r.lru != nil {
			r.lru.Add(name, struct{}{})
		}
		r.mu.Unlock()

		log.Debug(ctx, "registry: built graph", log.String("model", name))

		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build %q: %w", name, err)
	}

	return v.(*entry), nil
}

// Names returns every currently loaded model name.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		names = append(names, name)
	}

	return names
}

// Acquire resolves name to a Graph (building it if necessary) and returns
// it together with a release function that MUST be called exactly once to
// release that graph's own exclusive lock. The driver holds this lock
// across an entire one-shot request, or for the full duration of a stream,
// since the backend only supports one in-flight compute session per graph
// at a time — but because the lock lives on the graph's own entry rather
// than on the registry as a whole, a long stream against one graph never
// blocks a request against a different graph.
//
// Building a not-yet-loaded graph happens before any lock is taken, so a
// slow build_from_cache call never blocks unrelated in-flight requests;
// concurrent callers building the same new name still collapse into one
// build via singleflight.
func (r *Registry) Acquire(ctx context.Context, name string) (backend.Graph, func(), error) {
	e, err := r.getEntry(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()

	return e.graph, e.mu.Unlock, nil
}
