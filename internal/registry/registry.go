// Package registry enumerates the models known to a council process and
// resolves caller-selected subsets of them.
package registry

import (
	"fmt"
	"sync"

	"github.com/modelcouncil/council/pkg/council"
)

// Registry holds the set of ModelDescriptors available to the
// orchestrator. It is built once at process start from static
// configuration and is safe for concurrent read access thereafter.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]council.ModelDescriptor
	order    []string
	chairman string
}

// New builds a Registry from descriptors. Exactly one descriptor must have
// IsChairman set; New returns an error otherwise.
func New(descriptors []council.ModelDescriptor) (*Registry, error) {
	r := &Registry{models: make(map[string]council.ModelDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := r.register(d); err != nil {
			return nil, err
		}
	}
	if r.chairman == "" {
		return nil, fmt.Errorf("registry: no chairman designated among %d models", len(descriptors))
	}
	return r, nil
}

func (r *Registry) register(d council.ModelDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == "" {
		return fmt.Errorf("registry: model descriptor has empty id")
	}
	if _, exists := r.models[d.ID]; exists {
		return fmt.Errorf("registry: duplicate model id %q", d.ID)
	}
	if d.IsChairman {
		if r.chairman != "" {
			return fmt.Errorf("registry: multiple chairman models designated (%q and %q)", r.chairman, d.ID)
		}
		r.chairman = d.ID
	}
	r.models[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// ListAll returns every known descriptor in registration order.
func (r *Registry) ListAll() []council.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]council.ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Resolve returns the descriptors for ids, in the order requested. If ids
// is empty, it returns every known descriptor. Unknown ids are skipped;
// the caller is responsible for warning about them.
func (r *Registry) Resolve(ids []string) ([]council.ModelDescriptor, []string) {
	if len(ids) == 0 {
		return r.ListAll(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]council.ModelDescriptor, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		d, ok := r.models[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, d)
	}
	return out, unknown
}

// Chairman returns the descriptor designated as chairman.
func (r *Registry) Chairman() council.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[r.chairman]
}

// Get returns a single descriptor by id.
func (r *Registry) Get(id string) (council.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[id]
	return d, ok
}
