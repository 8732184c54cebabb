package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one task's work under the caller's timeout context.
type Handler func(ctx context.Context, t *Task) error

// Registry looks up handlers by Kind, with Custom(name) dispatching through
// a name-keyed sub-registry populated at startup (§4.5 "Handlers").
type Registry struct {
	mu       sync.RWMutex
	byKind   map[Kind]Handler
	byCustom map[string]Handler
}

// NewRegistry builds an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind:   make(map[Kind]Handler),
		byCustom: make(map[string]Handler),
	}
}

// Register installs the handler for a fixed Kind (anything but KindCustom).
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = h
}

// RegisterCustom installs a named handler for KindCustom tasks.
func (r *Registry) RegisterCustom(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCustom[name] = h
}

// Lookup resolves the handler for a task, returning an error if none is
// registered.
func (r *Registry) Lookup(t *Task) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t.Kind == KindCustom {
		h, ok := r.byCustom[t.CustomName]
		if !ok {
			return nil, fmt.Errorf("scheduler: no custom handler registered for %q", t.CustomName)
		}
		return h, nil
	}
	h, ok := r.byKind[t.Kind]
	if !ok {
		return nil, fmt.Errorf("scheduler: no handler registered for kind %s", t.Kind)
	}
	return h, nil
}
