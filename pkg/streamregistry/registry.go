// Package streamregistry routes committed mutation events to the change
// streams that observe them. It implements mutation.Publisher so a store can
// hand it to every mutation.Context.
package streamregistry

import (
	"sync"

	"github.com/the-dev-tools/recordsync/pkg/mutation"
)

// Handler publishes a mutation event to the appropriate stream.
type Handler func(evt mutation.Event)

type Registry struct {
	mu       sync.RWMutex
	handlers map[mutation.EntityType][]Handler
}

func New() *Registry {
	return &Registry{
		handlers: make(map[mutation.EntityType][]Handler),
	}
}

// Register adds a handler for an entity type. Several handlers may observe the
// same entity; they run in registration order.
func (r *Registry) Register(entity mutation.EntityType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[entity] = append(r.handlers[entity], handler)
}

// PublishAll implements mutation.Publisher. Unregistered entity types are
// skipped.
func (r *Registry) PublishAll(events []mutation.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, evt := range events {
		for _, h := range r.handlers[evt.Entity] {
			h(evt)
		}
	}
}

var _ mutation.Publisher = (*Registry)(nil)
