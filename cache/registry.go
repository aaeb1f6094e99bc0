package cache

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultServiceName is the name used when a service is registered without one.
const DefaultServiceName = "default"

// Registry maps names to cache services of one kind. Registration happens
// at start-up; lookups are safe for concurrent use at any time.
type Registry[S any] struct {
	mu       sync.RWMutex
	services map[string]S
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{services: make(map[string]S)}
}

// AddService registers svc under name. An empty name registers under
// DefaultServiceName. Registering a name twice fails with ErrServiceExists.
func (r *Registry[S]) AddService(name string, svc S) error {
	if name == "" {
		name = DefaultServiceName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name]; ok {
		return errors.Wrapf(ErrServiceExists, "service %q", name)
	}
	r.services[name] = svc
	r.order = append(r.order, name)
	return nil
}

// RemoveService unregisters name, reporting whether it was registered.
func (r *Registry[S]) RemoveService(name string) bool {
	if name == "" {
		name = DefaultServiceName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name]; !ok {
		return false
	}
	delete(r.services, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// ClearServices unregisters everything.
func (r *Registry[S]) ClearServices() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.services)
	r.order = nil
}

// Service resolves name. An empty name resolves to the first service still
// registered.
func (r *Registry[S]) Service(name string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		if len(r.order) == 0 {
			var zero S
			return zero, false
		}
		name = r.order[0]
	}
	svc, ok := r.services[name]
	return svc, ok
}

// Names lists registered names in registration order.
func (r *Registry[S]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered services.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
