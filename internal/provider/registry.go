package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory opens a NodeStore from backend-specific options.
type Factory func(opts map[string]interface{}) (NodeStore, error)

// DefaultRegistry maps backend type names to factories.
type DefaultRegistry struct {
	factories map[string]Factory
	primary   string
	mu        sync.RWMutex
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		factories: make(map[string]Factory),
	}
}

// Register adds a backend factory under name.
func (r *DefaultRegistry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || f == nil {
		return fmt.Errorf("backend name and factory are required")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend '%s' already registered", name)
	}

	r.factories[name] = f

	// First backend becomes the default
	if r.primary == "" {
		r.primary = name
	}

	return nil
}

// Get returns the factory registered under name.
func (r *DefaultRegistry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered backend names in sorted order.
func (r *DefaultRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Primary returns the default backend name.
func (r *DefaultRegistry) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Open instantiates the named backend; an empty name selects the default.
func (r *DefaultRegistry) Open(name string, opts map[string]interface{}) (NodeStore, error) {
	if name == "" {
		name = r.Primary()
	}
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown backend '%s' (available: %v)", name, r.Names())
	}
	store, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend '%s': %w", name, err)
	}
	return store, nil
}
