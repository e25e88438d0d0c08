package challenge

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps requirement types to their counters.
// It provides thread-safe registration and lookup.
type Registry struct {
	counters map[string]Counter
	mu       sync.RWMutex
}

// NewRegistry creates a new empty counter registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]Counter),
	}
}

// Register adds a counter to the registry.
// Returns an error if a counter for the same requirement type already exists.
func (r *Registry) Register(c Counter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.counters[c.Type()]; exists {
		return fmt.Errorf("counter %s already registered", c.Type())
	}

	r.counters[c.Type()] = c
	return nil
}

// Get returns the counter for a requirement type, or nil if none is registered.
func (r *Registry) Get(requirementType string) Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.counters[requirementType]
}

// GetByTrigger returns the counters evaluated after trigger, sorted by type.
func (r *Registry) GetByTrigger(trigger string) []Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []Counter
	for _, c := range r.counters {
		if Handles(c, trigger) {
			matching = append(matching, c)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].Type() < matching[j].Type() })
	return matching
}

// Types returns the registered requirement types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.counters))
	for t := range r.counters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered counters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.counters)
}
