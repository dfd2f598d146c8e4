package pv

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps PV names to channels. The simulator registers its records
// here and the gateway server serves a registry's contents; device
// constructors consume it as a Connector.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	pvs map[string]PV
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pvs: make(map[string]PV)}
}

// Add registers a channel under its name.
func (r *Registry) Add(pv PV) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := pv.Name()
	if _, exists := r.pvs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.pvs[name] = pv
	return nil
}

// Lookup returns the channel registered under name.
func (r *Registry) Lookup(name string) (PV, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pv, ok := r.pvs[name]
	return pv, ok
}

// Connect resolves a name to its registered channel, satisfying Connector.
func (r *Registry) Connect(name string) (PV, error) {
	pv, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return pv, nil
}

// Names returns the registered PV names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pvs))
	for name := range r.pvs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile-time interface satisfaction check.
var _ Connector = (*Registry)(nil)
