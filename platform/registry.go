package platform

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered platform pollers, keyed by platform tag.
type Registry struct {
	mu      sync.RWMutex
	pollers map[string]Poller
}

func NewRegistry() *Registry {
	return &Registry{pollers: make(map[string]Poller)}
}

func (r *Registry) Register(p Poller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollers[p.Name()] = p
}

// Get retrieves a poller by platform tag.
func (r *Registry) Get(name string) (Poller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pollers[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", name)
	}
	return p, nil
}

// Names returns the registered platform tags in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pollers))
	for name := range r.pollers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
