package resilience

import "sync"

// Registry owns exactly one breaker per distinct external dependency name.
// Breakers are lazily created with the registry's settings and live for the
// process lifetime. The registry is constructed and injected; there is no
// package-level global.
type Registry struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share the given settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency, creating it on first
// use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.settings)
		r.breakers[name] = b
	}
	return b
}

// AllStatus returns snapshots keyed by dependency name.
func (r *Registry) AllStatus() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]Status, len(r.breakers))
	for name, b := range r.breakers {
		status[name] = b.Status()
	}
	return status
}

// ResetAll resets every registered breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
