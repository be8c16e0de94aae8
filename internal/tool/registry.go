package tool

import (
	"fmt"
	"strings"
	"sync"
)

// Registry keeps tools in registration order. Reads are safe for concurrent
// use once startup registration is done.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def. Duplicate or empty names and nil handlers are startup
// configuration errors.
func (r *Registry) Register(def Definition) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	if name != def.Name {
		return fmt.Errorf("register tool %q: name must not contain surrounding whitespace", def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("register tool %q: handler is required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("register tool %q: duplicate tool name", name)
	}
	r.defs[name] = def
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics on registration errors; for static tool tables.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		out = append(out, Descriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Input.JSONSchema(),
		})
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
