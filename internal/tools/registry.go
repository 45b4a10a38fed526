package tools

import (
	"fmt"
	"strings"

	"github.com/companionos/companion/internal/persona"
)

// Registry holds tools in registration order. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	tools []Tool
	byID  map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Tool{}}
}

// Register adds t. Ids must be non-empty and unique.
func (r *Registry) Register(t Tool) error {
	id := strings.TrimSpace(t.ID())
	if id == "" {
		return fmt.Errorf("tool id is empty")
	}
	if _, dup := r.byID[id]; dup {
		return fmt.Errorf("tool %q already registered", id)
	}
	r.byID[id] = t
	r.tools = append(r.tools, t)
	return nil
}

// Bootstrap registers tools except those whose id is listed in disabled.
func Bootstrap(disabled []string, tools ...Tool) (*Registry, error) {
	off := map[string]bool{}
	for _, id := range disabled {
		if id = strings.TrimSpace(id); id != "" {
			off[id] = true
		}
	}
	reg := NewRegistry()
	for _, t := range tools {
		if off[t.ID()] {
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Get(id string) (Tool, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.ID())
	}
	return out
}

// Capabilities describes the tools enabled in the map for the system prompt.
// A tool missing from enabled counts as enabled.
func (r *Registry) Capabilities(enabled map[string]bool) []persona.Capability {
	var out []persona.Capability
	for _, t := range r.tools {
		if on, ok := enabled[t.ID()]; ok && !on {
			continue
		}
		out = append(out, persona.Capability{Name: t.Name(), Description: t.Description()})
	}
	return out
}
