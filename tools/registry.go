package tools

import (
	"fmt"
	"strings"
)

// UnknownToolError reports a call to a tool name that was never declared.
// CallID and Turn are filled in by the conversation loop.
type UnknownToolError struct {
	Name   string
	CallID string
	Turn   int
}

func (e *UnknownToolError) Error() string {
	if e.CallID == "" {
		return fmt.Sprintf("unknown tool requested: %s", e.Name)
	}
	return fmt.Sprintf("unknown tool requested: %s (call_id=%s, turn=%d)", e.Name, e.CallID, e.Turn)
}

// Registry maps tool names to definitions. It is built once per
// conversation and only read afterwards, so it carries no lock.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry indexes defs by name. Empty, padded and duplicate names are
// rejected: the name is advertised and matched exactly as declared.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		name := d.Name
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool name is empty")
		}
		if strings.TrimSpace(name) != name {
			return nil, fmt.Errorf("tool name %q has surrounding whitespace", name)
		}
		if _, exists := r.defs[name]; exists {
			return nil, fmt.Errorf("tool %s already registered", name)
		}
		if d.Function == nil {
			return nil, fmt.Errorf("tool %s has no handler", name)
		}
		r.defs[name] = d
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, &UnknownToolError{Name: name}
	}
	return d, nil
}

// Names lists registered tool names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }
