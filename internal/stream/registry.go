package stream

import "sync"

// Registry holds the ordered pattern list evaluated on every chunk. It is
// owned by an Analyzer instance, never shared module-level state, so two
// analyzers (or two tests) cannot interfere through it.
//
// Mutations take effect for the next chunk processed on any terminal.
// Duplicate names may coexist; Remove drops every definition with the
// name. The version counter bumps on every mutation so callers can detect
// change cheaply.
type Registry struct {
	mu      sync.RWMutex
	defs    []PatternDefinition
	version uint64
}

// NewRegistry creates a registry seeded with the given definitions in
// order.
func NewRegistry(defs ...PatternDefinition) *Registry {
	r := &Registry{}
	r.defs = append(r.defs, defs...)
	return r
}

// Add appends a definition to the end of the evaluation order.
func (r *Registry) Add(def PatternDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, def)
	r.version++
}

// Remove drops every definition with the given name and returns how many
// were removed.
func (r *Registry) Remove(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.defs[:0]
	removed := 0
	for _, def := range r.defs {
		if def.Name == name {
			removed++
			continue
		}
		kept = append(kept, def)
	}
	r.defs = kept
	if removed > 0 {
		r.version++
	}
	return removed
}

// Snapshot returns a copy of the current definitions in evaluation order.
// The analyzer iterates over a snapshot so a concurrent Add/Remove cannot
// corrupt a chunk mid-scan.
func (r *Registry) Snapshot() []PatternDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PatternDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Version returns the mutation counter.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
