package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// Module is the interface that all built-in part modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// ExportGetter produces the exported object of a member from a live part
// object.
type ExportGetter func(obj any) (any, error)

// ImportSetter assigns the bound exports of an import member on a live part
// object.
type ImportSetter func(obj any, exports []*definition.Export) error

// RegisteredPart holds the compiled Go side of a part type: how to build its
// object and how to reach each export and import member.
type RegisteredPart struct {
	TypeName string
	New      func() (any, error)
	Exports  map[string]ExportGetter
	Imports  map[string]ImportSetter
	// Disposable is true when objects of the type must be released when
	// their part is removed.
	Disposable bool
	// Definition is the code-declared definition, already bound to a
	// factory. Manifests may describe the same type differently.
	Definition *definition.PartDefinition
}

// Registry maps part type names to their Go implementation. It is the
// discovery provider for code-declared parts and the site that rehydrates
// definitions read from manifests or caches.
type Registry struct {
	mu    sync.RWMutex
	parts map[string]*RegisteredPart
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{parts: make(map[string]*RegisteredPart)}
}

// RegisterModules lets each module register its part types.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// RegisterPart registers a part type. Registering the same type name twice
// is a programming error and panics.
func (r *Registry) RegisterPart(rp *RegisteredPart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parts[rp.TypeName]; exists {
		panic(fmt.Sprintf("part type with name '%s' already registered", rp.TypeName))
	}
	slog.Debug("Registering part type.", "type", rp.TypeName, "exports", len(rp.Exports), "imports", len(rp.Imports))
	r.parts[rp.TypeName] = rp
}

// Lookup returns the registration for typeName.
func (r *Registry) Lookup(typeName string) (*RegisteredPart, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.parts[typeName]
	return rp, ok
}

// TypeNames returns the registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parts))
	for name := range r.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the code-declared definitions of every registered
// type that has one, ordered by type name.
func (r *Registry) Definitions() []*definition.PartDefinition {
	var defs []*definition.PartDefinition
	for _, name := range r.TypeNames() {
		rp, _ := r.Lookup(name)
		if rp.Definition != nil {
			defs = append(defs, rp.Definition)
		}
	}
	return defs
}
