package part

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/registry"
)

// Site rehydrates definitions that were discovered without Go code (HCL
// manifests, cache artifacts) by binding them to the factories, getters and
// setters registered for their type.
type Site struct {
	reg *registry.Registry
}

// NewSite returns a site backed by r.
func NewSite(r *registry.Registry) *Site {
	return &Site{reg: r}
}

// Rehydrate returns a copy of def bound to a live factory. Every export and
// import member of def must be registered for its type.
func (s *Site) Rehydrate(def *definition.PartDefinition) (*definition.PartDefinition, error) {
	rp, ok := s.reg.Lookup(def.TypeName)
	if !ok {
		return nil, fmt.Errorf("part type %q is not registered", def.TypeName)
	}
	var errs []error
	for _, e := range def.Exports {
		if _, ok := rp.Exports[e.Member]; !ok {
			errs = append(errs, fmt.Errorf("export member %q has no getter", e.Member))
		}
	}
	for _, i := range def.Imports {
		if _, ok := rp.Imports[i.Member]; !ok {
			errs = append(errs, fmt.Errorf("import member %q has no setter", i.Member))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("rehydrating part %q: %w", def.TypeName, errors.Join(errs...))
	}
	return def.Bind(func(self *definition.PartDefinition) definition.PartFactory {
		return func() (definition.Part, error) {
			return NewInstance(rp, self), nil
		}
	}), nil
}

// RehydrateAll rehydrates every definition and reports all failures
// together.
func (s *Site) RehydrateAll(defs []*definition.PartDefinition) ([]*definition.PartDefinition, error) {
	out := make([]*definition.PartDefinition, 0, len(defs))
	var errs []error
	for _, d := range defs {
		bound, err := s.Rehydrate(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, bound)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
