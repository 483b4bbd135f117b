package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
)

// ValidateDefinitions performs a strict parity check between definitions
// loaded from manifests or caches and the Go code registered for their
// types. Every mismatch is reported, not just the first.
func (r *Registry) ValidateDefinitions(ctx context.Context, defs []*definition.PartDefinition) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, def := range defs {
		rp, ok := r.Lookup(def.TypeName)
		if !ok {
			errs = append(errs, fmt.Sprintf("part '%s': no Go implementation registered", def.TypeName))
			continue
		}

		declaredExports := make(map[string]struct{})
		for _, e := range def.Exports {
			declaredExports[e.Member] = struct{}{}
			if _, ok := rp.Exports[e.Member]; !ok {
				errs = append(errs, fmt.Sprintf("part '%s': manifest declares export member '%s' which has no Go getter", def.TypeName, e.Member))
			}
		}
		declaredImports := make(map[string]struct{})
		for _, i := range def.Imports {
			declaredImports[i.Member] = struct{}{}
			if _, ok := rp.Imports[i.Member]; !ok {
				errs = append(errs, fmt.Sprintf("part '%s': manifest declares import member '%s' which has no Go setter", def.TypeName, i.Member))
			}
			if !i.Cardinality.Valid() {
				errs = append(errs, fmt.Sprintf("part '%s', import '%s': invalid cardinality %s", def.TypeName, i.Member, i.Cardinality))
			}
		}

		for _, member := range sortedKeys(rp.Imports) {
			if _, ok := declaredImports[member]; !ok {
				errs = append(errs, fmt.Sprintf("part '%s': Go code has setter for import '%s' which is not declared in manifest", def.TypeName, member))
			}
		}
		for _, member := range sortedKeys(rp.Exports) {
			if _, ok := declaredExports[member]; !ok {
				logger.Debug("Registered export member is not declared by manifest.", "part", def.TypeName, "member", member)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
