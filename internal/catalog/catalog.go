package catalog

import (
	"context"
	"sync"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// Pair is one export definition together with the part definition that
// owns it.
type Pair struct {
	Part   *definition.PartDefinition
	Export *definition.ExportDefinition
}

// ChangeEvent is the delta a changing catalog reports.
type ChangeEvent struct {
	Added   []*definition.PartDefinition
	Removed []*definition.PartDefinition
}

// Empty reports whether the event carries no change.
func (e ChangeEvent) Empty() bool { return len(e.Added) == 0 && len(e.Removed) == 0 }

// Catalog is a queryable collection of part definitions. Implementations
// must be safe for concurrent use and return independent snapshots.
type Catalog interface {
	// Parts returns the definitions in a stable order: repeated calls
	// without an intervening change yield sequence-equal results.
	Parts(ctx context.Context) []*definition.PartDefinition
	// GetExports returns every export of every part matching c.
	GetExports(ctx context.Context, c definition.Constraint) []Pair
}

// Notifier is implemented by catalogs whose contents change over time.
type Notifier interface {
	// Subscribe registers fn for change events and returns a function that
	// cancels the subscription. Events are delivered synchronously, after
	// the catalog committed the change.
	Subscribe(fn func(context.Context, ChangeEvent)) (cancel func())
}

// Binder turns definitions without Go code into definitions with working
// factories. part.Site implements it.
type Binder interface {
	Rehydrate(def *definition.PartDefinition) (*definition.PartDefinition, error)
}

// Static is an immutable catalog.
type Static struct {
	defs    []*definition.PartDefinition
	queries *queryCache
}

var _ Catalog = (*Static)(nil)

// NewStatic returns a catalog holding defs in the given order.
func NewStatic(defs ...*definition.PartDefinition) *Static {
	return &Static{
		defs:    append([]*definition.PartDefinition(nil), defs...),
		queries: newQueryCache(),
	}
}

func (s *Static) Parts(context.Context) []*definition.PartDefinition {
	return append([]*definition.PartDefinition(nil), s.defs...)
}

func (s *Static) GetExports(ctx context.Context, c definition.Constraint) []Pair {
	return s.queries.getOrCompute(ctx, c, func() []Pair { return match(s.defs, c) })
}

// Mutable is a catalog whose definitions are added and removed by the
// caller. Every change is reported to subscribers.
type Mutable struct {
	mu      sync.RWMutex
	defs    []*definition.PartDefinition
	queries *queryCache
	notifier
}

var (
	_ Catalog  = (*Mutable)(nil)
	_ Notifier = (*Mutable)(nil)
)

// NewMutable returns a mutable catalog seeded with defs.
func NewMutable(defs ...*definition.PartDefinition) *Mutable {
	return &Mutable{
		defs:    append([]*definition.PartDefinition(nil), defs...),
		queries: newQueryCache(),
	}
}

func (m *Mutable) Parts(context.Context) []*definition.PartDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*definition.PartDefinition(nil), m.defs...)
}

func (m *Mutable) GetExports(ctx context.Context, c definition.Constraint) []Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries.getOrCompute(ctx, c, func() []Pair { return match(m.defs, c) })
}

// Add appends defs and raises a change event.
func (m *Mutable) Add(ctx context.Context, defs ...*definition.PartDefinition) {
	if len(defs) == 0 {
		return
	}
	m.mu.Lock()
	m.defs = append(m.defs, defs...)
	m.queries.flush()
	m.mu.Unlock()
	m.publish(ctx, ChangeEvent{Added: append([]*definition.PartDefinition(nil), defs...)})
}

// Remove drops defs (matched by identity) and raises a change event for
// those that were present.
func (m *Mutable) Remove(ctx context.Context, defs ...*definition.PartDefinition) {
	drop := make(map[*definition.PartDefinition]bool, len(defs))
	for _, d := range defs {
		drop[d] = true
	}
	var removed []*definition.PartDefinition
	m.mu.Lock()
	kept := m.defs[:0:0]
	for _, d := range m.defs {
		if drop[d] {
			removed = append(removed, d)
			continue
		}
		kept = append(kept, d)
	}
	m.defs = kept
	m.queries.flush()
	m.mu.Unlock()
	if len(removed) > 0 {
		m.publish(ctx, ChangeEvent{Removed: removed})
	}
}

// Replace swaps the whole content and reports the difference.
func (m *Mutable) Replace(ctx context.Context, defs []*definition.PartDefinition) {
	m.mu.Lock()
	merged, ev := reconcile(m.defs, defs)
	m.defs = merged
	m.queries.flush()
	m.mu.Unlock()
	if !ev.Empty() {
		m.publish(ctx, ev)
	}
}

func match(defs []*definition.PartDefinition, c definition.Constraint) []Pair {
	var out []Pair
	for _, d := range defs {
		for _, e := range d.Exports {
			if c.Matches(e) {
				out = append(out, Pair{Part: d, Export: e})
			}
		}
	}
	return out
}
