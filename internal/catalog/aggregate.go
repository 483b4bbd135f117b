package catalog

import (
	"context"
	"sync"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// Aggregate is the union of several catalogs. Nothing is deduplicated:
// the same contract offered by two children yields two candidates.
type Aggregate struct {
	mu       sync.RWMutex
	children []Catalog
	cancels  []func()
	notifier
}

var (
	_ Catalog  = (*Aggregate)(nil)
	_ Notifier = (*Aggregate)(nil)
)

// NewAggregate returns the union of children. Change events of children
// that implement Notifier are forwarded.
func NewAggregate(children ...Catalog) *Aggregate {
	a := &Aggregate{}
	for _, c := range children {
		a.attach(c)
	}
	return a
}

// AddCatalog appends a child and reports its parts as added.
func (a *Aggregate) AddCatalog(ctx context.Context, c Catalog) {
	a.attach(c)
	if parts := c.Parts(ctx); len(parts) > 0 {
		a.publish(ctx, ChangeEvent{Added: parts})
	}
}

func (a *Aggregate) attach(c Catalog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.children = append(a.children, c)
	if n, ok := c.(Notifier); ok {
		a.cancels = append(a.cancels, n.Subscribe(a.publish))
	}
}

// Children returns the child catalogs in order.
func (a *Aggregate) Children() []Catalog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Catalog(nil), a.children...)
}

func (a *Aggregate) Parts(ctx context.Context) []*definition.PartDefinition {
	var out []*definition.PartDefinition
	for _, c := range a.Children() {
		out = append(out, c.Parts(ctx)...)
	}
	return out
}

func (a *Aggregate) GetExports(ctx context.Context, c definition.Constraint) []Pair {
	var out []Pair
	for _, child := range a.Children() {
		out = append(out, child.GetExports(ctx, c)...)
	}
	return out
}

// Close stops forwarding child events.
func (a *Aggregate) Close() error {
	a.mu.Lock()
	cancels := a.cancels
	a.cancels = nil
	a.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
