package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// notifier fans change events out to subscribers in subscription order.
type notifier struct {
	subMu  sync.Mutex
	nextID int
	subs   map[int]func(context.Context, ChangeEvent)
}

func (n *notifier) Subscribe(fn func(context.Context, ChangeEvent)) func() {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(context.Context, ChangeEvent))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			n.subMu.Lock()
			delete(n.subs, id)
			n.subMu.Unlock()
		})
	}
}

func (n *notifier) publish(ctx context.Context, ev ChangeEvent) {
	n.subMu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(context.Context, ChangeEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.subMu.Unlock()

	for _, fn := range fns {
		fn(ctx, ev)
	}
}

// reconcile compares two generations of definitions structurally. The
// merged result follows next's order but keeps prev's pointers for
// definitions that did not change, so holders of those pointers stay valid.
func reconcile(prev, next []*definition.PartDefinition) ([]*definition.PartDefinition, ChangeEvent) {
	var ev ChangeEvent
	used := make([]bool, len(prev))
	merged := make([]*definition.PartDefinition, 0, len(next))
	for _, n := range next {
		found := -1
		for i, p := range prev {
			if !used[i] && p.Equal(n) {
				found = i
				break
			}
		}
		if found >= 0 {
			used[found] = true
			merged = append(merged, prev[found])
			continue
		}
		merged = append(merged, n)
		ev.Added = append(ev.Added, n)
	}
	for i, p := range prev {
		if !used[i] {
			ev.Removed = append(ev.Removed, p)
		}
	}
	return merged, ev
}
