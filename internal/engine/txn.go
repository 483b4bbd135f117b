package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/dag"
	"github.com/specialistvlad/partgrid/internal/definition"
)

// txn is one composition pass. Everything up to validate only computes;
// commit is the first step that calls into parts.
type txn struct {
	c   *Container
	ctx context.Context

	live     []*entry
	excluded map[*entry]bool
	byDef    map[*definition.PartDefinition]*entry
	explicit []*definition.Export

	added    []*entry
	created  []*entry
	removed  []*entry
	resolved map[*entry]bool
	plan     map[*entry]map[*definition.ImportDefinition][]*definition.Export
	rebind   []*entry
	order    []*entry

	// set records imports already pushed to parts, for rollback.
	set  []setRecord
	errs []error
}

type setRecord struct {
	e   *entry
	imp *definition.ImportDefinition
}

func (c *Container) newTxn(ctx context.Context) *txn {
	t := &txn{
		c:        c,
		ctx:      ctx,
		live:     append([]*entry(nil), c.entries...),
		excluded: make(map[*entry]bool),
		byDef:    make(map[*definition.PartDefinition]*entry, len(c.byDef)),
		explicit: append([]*definition.Export(nil), c.explicit...),
		resolved: make(map[*entry]bool),
		plan:     make(map[*entry]map[*definition.ImportDefinition][]*definition.Export),
	}
	for def, e := range c.byDef {
		t.byDef[def] = e
	}
	return t
}

func (t *txn) fail(err error) { t.errs = append(t.errs, err) }

func (t *txn) failed() bool { return len(t.errs) > 0 }

// exclude hides e from candidate selection without removing it.
func (t *txn) exclude(e *entry) {
	t.excluded[e] = true
	if e.def != nil && t.byDef[e.def] == e {
		delete(t.byDef, e.def)
	}
}

// remove schedules e for removal on commit.
func (t *txn) remove(e *entry) {
	t.exclude(e)
	t.removed = append(t.removed, e)
}

func (t *txn) add(e *entry) {
	t.live = append(t.live, e)
	t.added = append(t.added, e)
	if e.def != nil {
		t.byDef[e.def] = e
	}
}

// candidates selects the exports satisfying imp for the importer self,
// which may be nil for container queries. Catalog parts are created on
// demand, but only once the cardinality check passed.
func (t *txn) candidates(self *entry, owner string, imp *definition.ImportDefinition) ([]*definition.Export, bool) {
	var handles []*definition.Export
	for _, e := range t.live {
		if e == self || t.excluded[e] {
			continue
		}
		for _, h := range e.exports {
			if imp.Matches(h.Definition()) {
				handles = append(handles, h)
			}
		}
	}
	for _, h := range t.explicit {
		if imp.Matches(h.Definition()) {
			handles = append(handles, h)
		}
	}

	var pending []pendingExport
	if t.c.catalog != nil {
		for _, p := range t.c.catalog.GetExports(t.ctx, imp.Constraint) {
			if _, active := t.byDef[p.Part]; active {
				continue
			}
			if self != nil && self.def == p.Part {
				continue
			}
			pending = append(pending, pendingExport{def: p.Part, export: p.Export})
		}
	}

	n := len(handles) + len(pending)
	if !imp.Cardinality.Accepts(n) {
		kind := composition.ErrTooManyExports
		if n == 0 {
			kind = composition.ErrNoExports
		}
		t.fail(&composition.Error{Kind: kind, Part: owner, Import: imp, Msg: fmt.Sprintf("%s import matched %d exports", imp.Cardinality, n)})
		return nil, false
	}

	ok := true
	for _, p := range pending {
		e, err := t.activate(p.def)
		if err != nil {
			t.fail(err)
			ok = false
			continue
		}
		if h := e.handleFor(p.export); h != nil {
			handles = append(handles, h)
		}
	}
	return handles, ok
}

type pendingExport struct {
	def    *definition.PartDefinition
	export *definition.ExportDefinition
}

// activate returns the shared part for def, creating it if needed.
func (t *txn) activate(def *definition.PartDefinition) (*entry, error) {
	if e, ok := t.byDef[def]; ok {
		return e, nil
	}
	p, err := def.CreatePart()
	if err != nil {
		return nil, composition.NewError(composition.ErrPartActivation, def.TypeName, err)
	}
	e := t.c.newEntry(p, def)
	t.add(e)
	t.created = append(t.created, e)
	ctxlog.FromContext(t.ctx).Debug("Activated catalog part.", "part", e.describe())
	return e, nil
}

// resolveAdded binds every import of added parts that were not yet
// resolved, including parts activated along the way.
func (t *txn) resolveAdded() {
	for i := 0; i < len(t.added); i++ {
		e := t.added[i]
		if t.resolved[e] {
			continue
		}
		t.resolved[e] = true
		plan := make(map[*definition.ImportDefinition][]*definition.Export, len(e.imports))
		for _, imp := range e.imports {
			if handles, ok := t.candidates(e, e.describe(), imp); ok {
				plan[imp] = handles
			}
		}
		t.plan[e] = plan
	}
}

// recheck recomputes imps of the existing part e. Imports whose candidate
// set is unchanged are left alone.
func (t *txn) recheck(e *entry, imps []*definition.ImportDefinition) {
	for _, imp := range imps {
		handles, ok := t.candidates(e, e.describe(), imp)
		if !ok || sameHandles(handles, e.bindings[imp]) {
			continue
		}
		if !imp.Recomposable {
			t.fail(composition.ImportError(composition.ErrNonRecomposableImport, e.describe(), imp, nil))
			continue
		}
		plan, ok := t.plan[e]
		if !ok {
			plan = make(map[*definition.ImportDefinition][]*definition.Export)
			t.plan[e] = plan
			t.rebind = append(t.rebind, e)
		}
		plan[imp] = handles
	}
}

// propagate rechecks imports of existing parts that match any export in
// delta or any export of a part added to the pass, including catalog parts
// activated while resolving. It repeats for parts the checks activate.
func (t *txn) propagate(delta []*definition.ExportDefinition) {
	checked := make(map[*entry]map[*definition.ImportDefinition]bool)
	seen := 0
	for {
		for _, e := range t.added[seen:] {
			delta = append(delta, e.part.ExportDefinitions()...)
		}
		seen = len(t.added)
		if len(delta) == 0 {
			return
		}
		for _, e := range t.c.entries {
			if t.excluded[e] {
				continue
			}
			var imps []*definition.ImportDefinition
			for _, imp := range e.imports {
				if checked[e][imp] || !matchesAny(imp, delta) {
					continue
				}
				if checked[e] == nil {
					checked[e] = make(map[*definition.ImportDefinition]bool)
				}
				checked[e][imp] = true
				imps = append(imps, imp)
			}
			if len(imps) > 0 {
				t.recheck(e, imps)
			}
		}
		t.resolveAdded()
		delta = nil
	}
}

// validate orders added parts by their prerequisite imports.
func (t *txn) validate() {
	if len(t.added) == 0 {
		return
	}
	owners := make(map[*definition.Export]*entry)
	byID := make(map[string]*entry, len(t.added))
	g := dag.New()
	for _, e := range t.added {
		byID[e.id] = e
		g.AddNode(e.id)
		for _, h := range e.exports {
			owners[h] = e
		}
	}
	for _, e := range t.added {
		for _, imp := range e.imports {
			if !imp.Prerequisite {
				continue
			}
			for _, h := range t.plan[e][imp] {
				o, ok := owners[h]
				if !ok || o == e {
					continue
				}
				// Edges are deduplicated by the graph.
				_ = g.AddEdge(o.id, e.id)
			}
		}
	}
	ids, err := g.TopologicalOrder()
	if err != nil {
		var ce *dag.CycleError
		msg := err.Error()
		if errors.As(err, &ce) {
			names := make([]string, 0, len(ce.Path))
			for _, id := range ce.Path {
				names = append(names, byID[id].describe())
			}
			msg = strings.Join(names, " -> ")
		}
		t.fail(&composition.Error{Kind: composition.ErrPartCycle, Msg: msg})
		return
	}
	t.order = make([]*entry, 0, len(ids))
	for _, id := range ids {
		t.order = append(t.order, byID[id])
	}
}

// commit pushes bindings into parts and activates them: prerequisite
// imports in activation order, then the rest, then OnComposed. Any failure
// rolls the pass back.
func (t *txn) commit() bool {
	for _, e := range t.order {
		e.setState(ImportsPending)
		for _, imp := range e.imports {
			if imp.Prerequisite {
				t.setImport(e, imp, t.plan[e][imp])
			}
		}
		e.setState(Activatable)
	}
	for _, e := range t.order {
		for _, imp := range e.imports {
			if !imp.Prerequisite {
				t.setImport(e, imp, t.plan[e][imp])
			}
		}
	}
	for _, e := range t.rebind {
		e.setState(Recomposing)
		for _, imp := range e.imports {
			if handles, ok := t.plan[e][imp]; ok {
				t.setImport(e, imp, handles)
			}
		}
	}
	if t.failed() {
		t.rollback()
		return false
	}

	for _, e := range append(append([]*entry(nil), t.order...), t.rebind...) {
		if err := e.part.OnComposed(); err != nil {
			t.fail(composition.NewError(composition.ErrPartActivation, e.describe(), err))
			continue
		}
		e.setState(Composed)
	}
	if t.failed() {
		t.rollback()
		return false
	}
	return true
}

func (t *txn) setImport(e *entry, imp *definition.ImportDefinition, handles []*definition.Export) {
	if err := e.part.SetImport(imp, handles); err != nil {
		var ce *composition.Error
		if !errors.As(err, &ce) {
			err = composition.ImportError(composition.ErrImportSet, e.describe(), imp, err)
		}
		t.fail(err)
		return
	}
	t.set = append(t.set, setRecord{e: e, imp: imp})
}

// rollback restores previous bindings of existing parts and disposes the
// parts this pass created. Parts supplied by the caller are reset, not
// disposed, so the same parts can be submitted again.
func (t *txn) rollback() {
	logger := ctxlog.FromContext(t.ctx)
	created := make(map[*entry]bool, len(t.created))
	for _, e := range t.created {
		created[e] = true
	}
	for i := len(t.set) - 1; i >= 0; i-- {
		r := t.set[i]
		if _, existing := t.c.byPart[r.e.part]; !existing {
			continue
		}
		if err := r.e.part.SetImport(r.imp, r.e.bindings[r.imp]); err != nil {
			logger.Warn("Failed to restore import during rollback.", "part", r.e.describe(), "import", r.imp.String(), "error", err)
		}
	}
	for _, e := range t.rebind {
		e.setState(Composed)
	}
	for _, e := range t.added {
		if created[e] {
			_ = t.c.dispose(t.ctx, e)
			continue
		}
		e.setState(Unbound)
		if r, ok := e.part.(definition.Resetter); ok {
			r.ResetComposition()
		}
	}
}

// apply makes the committed pass the container's state.
func (t *txn) apply() {
	c := t.c
	for _, e := range t.added {
		e.bindings = t.plan[e]
		c.byPart[e.part] = e
		if e.def != nil {
			c.byDef[e.def] = e
		}
	}
	for _, e := range t.rebind {
		for imp, handles := range t.plan[e] {
			e.bindings[imp] = handles
		}
	}
	gone := make(map[*entry]bool, len(t.removed))
	for _, e := range t.removed {
		gone[e] = true
	}
	entries := make([]*entry, 0, len(c.entries)+len(t.added))
	for _, e := range c.entries {
		if !gone[e] {
			entries = append(entries, e)
		}
	}
	c.entries = append(entries, t.added...)
	c.explicit = t.explicit
	for _, e := range t.removed {
		delete(c.byPart, e.part)
		if e.def != nil && c.byDef[e.def] == e {
			delete(c.byDef, e.def)
		}
		_ = c.dispose(t.ctx, e)
	}
}

func matchesAny(imp *definition.ImportDefinition, exports []*definition.ExportDefinition) bool {
	for _, ed := range exports {
		if imp.Matches(ed) {
			return true
		}
	}
	return false
}
