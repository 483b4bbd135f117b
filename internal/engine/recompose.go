package engine

import (
	"context"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// onCatalogChanged recomposes the parts whose imports match an added or
// removed definition. Each part is recomposed atomically on its own; a
// failure is reported to that part and does not affect the others. Parts
// the container created from removed definitions are disposed afterwards.
func (c *Container) onCatalogChanged(ctx context.Context, ev catalog.ChangeEvent) {
	ctx, span := c.tracer.Start(ctx, "engine.Recompose", trace.WithAttributes(
		attribute.Int("catalog.added", len(ev.Added)),
		attribute.Int("catalog.removed", len(ev.Removed)),
	))
	defer span.End()
	logger := ctxlog.FromContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	removedDefs := make(map[*definition.PartDefinition]bool, len(ev.Removed))
	var delta []*definition.ExportDefinition
	for _, def := range ev.Removed {
		removedDefs[def] = true
		delta = append(delta, def.Exports...)
	}
	for _, def := range ev.Added {
		delta = append(delta, def.Exports...)
	}
	var doomed []*entry
	for _, e := range c.entries {
		if e.def != nil && removedDefs[e.def] {
			doomed = append(doomed, e)
		}
	}
	isDoomed := make(map[*entry]bool, len(doomed))
	for _, e := range doomed {
		isDoomed[e] = true
	}

	failures := 0
	for _, e := range append([]*entry(nil), c.entries...) {
		if isDoomed[e] {
			continue
		}
		var imps []*definition.ImportDefinition
		for _, imp := range e.imports {
			if matchesAny(imp, delta) {
				imps = append(imps, imp)
			}
		}
		if len(imps) == 0 {
			continue
		}

		t := c.newTxn(ctx)
		for _, d := range doomed {
			t.exclude(d)
		}
		t.recheck(e, imps)
		if !t.failed() {
			t.propagate(nil)
			t.validate()
		}
		if t.failed() {
			t.rollback()
		}
		if t.failed() || !t.commit() {
			failures++
			c.report(ctx, e, composition.Result{Errors: t.errs}.Err())
			continue
		}
		t.apply()
		if len(t.rebind) > 0 {
			logger.Debug("Part recomposed.", "part", e.describe(), "imports", len(t.plan[e]), "activated", len(t.created))
		}
	}

	for _, d := range doomed {
		c.detach(ctx, d)
	}
	if failures > 0 {
		span.SetStatus(codes.Error, "recomposition failed")
	}
}

// report hands a recomposition failure to the part if it accepts one.
func (c *Container) report(ctx context.Context, e *entry, err error) {
	ctxlog.FromContext(ctx).Error("Failed to recompose part.", "part", e.describe(), "error", err)
	if r, ok := e.part.(composition.ErrorReporter); ok {
		r.ReportError(err)
	}
}

// detach removes e from the container and disposes it.
func (c *Container) detach(ctx context.Context, e *entry) {
	entries := c.entries[:0]
	for _, x := range c.entries {
		if x != e {
			entries = append(entries, x)
		}
	}
	c.entries = entries
	delete(c.byPart, e.part)
	if e.def != nil && c.byDef[e.def] == e {
		delete(c.byDef, e.def)
	}
	_ = c.dispose(ctx, e)
}
