package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/specialistvlad/partgrid/internal/engine"

// Option configures a Container.
type Option func(*Container)

// WithCatalog lets the container create parts from cat on demand. If cat
// implements catalog.Notifier, its changes recompose affected parts.
func WithCatalog(cat catalog.Catalog) Option {
	return func(c *Container) { c.catalog = cat }
}

// WithTracer sets the tracer for composition spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Container) { c.tracer = t }
}

// Container composes parts. Batches and catalog recompositions are
// serialized; exported values are retrieved outside the lock.
type Container struct {
	mu       sync.Mutex
	catalog  catalog.Catalog
	tracer   trace.Tracer
	seq      int
	batches  int
	entries  []*entry
	byPart   map[definition.Part]*entry
	byDef    map[*definition.PartDefinition]*entry
	explicit []*definition.Export
	cancel   func()
	closed   bool
}

// New returns an empty container. Parts passed to it must be comparable,
// which pointer receivers are.
func New(ctx context.Context, opts ...Option) *Container {
	c := &Container{
		byPart: make(map[definition.Part]*entry),
		byDef:  make(map[*definition.PartDefinition]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if n, ok := c.catalog.(catalog.Notifier); ok {
		c.cancel = n.Subscribe(c.onCatalogChanged)
	}
	ctxlog.FromContext(ctx).Debug("Container created.", "catalog", c.catalog != nil)
	return c
}

func (c *Container) newEntry(p definition.Part, def *definition.PartDefinition) *entry {
	c.seq++
	return newEntry(c.seq, p, def)
}

// Submit applies b atomically. Either every part in the batch is composed
// and every removal takes effect, or nothing observable changes and the
// result carries every error found.
func (c *Container) Submit(ctx context.Context, b *composition.Batch) composition.Result {
	if err := b.MarkSubmitted(); err != nil {
		return composition.Result{Errors: []error{err}}
	}
	ctx, span := c.tracer.Start(ctx, "engine.Submit", trace.WithAttributes(
		attribute.Int("batch.add", len(b.PartsToAdd())),
		attribute.Int("batch.remove", len(b.PartsToRemove())),
		attribute.Int("batch.exports", len(b.ExportsToAdd())),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.finish(span, composition.Result{Errors: []error{composition.ErrContainerClosed}})
	}
	c.batches++
	ctx = ctxlog.With(ctx, "batch", c.batches)
	logger := ctxlog.FromContext(ctx)

	t := c.newTxn(ctx)
	var delta []*definition.ExportDefinition

	for _, p := range b.PartsToRemove() {
		e, ok := c.byPart[p]
		if !ok || t.excluded[e] {
			t.fail(&composition.Error{Kind: composition.ErrInvalidBatch, Part: describePart(p), Msg: "part is not in the container"})
			continue
		}
		t.remove(e)
		delta = append(delta, p.ExportDefinitions()...)
	}
	inBatch := make(map[definition.Part]bool)
	for _, p := range b.PartsToAdd() {
		if _, ok := c.byPart[p]; ok || inBatch[p] {
			t.fail(&composition.Error{Kind: composition.ErrInvalidBatch, Part: describePart(p), Msg: "part is already composed"})
			continue
		}
		inBatch[p] = true
		t.add(c.newEntry(p, nil))
	}
	for _, exp := range b.ExportsToAdd() {
		t.explicit = append(t.explicit, exp)
		delta = append(delta, exp.Definition())
	}

	if !t.failed() {
		t.resolveAdded()
		t.propagate(delta)
		t.validate()
	}
	if t.failed() {
		t.rollback()
		return c.finish(span, composition.Result{Errors: t.errs})
	}
	if !t.commit() {
		return c.finish(span, composition.Result{Errors: t.errs})
	}
	t.apply()
	logger.Debug("Batch composed.",
		"added", len(t.added), "removed", len(t.removed), "recomposed", len(t.rebind), "exports", len(b.ExportsToAdd()))
	return c.finish(span, composition.Result{})
}

func (c *Container) finish(span trace.Span, r composition.Result) composition.Result {
	if err := r.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "composition failed")
	}
	return r
}

// Compose adds parts in one batch.
func (c *Container) Compose(ctx context.Context, parts ...definition.Part) error {
	b := composition.NewBatch()
	for _, p := range parts {
		b.AddPart(p)
	}
	return c.Submit(ctx, b).Err()
}

// Remove removes parts in one batch.
func (c *Container) Remove(ctx context.Context, parts ...definition.Part) error {
	b := composition.NewBatch()
	for _, p := range parts {
		b.RemovePart(p)
	}
	return c.Submit(ctx, b).Err()
}

// GetExports returns the exports satisfying imp, activating catalog parts
// as needed. The cardinality of imp is enforced.
func (c *Container) GetExports(ctx context.Context, imp *definition.ImportDefinition) ([]*definition.Export, error) {
	ctx, span := c.tracer.Start(ctx, "engine.GetExports", trace.WithAttributes(
		attribute.String("import.contract", imp.ContractName()),
		attribute.String("import.cardinality", imp.Cardinality.String()),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, composition.ErrContainerClosed
	}

	t := c.newTxn(ctx)
	handles, _ := t.candidates(nil, "container", imp)
	if !t.failed() {
		t.propagate(nil)
		t.validate()
	}
	if t.failed() {
		t.rollback()
	}
	if t.failed() || !t.commit() {
		err := composition.Result{Errors: t.errs}.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	t.apply()
	span.SetAttributes(attribute.Int("exports", len(handles)))
	return handles, nil
}

// GetExportedObject returns the value of the single export of contractName.
func (c *Container) GetExportedObject(ctx context.Context, contractName string) (any, error) {
	imp := &definition.ImportDefinition{Constraint: definition.ToConstraint(contractName), Cardinality: definition.ExactlyOne}
	handles, err := c.GetExports(ctx, imp)
	if err != nil {
		return nil, err
	}
	return value(handles[0])
}

// GetExportedObjects returns the values of every export of contractName.
func (c *Container) GetExportedObjects(ctx context.Context, contractName string) ([]any, error) {
	imp := &definition.ImportDefinition{Constraint: definition.ToConstraint(contractName), Cardinality: definition.ZeroOrMore}
	handles, err := c.GetExports(ctx, imp)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(handles))
	for _, h := range handles {
		v, err := value(h)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetExportedValue is GetExportedObject with a type assertion.
func GetExportedValue[T any](ctx context.Context, c *Container, contractName string) (T, error) {
	var zero T
	v, err := c.GetExportedObject(ctx, contractName)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &composition.Error{
			Kind: composition.ErrImportNotAssignable,
			Msg:  fmt.Sprintf("export %s is %T, not %T", contractName, v, zero),
		}
	}
	return typed, nil
}

func value(h *definition.Export) (any, error) {
	v, err := h.Value()
	if err == nil {
		return v, nil
	}
	var ce *composition.Error
	if errors.As(err, &ce) {
		return nil, err
	}
	return nil, composition.ExportError(composition.ErrExportRetrieval, "", h.Definition(), err)
}

// Parts returns the composed parts in the order they were added.
func (c *Container) Parts() []definition.Part {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]definition.Part, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.part)
	}
	return out
}

// PartState reports the container's view of p.
func (c *Container) PartState(p definition.Part) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byPart[p]
	if !ok {
		return Disposed, false
	}
	return e.State(), true
}

// Close disposes every part in reverse order of addition and detaches from
// the catalog. It is safe to call more than once.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	var errs []error
	for i := len(c.entries) - 1; i >= 0; i-- {
		if err := c.dispose(ctx, c.entries[i]); err != nil {
			errs = append(errs, err)
		}
	}
	c.entries = nil
	clear(c.byPart)
	clear(c.byDef)
	c.explicit = nil
	ctxlog.FromContext(ctx).Debug("Container closed.")
	return errors.Join(errs...)
}

// dispose marks e disposed and runs its disposal hook if it has one.
func (c *Container) dispose(ctx context.Context, e *entry) error {
	if e.State() == Disposed {
		return nil
	}
	e.setState(Disposed)
	if !e.part.RequiresDisposal() {
		return nil
	}
	if err := e.part.Dispose(); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to dispose part.", "part", e.describe(), "error", err)
		return fmt.Errorf("disposing %s: %w", e.describe(), err)
	}
	return nil
}

func describePart(p definition.Part) string {
	if d, ok := p.(definition.Described); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", p)
}
