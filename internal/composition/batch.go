package composition

import (
	"sync/atomic"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// Batch is a unit of work: parts to add, parts to remove and exports to
// inject. It is applied atomically and may be submitted once.
type Batch struct {
	add     []definition.Part
	remove  []definition.Part
	exports []*definition.Export

	submitted atomic.Bool
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// AddPart queues p for composition.
func (b *Batch) AddPart(p definition.Part) *Batch {
	b.mustBeOpen()
	b.add = append(b.add, p)
	return b
}

// RemovePart queues p for removal.
func (b *Batch) RemovePart(p definition.Part) *Batch {
	b.mustBeOpen()
	b.remove = append(b.remove, p)
	return b
}

// AddExport injects a ready-made export.
func (b *Batch) AddExport(e *definition.Export) *Batch {
	b.mustBeOpen()
	b.exports = append(b.exports, e)
	return b
}

// AddExportedValue injects v under contractName and returns the export so
// callers can remove or compare it later.
func (b *Batch) AddExportedValue(contractName string, md definition.Metadata, v any) *definition.Export {
	e := definition.ExportValue(definition.NewExportDefinition(contractName, md, ""), v)
	b.AddExport(e)
	return e
}

// PartsToAdd returns a copy of the queued additions.
func (b *Batch) PartsToAdd() []definition.Part { return append([]definition.Part(nil), b.add...) }

// PartsToRemove returns a copy of the queued removals.
func (b *Batch) PartsToRemove() []definition.Part {
	return append([]definition.Part(nil), b.remove...)
}

// ExportsToAdd returns a copy of the injected exports.
func (b *Batch) ExportsToAdd() []*definition.Export {
	return append([]*definition.Export(nil), b.exports...)
}

// Empty reports whether the batch carries no work.
func (b *Batch) Empty() bool {
	return len(b.add) == 0 && len(b.remove) == 0 && len(b.exports) == 0
}

// MarkSubmitted flips the batch to submitted. It returns
// ErrBatchResubmitted if that already happened.
func (b *Batch) MarkSubmitted() error {
	if !b.submitted.CompareAndSwap(false, true) {
		return ErrBatchResubmitted
	}
	return nil
}

// Submitted reports whether the batch was handed to a container.
func (b *Batch) Submitted() bool { return b.submitted.Load() }

func (b *Batch) mustBeOpen() {
	if b.submitted.Load() {
		panic("composition: batch modified after submission")
	}
}

// Result is the outcome of one composition pass. A failed result means no
// observable state changed.
type Result struct {
	Errors []error
}

// Succeeded reports whether the pass committed.
func (r Result) Succeeded() bool { return len(r.Errors) == 0 }

// Err returns nil on success or an *AggregateError.
func (r Result) Err() error {
	if r.Succeeded() {
		return nil
	}
	return &AggregateError{Errors: append([]error(nil), r.Errors...)}
}
