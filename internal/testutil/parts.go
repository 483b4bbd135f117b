package testutil

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
)

// ImportFlag tweaks an import declared on a RecordingPart.
type ImportFlag int

const (
	// Recomposable lets the import be re-set after composition.
	Recomposable ImportFlag = iota + 1
	// NotPrerequisite lets the part export before the import is bound.
	NotPrerequisite
)

// RecordingPart is a hand-wired definition.Part that records every call the
// container makes on it.
type RecordingPart struct {
	Name       string
	Disposable bool
	// OnSet runs inside SetImport after the built-in checks. Its error is
	// returned as is.
	OnSet func(imp *definition.ImportDefinition, exports []*definition.Export) error
	// FailComposed is returned from OnComposed.
	FailComposed error

	exports []*definition.ExportDefinition
	imports []*definition.ImportDefinition
	values  map[*definition.ExportDefinition]any

	mu       sync.Mutex
	bound    map[string][]*definition.Export
	sets     map[string]int
	composed int
	frozen   bool
	resets   int
	disposes int
	gets     int
	reported []error
}

var (
	_ definition.Part          = (*RecordingPart)(nil)
	_ definition.Described     = (*RecordingPart)(nil)
	_ definition.Resetter      = (*RecordingPart)(nil)
	_ composition.ErrorReporter = (*RecordingPart)(nil)
)

// NewRecordingPart returns a part without exports or imports.
func NewRecordingPart(name string) *RecordingPart {
	return &RecordingPart{
		Name:   name,
		values: make(map[*definition.ExportDefinition]any),
		bound:  make(map[string][]*definition.Export),
		sets:   make(map[string]int),
	}
}

// Export declares an export of contract producing v.
func (p *RecordingPart) Export(contract string, v any) *RecordingPart {
	return p.ExportWith(contract, definition.Metadata{}, v)
}

// ExportWith declares an export carrying metadata.
func (p *RecordingPart) ExportWith(contract string, md definition.Metadata, v any) *RecordingPart {
	ed := definition.NewExportDefinition(contract, md, fmt.Sprintf("%s_%d", contract, len(p.exports)))
	p.exports = append(p.exports, ed)
	p.values[ed] = v
	return p
}

// Import declares an import of contract. Imports are prerequisites and not
// recomposable unless flags say otherwise. The member name is the contract.
func (p *RecordingPart) Import(contract string, card definition.Cardinality, flags ...ImportFlag) *RecordingPart {
	imp := &definition.ImportDefinition{
		Member:       contract,
		Constraint:   definition.ToConstraint(contract),
		Cardinality:  card,
		Prerequisite: true,
	}
	for _, f := range flags {
		switch f {
		case Recomposable:
			imp.Recomposable = true
		case NotPrerequisite:
			imp.Prerequisite = false
		}
	}
	p.imports = append(p.imports, imp)
	return p
}

func (p *RecordingPart) Describe() string { return p.Name }

func (p *RecordingPart) ExportDefinitions() []*definition.ExportDefinition { return p.exports }

func (p *RecordingPart) ImportDefinitions() []*definition.ImportDefinition { return p.imports }

func (p *RecordingPart) GetExportedObject(def *definition.ExportDefinition) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposes > 0 {
		return nil, composition.ExportError(composition.ErrPartDisposed, p.Name, def, nil)
	}
	for _, imp := range p.imports {
		if _, ok := p.bound[imp.Member]; imp.Prerequisite && !ok {
			return nil, composition.ExportError(composition.ErrPrerequisitesNotSatisfied, p.Name, def, nil)
		}
	}
	v, ok := p.values[def]
	if !ok {
		return nil, composition.ExportError(composition.ErrExportRetrieval, p.Name, def, fmt.Errorf("unknown export"))
	}
	p.gets++
	return v, nil
}

func (p *RecordingPart) SetImport(def *definition.ImportDefinition, exports []*definition.Export) error {
	p.mu.Lock()
	if p.disposes > 0 {
		p.mu.Unlock()
		return composition.ImportError(composition.ErrPartDisposed, p.Name, def, nil)
	}
	if p.frozen && !def.Recomposable {
		p.mu.Unlock()
		return composition.ImportError(composition.ErrNonRecomposableImport, p.Name, def, nil)
	}
	hook := p.OnSet
	p.mu.Unlock()

	if hook != nil {
		if err := hook(def, exports); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound[def.Member] = append([]*definition.Export(nil), exports...)
	p.sets[def.Member]++
	return nil
}

func (p *RecordingPart) OnComposed() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailComposed != nil {
		return p.FailComposed
	}
	p.composed++
	p.frozen = true
	return nil
}

func (p *RecordingPart) ResetComposition() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = false
	p.resets++
	clear(p.bound)
}

func (p *RecordingPart) RequiresDisposal() bool { return p.Disposable }

func (p *RecordingPart) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposes++
	return nil
}

func (p *RecordingPart) ReportError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reported = append(p.reported, err)
}

// Bound returns the exports last set on the import member.
func (p *RecordingPart) Bound(member string) []*definition.Export {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound[member]
}

// BoundValues resolves the exports last set on the import member.
func (p *RecordingPart) BoundValues(member string) ([]any, error) {
	var out []any
	for _, e := range p.Bound(member) {
		v, err := e.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SetCount returns how often the import member was set.
func (p *RecordingPart) SetCount(member string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets[member]
}

// TotalSets returns the number of SetImport calls that succeeded.
func (p *RecordingPart) TotalSets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.sets {
		n += c
	}
	return n
}

// ComposedCount returns how often OnComposed succeeded.
func (p *RecordingPart) ComposedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.composed
}

// ResetCount returns how often ResetComposition was called.
func (p *RecordingPart) ResetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// DisposeCount returns how often Dispose was called.
func (p *RecordingPart) DisposeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposes
}

// Reported returns the errors handed to ReportError.
func (p *RecordingPart) Reported() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.reported...)
}
