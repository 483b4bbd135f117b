package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
)

// State is the container's view of a part.
type State int32

const (
	Unbound State = iota
	ImportsPending
	Activatable
	Composed
	Recomposing
	Disposed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case ImportsPending:
		return "imports_pending"
	case Activatable:
		return "activatable"
	case Composed:
		return "composed"
	case Recomposing:
		return "recomposing"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// entry is the container's bookkeeping for one part.
type entry struct {
	id   string
	part definition.Part
	// def is set for parts the container created from a catalog; those
	// are owned by the container.
	def      *definition.PartDefinition
	exports  []*definition.Export
	imports  []*definition.ImportDefinition
	bindings map[*definition.ImportDefinition][]*definition.Export
	state    atomic.Int32
}

func newEntry(seq int, p definition.Part, def *definition.PartDefinition) *entry {
	e := &entry{
		id:       fmt.Sprintf("%06d", seq),
		part:     p,
		def:      def,
		imports:  p.ImportDefinitions(),
		bindings: make(map[*definition.ImportDefinition][]*definition.Export),
	}
	for _, ed := range p.ExportDefinitions() {
		ed := ed
		e.exports = append(e.exports, definition.NewGuardedExport(ed,
			func() (any, error) { return p.GetExportedObject(ed) },
			func() error {
				if e.State() == Disposed {
					return composition.ExportError(composition.ErrPartDisposed, e.describe(), ed, nil)
				}
				return nil
			}))
	}
	return e
}

func (e *entry) State() State     { return State(e.state.Load()) }
func (e *entry) setState(s State) { e.state.Store(int32(s)) }

func (e *entry) describe() string {
	if d, ok := e.part.(definition.Described); ok {
		return d.Describe()
	}
	if e.def != nil {
		return fmt.Sprintf("%s#%s", e.def.TypeName, e.id)
	}
	return fmt.Sprintf("%T#%s", e.part, e.id)
}

// handleFor returns the export handle of e for ed.
func (e *entry) handleFor(ed *definition.ExportDefinition) *definition.Export {
	for _, h := range e.exports {
		if h.Definition() == ed {
			return h
		}
	}
	for _, h := range e.exports {
		if h.Definition().Equal(ed) {
			return h
		}
	}
	return nil
}

func sameHandles(a, b []*definition.Export) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[*definition.Export]int, len(a))
	for _, h := range a {
		set[h]++
	}
	for _, h := range b {
		if set[h] == 0 {
			return false
		}
		set[h]--
	}
	return true
}
