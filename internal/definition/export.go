package definition

import (
	"fmt"
	"sync"
)

// Export is the runtime handle pairing an export definition with the getter
// that produces its object. The getter runs at most once successfully; a
// failing getter is retried on the next Value call.
type Export struct {
	def   *ExportDefinition
	cell  *cell
	guard func() error
}

// NewExport wraps getter in a compute-once cell.
func NewExport(def *ExportDefinition, getter func() (any, error)) *Export {
	return &Export{def: def, cell: &cell{get: getter}}
}

// NewGuardedExport is NewExport with a guard evaluated before every Value
// call, memoized or not. The owning part uses it to fail retrieval after
// disposal.
func NewGuardedExport(def *ExportDefinition, getter func() (any, error), guard func() error) *Export {
	return &Export{def: def, cell: &cell{get: getter}, guard: guard}
}

// ExportValue wraps an already-computed object.
func ExportValue(def *ExportDefinition, v any) *Export {
	return &Export{def: def, cell: &cell{done: true, value: v}}
}

// Definition returns the export's definition.
func (e *Export) Definition() *ExportDefinition { return e.def }

// Value returns the exported object, computing it on first use. A panic in
// the getter is recovered and returned as an error.
func (e *Export) Value() (any, error) {
	if e.guard != nil {
		if err := e.guard(); err != nil {
			return nil, err
		}
	}
	return e.cell.load()
}

// Computed reports whether the getter already produced a value.
func (e *Export) Computed() bool {
	e.cell.mu.Lock()
	defer e.cell.mu.Unlock()
	return e.cell.done
}

func (e *Export) String() string {
	return fmt.Sprintf("export %s", e.def)
}

type cell struct {
	mu    sync.Mutex
	done  bool
	value any
	get   func() (any, error)
}

func (c *cell) load() (v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.value, nil
	}
	if c.get == nil {
		return nil, fmt.Errorf("export has no getter")
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("export getter panicked: %v", r)
		}
	}()
	v, err = c.get()
	if err != nil {
		return nil, err
	}
	c.value, c.done = v, true
	return v, nil
}
