package part

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/registry"
)

// State is the lifecycle state of an Instance.
type State int32

const (
	Created State = iota
	Importing
	Composed
	Recomposing
	Disposed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Importing:
		return "importing"
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

// Hooks a part object may implement.
type (
	// ImportsSatisfiedNotifier is called once per composition pass that
	// bound the object's imports.
	ImportsSatisfiedNotifier interface {
		OnImportsSatisfied() error
	}
	// RecompositionErrorHandler receives errors raised while the container
	// recomposed the part on its own.
	RecompositionErrorHandler interface {
		OnRecompositionError(err error)
	}
	closer interface {
		Close() error
	}
	disposer interface {
		Dispose()
	}
)

// Instance is the stock definition.Part: it drives a registered Go object
// through the part lifecycle.
type Instance struct {
	id   string
	rp   *registry.RegisteredPart
	def  *definition.PartDefinition
	disp bool

	mu       sync.Mutex
	state    State
	obj      any
	created  bool
	composed bool
	bound    map[*definition.ImportDefinition]bool
	errs     []error

	disposeOnce sync.Once
}

var (
	_ definition.Part           = (*Instance)(nil)
	_ definition.Described      = (*Instance)(nil)
	_ definition.Resetter       = (*Instance)(nil)
	_ composition.ErrorReporter = (*Instance)(nil)
)

// NewInstance creates a part for rp described by def. The object itself is
// built lazily, on the first import or export access; whether it requires
// disposal is fixed here.
func NewInstance(rp *registry.RegisteredPart, def *definition.PartDefinition) *Instance {
	return &Instance{
		id:    uuid.NewString(),
		rp:    rp,
		def:   def,
		disp:  rp.Disposable,
		bound: make(map[*definition.ImportDefinition]bool),
	}
}

// ID returns the instance identifier assigned at creation.
func (i *Instance) ID() string { return i.id }

// TypeName returns the part type.
func (i *Instance) TypeName() string { return i.def.TypeName }

// Definition returns the definition the instance was created from.
func (i *Instance) Definition() *definition.PartDefinition { return i.def }

// Describe names the instance in errors and logs.
func (i *Instance) Describe() string {
	return fmt.Sprintf("%s#%s", i.def.TypeName, i.id[:8])
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Object returns the underlying Go object, or nil before it was created.
func (i *Instance) Object() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.obj
}

func (i *Instance) ExportDefinitions() []*definition.ExportDefinition {
	return append([]*definition.ExportDefinition(nil), i.def.Exports...)
}

func (i *Instance) ImportDefinitions() []*definition.ImportDefinition {
	return append([]*definition.ImportDefinition(nil), i.def.Imports...)
}

func (i *Instance) RequiresDisposal() bool { return i.disp }

// SetImport hands the bound exports of def to the object's setter.
func (i *Instance) SetImport(def *definition.ImportDefinition, exports []*definition.Export) error {
	imp := i.ownImport(def)
	if imp == nil {
		return composition.ImportError(composition.ErrImportSet, i.Describe(), def, errors.New("import does not belong to this part"))
	}
	setter, ok := i.rp.Imports[imp.Member]
	if !ok {
		return composition.ImportError(composition.ErrImportSet, i.Describe(), imp, fmt.Errorf("no setter registered for member %q", imp.Member))
	}

	i.mu.Lock()
	if i.state == Disposed {
		i.mu.Unlock()
		return composition.ImportError(composition.ErrPartDisposed, i.Describe(), imp, nil)
	}
	if i.composed && !imp.Recomposable {
		i.mu.Unlock()
		return composition.ImportError(composition.ErrNonRecomposableImport, i.Describe(), imp, nil)
	}
	obj, err := i.objectLocked()
	if err != nil {
		i.mu.Unlock()
		return err
	}
	i.mu.Unlock()

	if err := callSetter(setter, obj, exports); err != nil {
		kind := composition.ErrImportSet
		if errors.Is(err, composition.ErrImportNotAssignable) {
			kind = composition.ErrImportNotAssignable
		}
		return composition.ImportError(kind, i.Describe(), imp, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.bound[imp] = true
	switch i.state {
	case Created:
		i.state = Importing
	case Composed:
		i.state = Recomposing
	}
	return nil
}

// GetExportedObject runs the member getter for def. It fails while any
// prerequisite import is still unbound.
func (i *Instance) GetExportedObject(def *definition.ExportDefinition) (any, error) {
	exp := i.ownExport(def)
	if exp == nil {
		return nil, composition.ExportError(composition.ErrExportRetrieval, i.Describe(), def, errors.New("export does not belong to this part"))
	}
	getter, ok := i.rp.Exports[exp.Member]
	if !ok {
		return nil, composition.ExportError(composition.ErrExportRetrieval, i.Describe(), exp, fmt.Errorf("no getter registered for member %q", exp.Member))
	}

	i.mu.Lock()
	if i.state == Disposed {
		i.mu.Unlock()
		return nil, composition.ExportError(composition.ErrPartDisposed, i.Describe(), exp, nil)
	}
	for _, imp := range i.def.Imports {
		if imp.Prerequisite && !i.bound[imp] {
			i.mu.Unlock()
			return nil, composition.ExportError(composition.ErrPrerequisitesNotSatisfied, i.Describe(), exp, fmt.Errorf("import %s is not bound", imp))
		}
	}
	obj, err := i.objectLocked()
	i.mu.Unlock()
	if err != nil {
		return nil, err
	}

	v, err := callGetter(getter, obj)
	if err != nil {
		return nil, composition.ExportError(composition.ErrExportRetrieval, i.Describe(), exp, err)
	}
	return v, nil
}

// OnComposed notifies the object and marks the part Composed. From here on
// non-recomposable imports are frozen.
func (i *Instance) OnComposed() error {
	i.mu.Lock()
	if i.state == Disposed {
		i.mu.Unlock()
		return composition.NewError(composition.ErrPartDisposed, i.Describe(), nil)
	}
	obj, err := i.objectLocked()
	i.mu.Unlock()
	if err != nil {
		return err
	}

	if n, ok := obj.(ImportsSatisfiedNotifier); ok {
		if err := safeCall(n.OnImportsSatisfied); err != nil {
			return composition.NewError(composition.ErrPartActivation, i.Describe(), err)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != Disposed {
		i.state = Composed
		i.composed = true
	}
	return nil
}

// ResetComposition forgets every bound import and unfreezes the part. The
// object keeps whatever its setters assigned. A disposed part stays
// disposed.
func (i *Instance) ResetComposition() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Disposed {
		return
	}
	i.state = Created
	i.composed = false
	clear(i.bound)
}

// Dispose releases the object when the part requires disposal. Only the
// first call has an effect.
func (i *Instance) Dispose() error {
	var err error
	i.disposeOnce.Do(func() {
		i.mu.Lock()
		obj := i.obj
		i.state = Disposed
		i.mu.Unlock()

		if !i.disp || obj == nil {
			return
		}
		switch o := obj.(type) {
		case closer:
			err = safeCall(o.Close)
		case disposer:
			err = safeCall(func() error { o.Dispose(); return nil })
		}
		if err != nil {
			err = fmt.Errorf("disposing %s: %w", i.Describe(), err)
		}
	})
	return err
}

// ReportError records a recomposition error and forwards it to the object.
func (i *Instance) ReportError(err error) {
	i.mu.Lock()
	i.errs = append(i.errs, err)
	obj := i.obj
	i.mu.Unlock()
	if h, ok := obj.(RecompositionErrorHandler); ok {
		h.OnRecompositionError(err)
	}
}

// Errors returns the recomposition errors reported so far.
func (i *Instance) Errors() []error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]error(nil), i.errs...)
}

func (i *Instance) objectLocked() (any, error) {
	if i.created {
		return i.obj, nil
	}
	if i.rp.New == nil {
		return nil, composition.NewError(composition.ErrPartActivation, i.Describe(), errors.New("no constructor registered"))
	}
	var obj any
	err := safeCall(func() error {
		var err error
		obj, err = i.rp.New()
		return err
	})
	if err != nil {
		return nil, composition.NewError(composition.ErrPartActivation, i.Describe(), err)
	}
	i.obj, i.created = obj, true
	return obj, nil
}

func (i *Instance) ownImport(def *definition.ImportDefinition) *definition.ImportDefinition {
	for _, imp := range i.def.Imports {
		if imp == def {
			return imp
		}
	}
	for _, imp := range i.def.Imports {
		if imp.Member == def.Member && imp.Equal(def) {
			return imp
		}
	}
	return nil
}

func (i *Instance) ownExport(def *definition.ExportDefinition) *definition.ExportDefinition {
	for _, exp := range i.def.Exports {
		if exp == def {
			return exp
		}
	}
	for _, exp := range i.def.Exports {
		if exp.Equal(def) {
			return exp
		}
	}
	return nil
}

func callSetter(set registry.ImportSetter, obj any, exports []*definition.Export) error {
	return safeCall(func() error { return set(obj, exports) })
}

func callGetter(get registry.ExportGetter, obj any) (v any, err error) {
	err = safeCall(func() error {
		var err error
		v, err = get(obj)
		return err
	})
	return v, err
}

// safeCall turns a panic in user code into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
