package part

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/registry"
)

// Option tunes one export or import declaration. Options that do not apply
// to the declaration they are passed to are ignored.
type Option func(*options)

type options struct {
	member       string
	metadata     map[string]any
	typeIdentity string
	cardinality  definition.Cardinality
	recomposable bool
	prerequisite bool
	required     []string
}

// AsMember overrides the member name, which defaults to the contract name.
func AsMember(name string) Option { return func(o *options) { o.member = name } }

// WithMetadata attaches a metadata entry to an export.
func WithMetadata(key string, v any) Option {
	return func(o *options) {
		if o.metadata == nil {
			o.metadata = make(map[string]any)
		}
		o.metadata[key] = v
	}
}

// WithTypeIdentity records the type identity of an export, or requires it
// on an import.
func WithTypeIdentity(identity string) Option {
	return func(o *options) { o.typeIdentity = identity }
}

// WithCardinality sets an import's cardinality. The default is ExactlyOne.
func WithCardinality(c definition.Cardinality) Option {
	return func(o *options) { o.cardinality = c }
}

// Recomposable lets an import be re-set after the part was composed.
func Recomposable() Option { return func(o *options) { o.recomposable = true } }

// NotPrerequisite lets the part hand out exports before the import is bound.
func NotPrerequisite() Option { return func(o *options) { o.prerequisite = false } }

// RequireMetadata restricts an import to exports carrying the given keys.
func RequireMetadata(keys ...string) Option {
	return func(o *options) { o.required = append(o.required, keys...) }
}

// Builder declares a part type backed by Go objects of type T.
//
//	part.Define("printer", newPrinter).
//		ExportSelf("Report").
//		Import("Section", setSections, part.WithCardinality(definition.ZeroOrMore)).
//		MustRegister(reg)
type Builder[T any] struct {
	typeName string
	newFn    func() (T, error)
	metadata map[string]any
	exports  []*definition.ExportDefinition
	getters  map[string]registry.ExportGetter
	imports  []*definition.ImportDefinition
	setters  map[string]registry.ImportSetter
	errs     []error
}

// Define starts the declaration of a part type.
func Define[T any](typeName string, newFn func() (T, error)) *Builder[T] {
	return &Builder[T]{
		typeName: typeName,
		newFn:    newFn,
		metadata: make(map[string]any),
		getters:  make(map[string]registry.ExportGetter),
		setters:  make(map[string]registry.ImportSetter),
	}
}

// TypeIdentity returns the identity recorded for exports of Go type V.
func TypeIdentity[V any]() string {
	return reflect.TypeFor[V]().String()
}

// Metadata attaches a part-level metadata entry.
func (b *Builder[T]) Metadata(key string, v any) *Builder[T] {
	b.metadata[key] = v
	return b
}

// Export declares an export whose value is produced by get.
func (b *Builder[T]) Export(contractName string, get func(T) (any, error), opts ...Option) *Builder[T] {
	o := applyOptions(contractName, opts)
	if _, dup := b.getters[o.member]; dup {
		b.errs = append(b.errs, fmt.Errorf("export member %q declared twice", o.member))
		return b
	}
	md := make(map[string]any, len(o.metadata)+1)
	for k, v := range o.metadata {
		md[k] = v
	}
	if o.typeIdentity != "" {
		md[definition.TypeIdentityKey] = o.typeIdentity
	}
	meta, err := definition.MetadataFromGo(md)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("export %q: %w", contractName, err))
		return b
	}
	b.exports = append(b.exports, definition.NewExportDefinition(contractName, meta, o.member))
	b.getters[o.member] = func(obj any) (any, error) {
		t, ok := obj.(T)
		if !ok {
			return nil, fmt.Errorf("part object is %T, want %s", obj, TypeIdentity[T]())
		}
		return get(t)
	}
	return b
}

// ExportSelf exports the part object itself, tagged with its Go type
// identity.
func (b *Builder[T]) ExportSelf(contractName string, opts ...Option) *Builder[T] {
	opts = append([]Option{WithTypeIdentity(TypeIdentity[T]())}, opts...)
	return b.Export(contractName, func(t T) (any, error) { return t, nil }, opts...)
}

// Import declares an import whose bound exports are handed to set.
// Imports are prerequisites unless NotPrerequisite is passed.
func (b *Builder[T]) Import(contractName string, set func(T, []*definition.Export) error, opts ...Option) *Builder[T] {
	o := applyOptions(contractName, opts)
	if _, dup := b.setters[o.member]; dup {
		b.errs = append(b.errs, fmt.Errorf("import member %q declared twice", o.member))
		return b
	}
	if !o.cardinality.Valid() {
		b.errs = append(b.errs, fmt.Errorf("import %q: invalid cardinality %s", contractName, o.cardinality))
		return b
	}
	c := definition.ToConstraint(contractName, o.required...)
	if o.typeIdentity != "" {
		c = c.WithTypeIdentity(o.typeIdentity)
	}
	b.imports = append(b.imports, &definition.ImportDefinition{
		Member:       o.member,
		Constraint:   c,
		Cardinality:  o.cardinality,
		Recomposable: o.recomposable,
		Prerequisite: o.prerequisite,
	})
	b.setters[o.member] = func(obj any, exports []*definition.Export) error {
		t, ok := obj.(T)
		if !ok {
			return fmt.Errorf("part object is %T, want %s", obj, TypeIdentity[T]())
		}
		return set(t, exports)
	}
	return b
}

// Build produces the registration for the declared type. Its Definition is
// bound to a factory creating *Instance parts.
func (b *Builder[T]) Build() (*registry.RegisteredPart, error) {
	if b.typeName == "" {
		b.errs = append(b.errs, errors.New("part type name is empty"))
	}
	if b.newFn == nil {
		b.errs = append(b.errs, errors.New("constructor is nil"))
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("defining part %q: %w", b.typeName, errors.Join(b.errs...))
	}
	md, err := definition.MetadataFromGo(b.metadata)
	if err != nil {
		return nil, fmt.Errorf("defining part %q: %w", b.typeName, err)
	}

	newFn := b.newFn
	rp := &registry.RegisteredPart{
		TypeName:   b.typeName,
		New:        func() (any, error) { return newFn() },
		Exports:    b.getters,
		Imports:    b.setters,
		Disposable: implementsDisposal[T](),
	}
	rp.Definition = definition.NewPartDefinition(b.typeName, md, b.exports, b.imports, nil).
		Bind(func(self *definition.PartDefinition) definition.PartFactory {
			return func() (definition.Part, error) {
				return NewInstance(rp, self), nil
			}
		})
	return rp, nil
}

// Register builds the type and adds it to r.
func (b *Builder[T]) Register(r *registry.Registry) error {
	rp, err := b.Build()
	if err != nil {
		return err
	}
	r.RegisterPart(rp)
	return nil
}

// MustRegister is Register for declarations known to be valid.
func (b *Builder[T]) MustRegister(r *registry.Registry) {
	if err := b.Register(r); err != nil {
		panic(err)
	}
}

// NewPart builds the type and creates a single instance of it without a
// registry, for direct use in a batch.
func (b *Builder[T]) NewPart() (*Instance, error) {
	rp, err := b.Build()
	if err != nil {
		return nil, err
	}
	p, err := rp.Definition.CreatePart()
	if err != nil {
		return nil, err
	}
	return p.(*Instance), nil
}

// ImportValue adapts a typed single-value assignment into an import setter.
// No bound export assigns the zero value of V.
func ImportValue[T, V any](assign func(T, V)) func(T, []*definition.Export) error {
	return func(t T, exports []*definition.Export) error {
		var zero V
		switch len(exports) {
		case 0:
			assign(t, zero)
			return nil
		case 1:
			v, err := typedValue[V](exports[0])
			if err != nil {
				return err
			}
			assign(t, v)
			return nil
		default:
			return fmt.Errorf("%w: %d exports bound to a single value", composition.ErrImportNotAssignable, len(exports))
		}
	}
}

// ImportSlice adapts a typed slice assignment into an import setter.
func ImportSlice[T, V any](assign func(T, []V)) func(T, []*definition.Export) error {
	return func(t T, exports []*definition.Export) error {
		values := make([]V, 0, len(exports))
		for _, e := range exports {
			v, err := typedValue[V](e)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		assign(t, values)
		return nil
	}
}

func typedValue[V any](e *definition.Export) (V, error) {
	var zero V
	raw, err := e.Value()
	if err != nil {
		return zero, composition.ExportError(composition.ErrExportRetrieval, "", e.Definition(), err)
	}
	v, ok := raw.(V)
	if !ok {
		return zero, fmt.Errorf("%w: export %s is %T, want %s", composition.ErrImportNotAssignable, e.Definition(), raw, TypeIdentity[V]())
	}
	return v, nil
}

func applyOptions(contractName string, opts []Option) options {
	o := options{member: contractName, prerequisite: true}
	for _, opt := range opts {
		opt(&o)
	}
	o.member = strings.TrimSpace(o.member)
	return o
}

func implementsDisposal[T any]() bool {
	t := reflect.TypeFor[T]()
	return t.Implements(reflect.TypeFor[closer]()) || t.Implements(reflect.TypeFor[disposer]())
}
