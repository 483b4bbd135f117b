package definition

// Part is an activatable instance created from a PartDefinition (or supplied
// directly by a caller).
//
// Lifecycle: Created -> Importing -> Composed -> (Recomposing -> Composed)*
// -> Disposed. Implementations must reject SetImport for a non-recomposable
// import once the part has been composed, refuse GetExportedObject until
// every prerequisite import is bound, and fail every call after disposal.
type Part interface {
	// ExportDefinitions may be computed lazily but must be stable.
	ExportDefinitions() []*ExportDefinition
	ImportDefinitions() []*ImportDefinition

	GetExportedObject(def *ExportDefinition) (any, error)
	SetImport(def *ImportDefinition, exports []*Export) error

	// OnComposed is called once per composition pass that bound the part.
	OnComposed() error

	// RequiresDisposal is fixed when the part is created.
	RequiresDisposal() bool
	// Dispose is idempotent.
	Dispose() error
}

// Described is implemented by parts that can name themselves in errors and
// logs.
type Described interface {
	Describe() string
}

// Resetter is implemented by parts that can return to their unbound state.
// When a composition pass fails after OnComposed already ran on some of its
// parts, the container resets the parts supplied by the caller so they can
// be submitted again.
type Resetter interface {
	ResetComposition()
}
