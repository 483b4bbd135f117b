package definition

import (
	"errors"
	"fmt"
	"strings"
)

// ExportDefinition describes one contract a part offers. Member names the
// Go getter that produces the exported value; it is carried for
// rehydration but does not take part in matching or equality.
type ExportDefinition struct {
	ContractName string
	Metadata     Metadata
	Member       string
}

// NewExportDefinition builds an export definition. Member defaults to the
// contract name.
func NewExportDefinition(contractName string, md Metadata, member string) *ExportDefinition {
	if member == "" {
		member = contractName
	}
	return &ExportDefinition{ContractName: contractName, Metadata: md, Member: member}
}

// TypeIdentity returns the value of the reserved ExportTypeIdentity key.
func (e *ExportDefinition) TypeIdentity() string {
	s, _ := e.Metadata.String(TypeIdentityKey)
	return s
}

// Equal is structural: contract name and metadata.
func (e *ExportDefinition) Equal(o *ExportDefinition) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.ContractName == o.ContractName && e.Metadata.Equal(o.Metadata)
}

func (e *ExportDefinition) String() string {
	if e.Metadata.Len() == 0 {
		return e.ContractName
	}
	return e.ContractName + " " + e.Metadata.GoString()
}

// ImportDefinition describes one dependency of a part.
//
// Prerequisite imports must be bound before the part hands out any exported
// object. Recomposable imports may be re-set after the part has been
// composed when the matching export set changes.
type ImportDefinition struct {
	Member       string
	Constraint   Constraint
	Cardinality  Cardinality
	Recomposable bool
	Prerequisite bool
}

// ContractName is shorthand for Constraint.ContractName.
func (i *ImportDefinition) ContractName() string { return i.Constraint.ContractName }

// Matches reports whether e satisfies the import's constraint.
func (i *ImportDefinition) Matches(e *ExportDefinition) bool { return i.Constraint.Matches(e) }

// Equal is structural over every field except Member.
func (i *ImportDefinition) Equal(o *ImportDefinition) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.Constraint.Equal(o.Constraint) &&
		i.Cardinality == o.Cardinality &&
		i.Recomposable == o.Recomposable &&
		i.Prerequisite == o.Prerequisite
}

func (i *ImportDefinition) String() string {
	var flags []string
	if i.Recomposable {
		flags = append(flags, "recomposable")
	}
	if !i.Prerequisite {
		flags = append(flags, "non-prerequisite")
	}
	s := fmt.Sprintf("%s (%s)", i.Constraint, i.Cardinality)
	if len(flags) > 0 {
		s += " [" + strings.Join(flags, ", ") + "]"
	}
	return s
}

// PartFactory creates a new, not yet activated part.
type PartFactory func() (Part, error)

// ErrNoFactory is returned by CreatePart on definitions that were loaded
// without a live factory (for example a cache read without a site).
var ErrNoFactory = errors.New("part definition has no factory")

// PartDefinition is the stateless description of a part type. It never
// activates itself; CreatePart hands out fresh Part instances.
type PartDefinition struct {
	TypeName string
	Metadata Metadata
	Exports  []*ExportDefinition
	Imports  []*ImportDefinition

	factory PartFactory
}

// NewPartDefinition copies the given export and import definitions so the
// new part definition owns them exclusively.
func NewPartDefinition(typeName string, md Metadata, exports []*ExportDefinition, imports []*ImportDefinition, factory PartFactory) *PartDefinition {
	d := &PartDefinition{
		TypeName: typeName,
		Metadata: md,
		Exports:  make([]*ExportDefinition, 0, len(exports)),
		Imports:  make([]*ImportDefinition, 0, len(imports)),
		factory:  factory,
	}
	for _, e := range exports {
		cp := *e
		d.Exports = append(d.Exports, &cp)
	}
	for _, i := range imports {
		cp := *i
		cp.Constraint = cp.Constraint.WithTypeIdentity(i.Constraint.TypeIdentity)
		d.Imports = append(d.Imports, &cp)
	}
	return d
}

// Bind returns a copy of d whose factory is produced by bind. The closure
// receives the copy, so factories can refer to the definition that owns
// them.
func (d *PartDefinition) Bind(bind func(*PartDefinition) PartFactory) *PartDefinition {
	cp := NewPartDefinition(d.TypeName, d.Metadata, d.Exports, d.Imports, nil)
	if bind != nil {
		cp.factory = bind(cp)
	}
	return cp
}

// HasFactory reports whether CreatePart can succeed.
func (d *PartDefinition) HasFactory() bool { return d.factory != nil }

// CreatePart instantiates a new part.
func (d *PartDefinition) CreatePart() (Part, error) {
	if d.factory == nil {
		return nil, fmt.Errorf("%s: %w", d.TypeName, ErrNoFactory)
	}
	p, err := d.factory()
	if err != nil {
		return nil, fmt.Errorf("creating part %s: %w", d.TypeName, err)
	}
	return p, nil
}

// ExportsMatching returns the export definitions of d satisfying c.
func (d *PartDefinition) ExportsMatching(c Constraint) []*ExportDefinition {
	var out []*ExportDefinition
	for _, e := range d.Exports {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Equal compares type name, metadata, exports and imports structurally and
// in order. Factories are not compared.
func (d *PartDefinition) Equal(o *PartDefinition) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.TypeName != o.TypeName || !d.Metadata.Equal(o.Metadata) {
		return false
	}
	if len(d.Exports) != len(o.Exports) || len(d.Imports) != len(o.Imports) {
		return false
	}
	for i := range d.Exports {
		if !d.Exports[i].Equal(o.Exports[i]) || d.Exports[i].Member != o.Exports[i].Member {
			return false
		}
	}
	for i := range d.Imports {
		if !d.Imports[i].Equal(o.Imports[i]) || d.Imports[i].Member != o.Imports[i].Member {
			return false
		}
	}
	return true
}

func (d *PartDefinition) String() string {
	contracts := make([]string, 0, len(d.Exports))
	for _, e := range d.Exports {
		contracts = append(contracts, e.ContractName)
	}
	return fmt.Sprintf("%s(exports: %s)", d.TypeName, strings.Join(contracts, ", "))
}
