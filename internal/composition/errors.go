package composition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/partgrid/internal/definition"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrNoExports                 = errors.New("no exports found")
	ErrTooManyExports            = errors.New("too many exports found")
	ErrImportNotAssignable       = errors.New("import not assignable")
	ErrPartActivation            = errors.New("part activation failed")
	ErrImportSet                 = errors.New("import set failed")
	ErrExportRetrieval           = errors.New("export retrieval failed")
	ErrPartCycle                 = errors.New("part cycle detected")
	ErrNonRecomposableImport     = errors.New("recomposition on non-recomposable import")
	ErrPrerequisitesNotSatisfied = errors.New("prerequisite imports not satisfied")
	ErrPartDisposed              = errors.New("part disposed")
	ErrBatchResubmitted          = errors.New("batch already submitted")
	ErrContainerClosed           = errors.New("container closed")
	ErrInvalidBatch              = errors.New("invalid batch")
)

// Error is a composition-level failure naming the part, the import or export
// definition involved and the inner cause.
type Error struct {
	Kind   error
	Part   string
	Import *definition.ImportDefinition
	Export *definition.ExportDefinition
	Cause  error
	Msg    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Part != "" {
		fmt.Fprintf(&sb, ": part %s", e.Part)
	}
	if e.Import != nil {
		fmt.Fprintf(&sb, ", import %s", e.Import)
	}
	if e.Export != nil {
		fmt.Fprintf(&sb, ", export %s", e.Export)
	}
	if e.Msg != "" {
		fmt.Fprintf(&sb, ": %s", e.Msg)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewError builds an *Error. An existing *Error cause of the same kind is
// returned as is, so wrapping layers do not stack.
func NewError(kind error, part string, cause error) *Error {
	var ce *Error
	if errors.As(cause, &ce) && ce.Kind == kind && (ce.Part == part || ce.Part == "") {
		cp := *ce
		cp.Part = part
		return &cp
	}
	return &Error{Kind: kind, Part: part, Cause: cause}
}

// ImportError is shorthand for an error about one import of a part.
func ImportError(kind error, part string, imp *definition.ImportDefinition, cause error) *Error {
	return &Error{Kind: kind, Part: part, Import: imp, Cause: cause}
}

// ExportError is shorthand for an error about one export of a part.
func ExportError(kind error, part string, exp *definition.ExportDefinition, cause error) *Error {
	return &Error{Kind: kind, Part: part, Export: exp, Cause: cause}
}

// AggregateError holds every error collected during one composition pass.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return "composition failed: " + e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("composition failed with %d errors:\n- %s", len(e.Errors), strings.Join(msgs, "\n- "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// Kinds returns the distinct error kinds in order of first appearance.
func (e *AggregateError) Kinds() []error {
	var kinds []error
	seen := make(map[error]bool)
	for _, err := range e.Errors {
		var ce *Error
		if !errors.As(err, &ce) || seen[ce.Kind] {
			continue
		}
		seen[ce.Kind] = true
		kinds = append(kinds, ce.Kind)
	}
	return kinds
}

// ErrorReporter is implemented by parts that accept recomposition errors
// about themselves.
type ErrorReporter interface {
	ReportError(err error)
}
