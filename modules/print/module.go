package print

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/part"
	"github.com/specialistvlad/partgrid/internal/registry"
)

const (
	// TypeName is the registered part type.
	TypeName = "report"
	// ReportContract is exported by the report part.
	ReportContract = "Report"
	// SectionContract is imported by the report part. Exports of it carry
	// a map[string]string and may set a "title" metadata entry.
	SectionContract = "Section"
	// TitleKey is the export metadata key naming a section.
	TitleKey = "title"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Section is one titled block of key/value pairs.
type Section struct {
	Title  string
	Values map[string]string
}

// Report collects every Section exported in the container. Sections are
// recomposable, so the report follows sections appearing and going away.
type Report struct {
	mu       sync.Mutex
	sections []Section
}

// NewReport creates an empty report.
func NewReport() (*Report, error) { return &Report{}, nil }

func (r *Report) setSections(exports []*definition.Export) error {
	sections := make([]Section, 0, len(exports))
	for _, e := range exports {
		v, err := e.Value()
		if err != nil {
			return err
		}
		values, ok := v.(map[string]string)
		if !ok {
			return fmt.Errorf("section %s is %T, want map[string]string", e.Definition(), v)
		}
		title, ok := e.Definition().Metadata.String(TitleKey)
		if !ok {
			title = e.Definition().Member
		}
		sections = append(sections, Section{Title: title, Values: values})
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Title < sections[j].Title })

	r.mu.Lock()
	r.sections = sections
	r.mu.Unlock()
	return nil
}

// Sections returns the sections currently bound.
func (r *Report) Sections() []Section {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Section(nil), r.sections...)
}

// Render writes the report with keys sorted for consistent output.
func (r *Report) Render(w io.Writer) error {
	sections := r.Sections()
	if len(sections) == 0 {
		_, err := fmt.Fprintln(w, "(no sections)")
		return err
	}
	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "[%s]\n", s.Title); err != nil {
			return err
		}
		if s.Values == nil {
			if _, err := fmt.Fprintln(w, "      (null)"); err != nil {
				return err
			}
			continue
		}
		keys := make([]string, 0, len(s.Values))
		for k := range s.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "      %s = %q\n", k, s.Values[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Definition returns the builder for the report part type.
func Definition() *part.Builder[*Report] {
	return part.Define(TypeName, NewReport).
		Metadata("Description", "Prints every Section in the container.").
		ExportSelf(ReportContract).
		Import(SectionContract, (*Report).setSections,
			part.WithCardinality(definition.ZeroOrMore),
			part.Recomposable(),
			part.NotPrerequisite(),
		)
}

// Register registers the report part type.
func (m *Module) Register(r *registry.Registry) {
	Definition().MustRegister(r)
}
