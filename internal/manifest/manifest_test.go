package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	files, err := Load(context.Background(), "testdata")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join("testdata", "report.hcl"), files[0].Path)
	assert.False(t, files[0].ModTime.IsZero())

	require.Len(t, files[0].Parts, 1)
	def := files[0].Parts[0]
	assert.Equal(t, "report_printer", def.TypeName)
	desc, ok := def.Metadata.String(DescriptionKey)
	require.True(t, ok)
	assert.Equal(t, "Prints every section it is given.", desc)
	order, _, err := def.Metadata.GoValue("order")
	require.NoError(t, err)
	assert.Equal(t, int64(10), order)

	require.Len(t, def.Exports, 1)
	assert.Equal(t, "Report", def.Exports[0].ContractName)
	assert.Equal(t, "Report", def.Exports[0].Member)
	assert.Equal(t, "*print.ReportPrinter", def.Exports[0].TypeIdentity())

	require.Len(t, def.Imports, 1)
	imp := def.Imports[0]
	assert.Equal(t, "Sections", imp.Member)
	assert.Equal(t, "Section", imp.ContractName())
	assert.Equal(t, definition.ZeroOrMore, imp.Cardinality)
	assert.True(t, imp.Recomposable)
	assert.False(t, imp.Prerequisite)
	assert.Equal(t, []string{"Title"}, imp.Constraint.RequiredMetadata)
	assert.False(t, def.HasFactory())
}

func TestLoadMissingPath(t *testing.T) {
	files, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		defs, err := Parse("inline.hcl", []byte(`
part "a" {
  import "Foo" {}
}
part "b" {
  export "Foo" {
    metadata = { Name = "b" }
  }
}
`))
		require.NoError(t, err)
		require.Len(t, defs, 2)
		imp := defs[0].Imports[0]
		assert.Equal(t, definition.ExactlyOne, imp.Cardinality)
		assert.True(t, imp.Prerequisite)
		assert.False(t, imp.Recomposable)
		assert.True(t, imp.Matches(defs[1].Exports[0]))
	})

	t.Run("errors", func(t *testing.T) {
		cases := map[string]string{
			"bad cardinality": "part \"a\" {\n  import \"X\" {\n    cardinality = \"many\"\n  }\n}\n",
			"duplicate":       "part \"a\" {\n  export \"X\" {}\n  export \"X\" {}\n}\n",
			"metadata type":   `part "a" { metadata = "nope" }`,
			"syntax":          `part "a" {`,
			"unknown attr":    `part "a" { colour = "red" }`,
		}
		for name, src := range cases {
			_, err := Parse(name+".hcl", []byte(src))
			assert.Error(t, err, name)
		}
	})

	t.Run("parse file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "one.hcl")
		require.NoError(t, os.WriteFile(path, []byte("part \"x\" {\n  export \"X\" {}\n}\n"), 0o644))
		f, err := ParseFile(path)
		require.NoError(t, err)
		assert.Len(t, f.Parts, 1)
	})
}
