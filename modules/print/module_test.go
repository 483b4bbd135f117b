package print_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/engine"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/specialistvlad/partgrid/modules/print"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRendersSections(t *testing.T) {
	ctx := context.Background()
	reg := registry.New()
	(&print.Module{}).Register(reg)
	rp, ok := reg.Lookup(print.TypeName)
	require.True(t, ok)

	c := engine.New(ctx, engine.WithCatalog(catalog.NewStatic(rp.Definition)))
	defer c.Close(ctx)

	b := composition.NewBatch()
	md := definition.MustMetadata(map[string]any{print.TitleKey: "alpha"})
	b.AddExportedValue(print.SectionContract, md, map[string]string{"b": "2", "a": "1"})
	require.True(t, c.Submit(ctx, b).Succeeded())

	report, err := engine.GetExportedValue[*print.Report](ctx, c, print.ReportContract)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, report.Render(&out))
	assert.Equal(t, "[alpha]\n      a = \"1\"\n      b = \"2\"\n", out.String())

	t.Run("sections follow recomposition", func(t *testing.T) {
		b := composition.NewBatch()
		b.AddExportedValue(print.SectionContract, definition.Metadata{}, map[string]string{})
		require.True(t, c.Submit(ctx, b).Succeeded())

		sections := report.Sections()
		require.Len(t, sections, 2)
		assert.Equal(t, print.SectionContract, sections[0].Title, "untitled sections fall back to the member name")
		assert.Equal(t, "alpha", sections[1].Title)
	})
}

func TestReportWithoutSections(t *testing.T) {
	report, err := print.NewReport()
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, report.Render(&out))
	assert.Equal(t, "(no sections)\n", out.String())
}

func TestReportRejectsForeignSection(t *testing.T) {
	ctx := context.Background()
	p, err := print.Definition().NewPart()
	require.NoError(t, err)

	c := engine.New(ctx)
	defer c.Close(ctx)

	b := composition.NewBatch().AddPart(p)
	b.AddExportedValue(print.SectionContract, definition.Metadata{}, 42)
	res := c.Submit(ctx, b)
	require.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err(), composition.ErrImportSet)
}
