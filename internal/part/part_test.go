package part

import (
	"errors"
	"testing"

	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	name      string
	satisfied int
	closed    int
	recompErr []error
}

func (g *greeter) OnImportsSatisfied() error { g.satisfied++; return nil }

func (g *greeter) Close() error { g.closed++; return nil }

func (g *greeter) OnRecompositionError(e error) { g.recompErr = append(g.recompErr, e) }

func greeterBuilder() *Builder[*greeter] {
	return Define("greeter", func() (*greeter, error) { return &greeter{}, nil }).
		Metadata("kind", "demo").
		ExportSelf("Greeter").
		Export("Greeting", func(g *greeter) (any, error) { return "hello " + g.name, nil }, WithMetadata("lang", "en")).
		Import("Name", ImportValue(func(g *greeter, v string) { g.name = v }), Recomposable()).
		Import("Tag", ImportValue(func(g *greeter, v string) {}), AsMember("Tags"), WithCardinality(definition.ZeroOrOne), NotPrerequisite())
}

func export(contract string, v any) *definition.Export {
	return definition.ExportValue(definition.NewExportDefinition(contract, definition.Metadata{}, ""), v)
}

func TestBuilder(t *testing.T) {
	rp, err := greeterBuilder().Build()
	require.NoError(t, err)
	assert.True(t, rp.Disposable)

	def := rp.Definition
	require.Len(t, def.Exports, 2)
	assert.Equal(t, "*part.greeter", def.Exports[0].TypeIdentity())
	assert.True(t, def.Exports[1].Metadata.Has("lang"))
	require.Len(t, def.Imports, 2)
	assert.True(t, def.Imports[0].Prerequisite)
	assert.True(t, def.Imports[0].Recomposable)
	assert.Equal(t, "Tags", def.Imports[1].Member)
	assert.False(t, def.Imports[1].Prerequisite)
	assert.Equal(t, definition.ZeroOrOne, def.Imports[1].Cardinality)

	kind, _ := def.Metadata.String("kind")
	assert.Equal(t, "demo", kind)

	t.Run("duplicate members", func(t *testing.T) {
		_, err := Define("dup", func() (*greeter, error) { return &greeter{}, nil }).
			ExportSelf("A").
			ExportSelf("A").
			Build()
		assert.ErrorContains(t, err, `export member "A" declared twice`)
	})

	t.Run("register twice panics", func(t *testing.T) {
		r := registry.New()
		greeterBuilder().MustRegister(r)
		assert.Panics(t, func() { greeterBuilder().MustRegister(r) })
	})
}

func TestInstanceLifecycle(t *testing.T) {
	inst, err := greeterBuilder().NewPart()
	require.NoError(t, err)
	assert.Equal(t, Created, inst.State())
	assert.Nil(t, inst.Object(), "object is created lazily")

	greeting := inst.Definition().Exports[1]
	_, err = inst.GetExportedObject(greeting)
	assert.ErrorIs(t, err, composition.ErrPrerequisitesNotSatisfied)

	nameImp := inst.Definition().Imports[0]
	require.NoError(t, inst.SetImport(nameImp, []*definition.Export{export("Name", "gopher")}))
	assert.Equal(t, Importing, inst.State())

	v, err := inst.GetExportedObject(greeting)
	require.NoError(t, err)
	assert.Equal(t, "hello gopher", v)

	require.NoError(t, inst.OnComposed())
	assert.Equal(t, Composed, inst.State())
	obj := inst.Object().(*greeter)
	assert.Equal(t, 1, obj.satisfied)

	// recomposable import may be re-set
	require.NoError(t, inst.SetImport(nameImp, []*definition.Export{export("Name", "again")}))
	assert.Equal(t, Recomposing, inst.State())
	require.NoError(t, inst.OnComposed())

	// non-recomposable import is frozen
	err = inst.SetImport(inst.Definition().Imports[1], nil)
	assert.ErrorIs(t, err, composition.ErrNonRecomposableImport)

	require.NoError(t, inst.Dispose())
	require.NoError(t, inst.Dispose())
	assert.Equal(t, 1, obj.closed)
	assert.Equal(t, Disposed, inst.State())

	_, err = inst.GetExportedObject(greeting)
	assert.ErrorIs(t, err, composition.ErrPartDisposed)
	assert.ErrorIs(t, inst.SetImport(nameImp, nil), composition.ErrPartDisposed)
}

func TestInstanceResetComposition(t *testing.T) {
	inst, err := greeterBuilder().NewPart()
	require.NoError(t, err)
	nameImp, tagImp := inst.Definition().Imports[0], inst.Definition().Imports[1]
	greeting := inst.Definition().Exports[1]

	require.NoError(t, inst.SetImport(nameImp, []*definition.Export{export("Name", "gopher")}))
	require.NoError(t, inst.SetImport(tagImp, nil))
	require.NoError(t, inst.OnComposed())
	assert.ErrorIs(t, inst.SetImport(tagImp, nil), composition.ErrNonRecomposableImport)

	inst.ResetComposition()
	assert.Equal(t, Created, inst.State())
	_, err = inst.GetExportedObject(greeting)
	assert.ErrorIs(t, err, composition.ErrPrerequisitesNotSatisfied, "bound imports are forgotten")

	require.NoError(t, inst.SetImport(tagImp, nil), "frozen imports can be set again")
	require.NoError(t, inst.SetImport(nameImp, []*definition.Export{export("Name", "again")}))
	require.NoError(t, inst.OnComposed())
	v, err := inst.GetExportedObject(greeting)
	require.NoError(t, err)
	assert.Equal(t, "hello again", v)
	assert.Equal(t, 2, inst.Object().(*greeter).satisfied)

	require.NoError(t, inst.Dispose())
	inst.ResetComposition()
	assert.Equal(t, Disposed, inst.State())
}

func TestInstanceErrors(t *testing.T) {
	t.Run("not assignable", func(t *testing.T) {
		inst, err := greeterBuilder().NewPart()
		require.NoError(t, err)
		err = inst.SetImport(inst.Definition().Imports[0], []*definition.Export{export("Name", 42)})
		assert.ErrorIs(t, err, composition.ErrImportNotAssignable)
		var ce *composition.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "Name", ce.Import.Member)
	})

	t.Run("constructor failure", func(t *testing.T) {
		inst, err := Define("broken", func() (*greeter, error) { return nil, errors.New("no db") }).
			ExportSelf("X").
			NewPart()
		require.NoError(t, err)
		_, err = inst.GetExportedObject(inst.Definition().Exports[0])
		assert.ErrorIs(t, err, composition.ErrPartActivation)
		assert.ErrorContains(t, err, "no db")
	})

	t.Run("getter panic", func(t *testing.T) {
		inst, err := Define("panicky", func() (*greeter, error) { return &greeter{}, nil }).
			Export("X", func(*greeter) (any, error) { panic("bad getter") }).
			NewPart()
		require.NoError(t, err)
		_, err = inst.GetExportedObject(inst.Definition().Exports[0])
		assert.ErrorIs(t, err, composition.ErrExportRetrieval)
		assert.ErrorContains(t, err, "bad getter")
	})

	t.Run("recomposition errors reach the object", func(t *testing.T) {
		inst, err := greeterBuilder().NewPart()
		require.NoError(t, err)
		require.NoError(t, inst.SetImport(inst.Definition().Imports[0], []*definition.Export{export("Name", "x")}))
		inst.ReportError(errors.New("late"))
		assert.Len(t, inst.Errors(), 1)
		assert.Len(t, inst.Object().(*greeter).recompErr, 1)
	})

	t.Run("non disposable object is not closed", func(t *testing.T) {
		type plain struct{}
		inst, err := Define("plain", func() (*plain, error) { return &plain{}, nil }).ExportSelf("P").NewPart()
		require.NoError(t, err)
		assert.False(t, inst.RequiresDisposal())
		assert.NoError(t, inst.Dispose())
	})
}

func TestImportSlice(t *testing.T) {
	var got []int
	set := ImportSlice(func(_ *greeter, vs []int) { got = vs })
	require.NoError(t, set(&greeter{}, []*definition.Export{export("N", 1), export("N", 2)}))
	assert.Equal(t, []int{1, 2}, got)

	err := set(&greeter{}, []*definition.Export{export("N", "two")})
	assert.ErrorIs(t, err, composition.ErrImportNotAssignable)
}

func TestSite(t *testing.T) {
	r := registry.New()
	greeterBuilder().MustRegister(r)
	site := NewSite(r)

	manifestDef := definition.NewPartDefinition("greeter", definition.Metadata{},
		[]*definition.ExportDefinition{definition.NewExportDefinition("Salutation", definition.Metadata{}, "Greeting")},
		[]*definition.ImportDefinition{{Member: "Name", Constraint: definition.ToConstraint("Who"), Prerequisite: true}},
		nil)

	bound, err := site.Rehydrate(manifestDef)
	require.NoError(t, err)
	assert.True(t, bound.Equal(manifestDef))

	p, err := bound.CreatePart()
	require.NoError(t, err)
	inst := p.(*Instance)
	assert.True(t, inst.RequiresDisposal())
	require.NoError(t, inst.SetImport(bound.Imports[0], []*definition.Export{export("Who", "site")}))
	v, err := inst.GetExportedObject(bound.Exports[0])
	require.NoError(t, err)
	assert.Equal(t, "hello site", v)

	_, err = site.Rehydrate(definition.NewPartDefinition("greeter", definition.Metadata{},
		[]*definition.ExportDefinition{definition.NewExportDefinition("X", definition.Metadata{}, "Nope")}, nil, nil))
	assert.ErrorContains(t, err, `export member "Nope" has no getter`)

	_, err = site.RehydrateAll([]*definition.PartDefinition{definition.NewPartDefinition("ghost", definition.Metadata{}, nil, nil, nil)})
	assert.ErrorContains(t, err, `part type "ghost" is not registered`)
}
