package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/part"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func exportsOf(typeName string, contracts ...string) *definition.PartDefinition {
	exports := make([]*definition.ExportDefinition, 0, len(contracts))
	for _, c := range contracts {
		exports = append(exports, definition.NewExportDefinition(c, definition.Metadata{}, ""))
	}
	return definition.NewPartDefinition(typeName, definition.Metadata{}, exports, nil, nil)
}

func sampleDefinitions() []*definition.PartDefinition {
	printer := definition.NewPartDefinition("printer",
		definition.MustMetadata(map[string]any{"Description": "prints reports", "Version": 2}),
		[]*definition.ExportDefinition{
			definition.NewExportDefinition("Report", definition.MustMetadata(map[string]any{"Format": "text", "Tags": []string{"a", "b"}}), "report"),
		},
		[]*definition.ImportDefinition{
			{
				Member:       "sections",
				Constraint:   definition.ToConstraint("Section", "Title", "Order").WithTypeIdentity("string"),
				Cardinality:  definition.ZeroOrMore,
				Recomposable: true,
			},
			{
				Member:       "clock",
				Constraint:   definition.ToConstraint("Clock"),
				Cardinality:  definition.ZeroOrOne,
				Prerequisite: true,
			},
		}, nil)
	return []*definition.PartDefinition{printer, exportsOf("env", "Section")}
}

func writeAndOpen(t *testing.T, defs []*definition.PartDefinition, opts ...Option) (*Reader, []byte) {
	t.Helper()
	w := NewWriter()
	_, err := w.WriteCache(context.Background(), defs, CatalogInfo{Identifier: "main"})
	require.NoError(t, err)
	data, err := w.Bytes()
	require.NoError(t, err)
	r, err := Open(data, opts...)
	require.NoError(t, err)
	return r, data
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	defs := sampleDefinitions()
	r, first := writeAndOpen(t, defs)

	cat, err := r.ReadRootCatalog(ctx)
	require.NoError(t, err)
	got := cat.Parts(ctx)
	if diff := cmp.Diff(defs, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	w := NewWriter()
	_, err = w.WriteCatalog(ctx, cat, CatalogInfo{Identifier: "main"})
	require.NoError(t, err)
	second, err := w.Bytes()
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-caching yields identical bytes")
}

func TestRoundTripProperty(t *testing.T) {
	contracts := rapid.SampledFrom([]string{"A", "B", "C"})
	keys := rapid.SampledFrom([]string{"Name", "Order", "Enabled"})
	metadata := rapid.Custom(func(t *rapid.T) definition.Metadata {
		m := make(map[string]any)
		for _, k := range rapid.SliceOfNDistinct(keys, 0, 3, rapid.ID[string]).Draw(t, "keys") {
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				m[k] = rapid.StringMatching(`[a-z]{0,6}`).Draw(t, "s")
			case 1:
				m[k] = rapid.IntRange(-1000, 1000).Draw(t, "n")
			default:
				m[k] = rapid.Bool().Draw(t, "b")
			}
		}
		return definition.MustMetadata(m)
	})
	partDef := rapid.Custom(func(t *rapid.T) *definition.PartDefinition {
		var exports []*definition.ExportDefinition
		for i := range rapid.IntRange(0, 3).Draw(t, "exports") {
			exports = append(exports, definition.NewExportDefinition(contracts.Draw(t, "contract"), metadata.Draw(t, "md"), fmt.Sprintf("e%d", i)))
		}
		var imports []*definition.ImportDefinition
		for i := range rapid.IntRange(0, 3).Draw(t, "imports") {
			imports = append(imports, &definition.ImportDefinition{
				Member:       fmt.Sprintf("i%d", i),
				Constraint:   definition.ToConstraint(contracts.Draw(t, "contract"), rapid.SliceOfN(keys, 0, 2).Draw(t, "required")...),
				Cardinality:  rapid.SampledFrom([]definition.Cardinality{definition.ExactlyOne, definition.ZeroOrOne, definition.ZeroOrMore}).Draw(t, "card"),
				Recomposable: rapid.Bool().Draw(t, "recomposable"),
				Prerequisite: rapid.Bool().Draw(t, "prerequisite"),
			})
		}
		return definition.NewPartDefinition(rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "type"), metadata.Draw(t, "partmd"), exports, imports, nil)
	})

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		defs := rapid.SliceOfN(partDef, 0, 5).Draw(t, "defs")

		w := NewWriter()
		_, err := w.WriteCache(ctx, defs, CatalogInfo{Identifier: "p"})
		if err != nil {
			t.Fatal(err)
		}
		first, err := w.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		r, err := Open(first)
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.Definitions(ctx, "p")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(defs) {
			t.Fatalf("got %d definitions, want %d", len(got), len(defs))
		}
		for i := range defs {
			if !defs[i].Equal(got[i]) {
				t.Fatalf("definition %d changed:\nwant %s\ngot  %s", i, defs[i], got[i])
			}
		}

		w2 := NewWriter()
		if _, err := w2.WriteCache(ctx, got, CatalogInfo{Identifier: "p"}); err != nil {
			t.Fatal(err)
		}
		second, err := w2.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(second) {
			t.Fatal("re-caching changed the artifact")
		}
	})
}

func TestCachedCatalogQueries(t *testing.T) {
	ctx := context.Background()
	defs := []*definition.PartDefinition{exportsOf("one", "A"), exportsOf("two", "A"), exportsOf("three", "B")}
	before := catalog.NewStatic(defs...)

	r, _ := writeAndOpen(t, defs)
	after, err := r.ReadRootCatalog(ctx)
	require.NoError(t, err)

	require.Len(t, after.GetExports(ctx, definition.ToConstraint("A")), 2)
	assert.Len(t, after.GetExports(ctx, definition.ToConstraint("A")), len(before.GetExports(ctx, definition.ToConstraint("A"))))
	assert.Len(t, after.GetExports(ctx, definition.ToConstraint("B")), 1)
}

func TestMultipleCatalogs(t *testing.T) {
	ctx := context.Background()
	w := NewWriter()
	core, err := w.WriteCache(ctx, []*definition.PartDefinition{exportsOf("core", "A")}, CatalogInfo{Identifier: "core"})
	require.NoError(t, err)
	plugins, err := w.WriteCache(ctx, []*definition.PartDefinition{exportsOf("p1", "B"), exportsOf("p2", "B")}, CatalogInfo{Identifier: "plugins"})
	require.NoError(t, err)

	_, err = w.WriteCache(ctx, nil, CatalogInfo{Identifier: "core"})
	assert.Error(t, err, "duplicate identifier")
	_, err = w.WriteCache(ctx, nil, CatalogInfo{})
	assert.Error(t, err, "empty identifier")
	assert.Error(t, w.SetRoot("nope"))
	require.NoError(t, w.SetRoot(plugins))

	data, err := w.Bytes()
	require.NoError(t, err)
	r, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, []Token{core, plugins}, r.Tokens())
	assert.Equal(t, plugins, r.Root())

	root, err := r.ReadRootCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, root.Parts(ctx), 2)

	_, err = r.ReadCache(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestCorruptArtifacts(t *testing.T) {
	_, data := writeAndOpen(t, sampleDefinitions())

	cases := map[string][]byte{
		"empty":     nil,
		"truncated": data[:headerSize-1],
		"magic":     append([]byte("NOTCACHE"), data[8:]...),
		"version": func() []byte {
			d := append([]byte(nil), data...)
			d[9]++
			return d
		}(),
		"body": func() []byte {
			d := append([]byte(nil), data...)
			d[len(d)-1] ^= 0xff
			return d
		}(),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(input)
			assert.ErrorIs(t, err, ErrCacheCorrupt)
		})
	}
}

func TestValidity(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "parts.hcl")
	require.NoError(t, os.WriteFile(src, []byte(`part "x" {}`), 0o644))
	st, err := os.Stat(src)
	require.NoError(t, err)

	w := NewWriter()
	tok, err := w.WriteCache(ctx, []*definition.PartDefinition{exportsOf("x", "A")}, CatalogInfo{
		Identifier: "main",
		Sources:    []catalog.Source{{Path: src, ModTime: st.ModTime()}},
	})
	require.NoError(t, err)
	data, err := w.Bytes()
	require.NoError(t, err)

	strict, err := Open(data, WithValidity(StrictValidity))
	require.NoError(t, err)
	require.NoError(t, strict.Usable(tok))
	info, ok := strict.Info(tok)
	require.True(t, ok)
	assert.True(t, info.Sources[0].ModTime.Equal(st.ModTime()))

	later := st.ModTime().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, later, later))
	_, err = strict.ReadCache(ctx, tok)
	assert.ErrorIs(t, err, ErrCacheStale)

	lenient, err := Open(data)
	require.NoError(t, err)
	_, err = lenient.ReadCache(ctx, tok)
	assert.NoError(t, err, "the default policy accepts stale entries")

	require.NoError(t, os.Remove(src))
	assert.ErrorIs(t, strict.Usable(tok), ErrCacheStale)
}

func TestUnsetSourceTime(t *testing.T) {
	w := NewWriter()
	tok, err := w.WriteCache(context.Background(), []*definition.PartDefinition{exportsOf("x", "A")}, CatalogInfo{
		Identifier: "main",
		Sources:    []catalog.Source{{Path: "generated.hcl"}},
	})
	require.NoError(t, err)
	data, err := w.Bytes()
	require.NoError(t, err)

	r, err := Open(data)
	require.NoError(t, err)
	info, ok := r.Info(tok)
	require.True(t, ok)
	require.Len(t, info.Sources, 1)
	assert.Equal(t, "generated.hcl", info.Sources[0].Path)
	assert.True(t, info.Sources[0].ModTime.IsZero(), "got %v", info.Sources[0].ModTime)
}

type greeter struct{}

func TestBinderRehydratesFactories(t *testing.T) {
	ctx := context.Background()
	reg := registry.New()
	part.Define("greeter", func() (*greeter, error) { return &greeter{}, nil }).
		Export("Greeting", func(*greeter) (any, error) { return "hello", nil }).
		MustRegister(reg)
	rp, ok := reg.Lookup("greeter")
	require.True(t, ok)

	r, _ := writeAndOpen(t, []*definition.PartDefinition{rp.Definition}, WithBinder(part.NewSite(reg)))
	cat, err := r.ReadRootCatalog(ctx)
	require.NoError(t, err)
	defs := cat.Parts(ctx)
	require.Len(t, defs, 1)
	require.True(t, defs[0].HasFactory())

	p, err := defs[0].CreatePart()
	require.NoError(t, err)
	v, err := p.GetExportedObject(p.ExportDefinitions()[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	unbound, _ := writeAndOpen(t, []*definition.PartDefinition{exportsOf("stranger", "A")}, WithBinder(part.NewSite(reg)))
	_, err = unbound.ReadRootCatalog(ctx)
	assert.ErrorContains(t, err, "not registered")
}

func TestWriterFlush(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	w := NewWriter()
	_, err := w.WriteCache(ctx, sampleDefinitions(), CatalogInfo{Identifier: "main"})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx, store, "main"))
	assert.ErrorIs(t, w.Flush(ctx, store, "main"), ErrWriterFlushed)
	_, err = w.WriteCache(ctx, nil, CatalogInfo{Identifier: "other"})
	assert.ErrorIs(t, err, ErrWriterFlushed)

	r, err := Load(ctx, store, "main")
	require.NoError(t, err)
	assert.Equal(t, Token("main"), r.Root())

	_, err = Load(ctx, store, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}
