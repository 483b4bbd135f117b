package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/partgrid/internal/app"
	"github.com/specialistvlad/partgrid/internal/cache"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/part"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/specialistvlad/partgrid/modules/env_vars"
	"github.com/specialistvlad/partgrid/modules/print"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportManifest = `
part "report" {
  description = "Prints every Section in the container."
  export "Report" {
    type_identity = "*print.Report"
  }
  import "Section" {
    cardinality  = "zero_or_more"
    recomposable = true
    prerequisite = false
  }
}

part "env" {
  export "Section" {
    metadata = {
      title = "environment"
    }
  }
}
`

const extraManifest = `
part "extra" {
  export "Section" {
    metadata = {
      title = "extra"
    }
  }
}
`

type extra struct{}

type extraModule struct{}

func (extraModule) Register(r *registry.Registry) {
	part.Define("extra", func() (*extra, error) { return &extra{}, nil }).
		Export("Section", func(*extra) (any, error) { return map[string]string{"answer": "42"}, nil },
			part.WithMetadata("title", "extra")).
		MustRegister(r)
}

func testModules() []registry.Module {
	return []registry.Module{&env_vars.Module{}, &print.Module{}, extraModule{}}
}

func manifestsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	app.WriteManifest(t, dir, "report.hcl", reportManifest)
	return dir
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestNewConfig(t *testing.T) {
	cfg, err := app.NewConfig(app.Config{})
	require.NoError(t, err)
	assert.Equal(t, app.StoreFile, cfg.CacheStore)
	assert.Equal(t, app.DefaultCatalogName, cfg.CatalogName)
	assert.Equal(t, app.DefaultRootContract, cfg.RootContract)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "none", cfg.TraceExporter)

	_, err = app.NewConfig(app.Config{
		CacheStore:    "redis",
		LogLevel:      "loud",
		LogFormat:     "xml",
		TraceExporter: "jaeger",
		UseCache:      true,
		Watch:         true,
	})
	require.Error(t, err)
	for _, want := range []string{"cache store", "log level", "log format", "trace exporter", "cache path", "manifests path"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestRunWithBuiltinParts(t *testing.T) {
	t.Setenv("PARTGRID_APP_TEST", "yes")
	a, out, logs := app.SetupAppTest(t, app.Config{})

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "[environment]")
	assert.Contains(t, out.String(), `PARTGRID_APP_TEST = "yes"`)
	assert.Contains(t, logs.String(), "No manifests configured, using built-in part types.")
	assert.Contains(t, logs.String(), "Root contract composed.")
}

func TestRunWithManifests(t *testing.T) {
	t.Setenv("PARTGRID_APP_TEST", "yes")
	a, out, _ := app.SetupAppTest(t, app.Config{ManifestsPath: manifestsDir(t)}, testModules()...)

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), `PARTGRID_APP_TEST = "yes"`)
	assert.NotContains(t, out.String(), "[extra]", "only manifest-declared parts are composed")
}

func TestRunErrors(t *testing.T) {
	t.Run("missing root contract", func(t *testing.T) {
		a, _, _ := app.SetupAppTest(t, app.Config{RootContract: "Nope"})
		err := a.Run(context.Background())
		assert.ErrorIs(t, err, composition.ErrNoExports)
	})

	t.Run("unregistered part type", func(t *testing.T) {
		dir := manifestsDir(t)
		app.WriteManifest(t, dir, "ghost.hcl", `part "ghost" {}`)
		a, _, _ := app.SetupAppTest(t, app.Config{ManifestsPath: dir})
		err := a.Run(context.Background())
		assert.ErrorContains(t, err, `"ghost" is not registered`)
	})

	t.Run("manifest missing a setter", func(t *testing.T) {
		dir := t.TempDir()
		app.WriteManifest(t, dir, "report.hcl", `part "report" {
  export "Report" {}
}`)
		a, _, _ := app.SetupAppTest(t, app.Config{ManifestsPath: dir})
		err := a.Run(context.Background())
		assert.ErrorContains(t, err, "setter for import 'Section' which is not declared in manifest")
	})
}

func TestCache(t *testing.T) {
	for _, store := range []string{app.StoreFile, app.StoreSQLite} {
		t.Run(store, func(t *testing.T) {
			t.Setenv("PARTGRID_APP_TEST", "cached")
			dir := manifestsDir(t)
			cachePath := filepath.Join(t.TempDir(), "cache")
			if store == app.StoreSQLite {
				cachePath += ".db"
			}
			base := app.Config{ManifestsPath: dir, CachePath: cachePath, CacheStore: store}

			writer, _, logs := app.SetupAppTest(t, base)
			tok, err := writer.WriteCache(context.Background())
			require.NoError(t, err)
			assert.Equal(t, cache.Token(app.DefaultCatalogName), tok)
			assert.Contains(t, logs.String(), "Cache written.")

			require.NoError(t, writer.VerifyCache(context.Background()))

			var yamlOut bytes.Buffer
			require.NoError(t, writer.InspectCache(context.Background(), &yamlOut))
			for _, want := range []string{
				"token: main",
				"root: true",
				"type: report",
				"cardinality: zero_or_more",
				"title: environment",
				"report.hcl",
			} {
				assert.Contains(t, yamlOut.String(), want)
			}

			cached := base
			cached.ManifestsPath = ""
			cached.UseCache = true
			reader, out, logs := app.SetupAppTest(t, cached)
			require.NoError(t, reader.Run(context.Background()))
			assert.Contains(t, out.String(), `PARTGRID_APP_TEST = "cached"`)
			assert.Contains(t, logs.String(), "Catalog loaded from cache.")

			later := time.Now().Add(time.Hour)
			require.NoError(t, os.Chtimes(filepath.Join(dir, "report.hcl"), later, later))

			err = writer.VerifyCache(context.Background())
			assert.ErrorIs(t, err, cache.ErrCacheStale)

			strict := cached
			strict.StrictCache = true
			stale, _, _ := app.SetupAppTest(t, strict)
			assert.ErrorIs(t, stale.Run(context.Background()), cache.ErrCacheStale)

			strict.ManifestsPath = dir
			fallback, out, logs := app.SetupAppTest(t, strict)
			require.NoError(t, fallback.Run(context.Background()))
			assert.Contains(t, logs.String(), "Cache unusable, loading manifests instead.")
			assert.Contains(t, out.String(), "[environment]")
		})
	}
}

func TestCacheMissing(t *testing.T) {
	cfg := app.Config{CachePath: t.TempDir(), UseCache: true}
	a, _, _ := app.SetupAppTest(t, cfg)
	assert.ErrorIs(t, a.Run(context.Background()), cache.ErrNotFound)

	cfg.ManifestsPath = manifestsDir(t)
	a, out, logs := app.SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "Cache unusable, loading manifests instead.")
	assert.Contains(t, out.String(), "[environment]")
}

func TestWriteCacheRequiresManifests(t *testing.T) {
	a, _, _ := app.SetupAppTest(t, app.Config{CachePath: t.TempDir()})
	_, err := a.WriteCache(context.Background())
	assert.ErrorContains(t, err, "requires a manifests path")
}

func TestWatchRecomposesOnManifestChange(t *testing.T) {
	dir := manifestsDir(t)
	a, out, logs := app.SetupAppTest(t, app.Config{ManifestsPath: dir, Watch: true}, testModules()...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Watching manifests for changes.")
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, out.String(), "[extra]")

	app.WriteManifest(t, dir, "extra.hcl", extraManifest)
	require.Eventually(t, func() bool {
		return containsAll(out.String(), "[extra]", `answer = "42"`)
	}, 5*time.Second, 20*time.Millisecond, "the report is recomposed with the new section")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunExportsTraces(t *testing.T) {
	a, _, logs := app.SetupAppTest(t, app.Config{TraceExporter: "stdout"})
	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	assert.Contains(t, logs.String(), "engine.GetExports")
}
