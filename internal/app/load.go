package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/partgrid/internal/cache"
	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
)

// LoadCatalog assembles the catalog the container composes from. With
// UseCache set the cached root catalog is used; a missing or stale cache
// falls back to the manifests when a manifests path is configured. Without
// manifests or cache the code-declared part types are used. The returned
// directory is non-nil when manifests were loaded and must be closed.
func (a *App) LoadCatalog(ctx context.Context) (*catalog.Aggregate, *catalog.Directory, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	if a.config.UseCache {
		cat, err := a.loadCached(ctx)
		if err == nil {
			logger.Info("Catalog loaded from cache.", "catalog", a.config.CatalogName, "parts", len(cat.Parts(ctx)))
			return catalog.NewAggregate(cat), nil, nil
		}
		recoverable := errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrCacheStale)
		if !recoverable || a.config.ManifestsPath == "" {
			return nil, nil, err
		}
		logger.Warn("Cache unusable, loading manifests instead.", "error", err)
	}

	if a.config.ManifestsPath != "" {
		dir, err := a.loadManifests(ctx, a.site)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewAggregate(dir), dir, nil
	}

	defs := a.registry.Definitions()
	logger.Info("No manifests configured, using built-in part types.", "parts", len(defs))
	return catalog.NewAggregate(catalog.NewStatic(defs...)), nil, nil
}

// loadManifests loads the manifests and checks them against the registered
// Go code. A nil binder leaves the definitions data-only.
func (a *App) loadManifests(ctx context.Context, binder catalog.Binder) (*catalog.Directory, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading manifests...", "manifests_path", a.config.ManifestsPath)

	dir, err := catalog.NewDirectory(ctx, catalog.DirectoryConfig{
		Paths:  []string{a.config.ManifestsPath},
		Binder: binder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifests: %w", err)
	}
	if err := a.registry.ValidateDefinitions(ctx, dir.Parts(ctx)); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")
	return dir, nil
}

func (a *App) loadCached(ctx context.Context) (*catalog.Static, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	policy := cache.AcceptAll
	if a.config.StrictCache {
		policy = cache.StrictValidity
	}
	r, err := cache.Load(ctx, store, a.config.CatalogName, cache.WithBinder(a.site), cache.WithValidity(policy))
	if err != nil {
		return nil, err
	}
	return r.ReadRootCatalog(ctx)
}

// openStore opens the configured cache store. The returned function
// releases it.
func (a *App) openStore(ctx context.Context) (cache.Store, func() error, error) {
	if a.config.CachePath == "" {
		return nil, nil, errors.New("no cache path configured")
	}
	switch a.config.CacheStore {
	case StoreSQLite:
		s, err := cache.OpenSQLiteStore(ctx, a.config.CachePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return cache.NewFileStore(a.config.CachePath), func() error { return nil }, nil
	}
}
