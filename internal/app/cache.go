package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/partgrid/internal/cache"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"gopkg.in/yaml.v3"
)

// WriteCache discovers the manifests and stores their definitions in the
// cache under the configured catalog name.
func (a *App) WriteCache(ctx context.Context) (cache.Token, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	if a.config.ManifestsPath == "" {
		return "", errors.New("writing the cache requires a manifests path")
	}

	dir, err := a.loadManifests(ctx, nil)
	if err != nil {
		return "", err
	}
	defer dir.Close()

	w := cache.NewWriter()
	tok, err := w.WriteCatalog(ctx, dir, cache.CatalogInfo{
		Identifier: a.config.CatalogName,
		Sources:    dir.Sources(),
	})
	if err != nil {
		return "", err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return "", err
	}
	defer closeStore()
	if err := w.Flush(ctx, store, a.config.CatalogName); err != nil {
		return "", err
	}
	logger.Info("Cache written.", "token", tok, "parts", len(dir.Parts(ctx)), "store", a.config.CacheStore)
	return tok, nil
}

// VerifyCache checks that every cached catalog is fresh and binds to the
// registered Go code. Sources are always checked strictly.
func (a *App) VerifyCache(ctx context.Context) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := cache.Load(ctx, store, a.config.CatalogName,
		cache.WithBinder(a.site), cache.WithValidity(cache.StrictValidity))
	if err != nil {
		return err
	}

	var errs []error
	for _, tok := range r.Tokens() {
		defs, err := r.Definitions(ctx, tok)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.registry.ValidateDefinitions(ctx, defs); err != nil {
			errs = append(errs, fmt.Errorf("catalog %q: %w", tok, err))
			continue
		}
		logger.Info("Cached catalog verified.", "token", tok, "parts", len(defs))
	}
	return errors.Join(errs...)
}

type inspectCatalog struct {
	Token   string          `yaml:"token"`
	Root    bool            `yaml:"root"`
	Sources []inspectSource `yaml:"sources,omitempty"`
	Parts   []inspectPart   `yaml:"parts"`
}

type inspectSource struct {
	Path    string    `yaml:"path"`
	ModTime time.Time `yaml:"mod_time"`
}

type inspectPart struct {
	Type     string          `yaml:"type"`
	Metadata map[string]any  `yaml:"metadata,omitempty"`
	Exports  []inspectExport `yaml:"exports,omitempty"`
	Imports  []inspectImport `yaml:"imports,omitempty"`
}

type inspectExport struct {
	Member   string         `yaml:"member"`
	Contract string         `yaml:"contract"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type inspectImport struct {
	Member           string   `yaml:"member"`
	Contract         string   `yaml:"contract"`
	Cardinality      string   `yaml:"cardinality"`
	Recomposable     bool     `yaml:"recomposable"`
	Prerequisite     bool     `yaml:"prerequisite"`
	RequiredMetadata []string `yaml:"required_metadata,omitempty"`
	TypeIdentity     string   `yaml:"type_identity,omitempty"`
}

// InspectCache renders every cached catalog as YAML. Sources are not
// checked.
func (a *App) InspectCache(ctx context.Context, w io.Writer) error {
	ctx = a.context(ctx)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := cache.Load(ctx, store, a.config.CatalogName)
	if err != nil {
		return err
	}

	var out []inspectCatalog
	for _, tok := range r.Tokens() {
		info, _ := r.Info(tok)
		defs, err := r.Definitions(ctx, tok)
		if err != nil {
			return err
		}
		ic := inspectCatalog{Token: string(tok), Root: tok == r.Root()}
		for _, src := range info.Sources {
			ic.Sources = append(ic.Sources, inspectSource{Path: src.Path, ModTime: src.ModTime.UTC()})
		}
		for _, def := range defs {
			ip, err := inspectDefinition(def)
			if err != nil {
				return fmt.Errorf("catalog %q: %w", tok, err)
			}
			ic.Parts = append(ic.Parts, ip)
		}
		out = append(out, ic)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to render cache: %w", err)
	}
	return enc.Close()
}

func inspectDefinition(def *definition.PartDefinition) (inspectPart, error) {
	md, err := metadataMap(def.Metadata)
	if err != nil {
		return inspectPart{}, fmt.Errorf("part %q: %w", def.TypeName, err)
	}
	ip := inspectPart{Type: def.TypeName, Metadata: md}
	for _, e := range def.Exports {
		emd, err := metadataMap(e.Metadata)
		if err != nil {
			return inspectPart{}, fmt.Errorf("part %q, export %q: %w", def.TypeName, e.Member, err)
		}
		ip.Exports = append(ip.Exports, inspectExport{Member: e.Member, Contract: e.ContractName, Metadata: emd})
	}
	for _, i := range def.Imports {
		ip.Imports = append(ip.Imports, inspectImport{
			Member:           i.Member,
			Contract:         i.ContractName(),
			Cardinality:      i.Cardinality.String(),
			Recomposable:     i.Recomposable,
			Prerequisite:     i.Prerequisite,
			RequiredMetadata: i.Constraint.RequiredMetadata,
			TypeIdentity:     i.Constraint.TypeIdentity,
		})
	}
	return ip, nil
}

func metadataMap(md definition.Metadata) (map[string]any, error) {
	if md.Len() == 0 {
		return nil, nil
	}
	out := make(map[string]any, md.Len())
	for _, k := range md.Keys() {
		v, _, err := md.GoValue(k)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
