package cache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownToken is returned for tokens not present in the artifact.
var ErrUnknownToken = errors.New("unknown cache token")

// ValidityPolicy decides whether a cached catalog may be used. It returns
// nil or an error wrapping ErrCacheStale.
type ValidityPolicy interface {
	Check(info CatalogInfo) error
}

// ValidityFunc adapts a function to ValidityPolicy.
type ValidityFunc func(info CatalogInfo) error

func (f ValidityFunc) Check(info CatalogInfo) error { return f(info) }

// AcceptAll uses every entry regardless of its sources.
var AcceptAll ValidityPolicy = ValidityFunc(func(CatalogInfo) error { return nil })

// StrictValidity refuses entries whose sources are gone or carry a
// different modification time than when they were cached.
var StrictValidity ValidityPolicy = ValidityFunc(func(info CatalogInfo) error {
	for _, src := range info.Sources {
		st, err := os.Stat(src.Path)
		if err != nil {
			return fmt.Errorf("%w: source %s: %v", ErrCacheStale, src.Path, err)
		}
		if !st.ModTime().Equal(src.ModTime) {
			return fmt.Errorf("%w: source %s modified at %s, cached at %s",
				ErrCacheStale, src.Path, st.ModTime().UTC(), src.ModTime.UTC())
		}
	}
	return nil
})

// Option configures a Reader.
type Option func(*Reader)

// WithBinder rehydrates every definition read, giving it a live factory.
func WithBinder(b catalog.Binder) Option {
	return func(r *Reader) { r.binder = b }
}

// WithValidity sets the policy applied before a catalog is read.
func WithValidity(p ValidityPolicy) Option {
	return func(r *Reader) { r.policy = p }
}

// Reader reconstructs catalogs from an artifact. The artifact is verified
// once when the reader is opened; a Reader is safe for concurrent use.
type Reader struct {
	art    *artifact
	index  map[Token]int
	binder catalog.Binder
	policy ValidityPolicy
}

// Open verifies data and returns a reader for it.
func Open(data []byte, opts ...Option) (*Reader, error) {
	art, err := decode(data)
	if err != nil {
		return nil, err
	}
	r := &Reader{art: art, index: make(map[Token]int, len(art.Catalogs)), policy: AcceptAll}
	for i, c := range art.Catalogs {
		if _, dup := r.index[Token(c.Token)]; dup {
			return nil, fmt.Errorf("%w: catalog %q appears twice", ErrCacheCorrupt, c.Token)
		}
		r.index[Token(c.Token)] = i
	}
	if _, ok := r.index[Token(art.Root)]; art.Root != "" && !ok {
		return nil, fmt.Errorf("%w: root catalog %q is missing", ErrCacheCorrupt, art.Root)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Load reads the artifact stored under key and opens it.
func Load(ctx context.Context, store Store, key string, opts ...Option) (*Reader, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading cache %q: %w", key, err)
	}
	r, err := Open(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading cache %q: %w", key, err)
	}
	ctxlog.FromContext(ctx).Debug("Cache loaded.", "key", key, "catalogs", len(r.art.Catalogs))
	return r, nil
}

// Tokens returns the catalogs in the order they were written.
func (r *Reader) Tokens() []Token {
	out := make([]Token, 0, len(r.art.Catalogs))
	for _, c := range r.art.Catalogs {
		out = append(out, Token(c.Token))
	}
	return out
}

// Root returns the root token, or "" for an empty artifact.
func (r *Reader) Root() Token { return Token(r.art.Root) }

// Info returns the recorded description of tok.
func (r *Reader) Info(tok Token) (CatalogInfo, bool) {
	i, ok := r.index[tok]
	if !ok {
		return CatalogInfo{}, false
	}
	c := r.art.Catalogs[i]
	return CatalogInfo{Identifier: c.Token, Sources: decodeSources(c.Sources)}, true
}

// Usable applies the validity policy to tok.
func (r *Reader) Usable(tok Token) error {
	info, ok := r.Info(tok)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownToken, tok)
	}
	return r.policy.Check(info)
}

// ReadRootCatalog reads the root catalog.
func (r *Reader) ReadRootCatalog(ctx context.Context) (*catalog.Static, error) {
	if r.art.Root == "" {
		return nil, fmt.Errorf("%w: artifact has no root catalog", ErrUnknownToken)
	}
	return r.ReadCache(ctx, Token(r.art.Root))
}

// ReadCache reconstructs the catalog stored under tok.
func (r *Reader) ReadCache(ctx context.Context, tok Token) (*catalog.Static, error) {
	defs, err := r.Definitions(ctx, tok)
	if err != nil {
		return nil, err
	}
	return catalog.NewStatic(defs...), nil
}

// Definitions reconstructs the part definitions stored under tok, bound
// through the reader's binder when one is set.
func (r *Reader) Definitions(ctx context.Context, tok Token) ([]*definition.PartDefinition, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.ReadCache")
	defer span.End()
	span.SetAttributes(attribute.String("cache.token", string(tok)))

	if err := r.Usable(tok); err != nil {
		return nil, err
	}
	c := r.art.Catalogs[r.index[tok]]
	defs := make([]*definition.PartDefinition, 0, len(c.Parts))
	for _, pr := range c.Parts {
		def, err := decodePart(pr)
		if err != nil {
			return nil, fmt.Errorf("%w: catalog %q: %v", ErrCacheCorrupt, tok, err)
		}
		if r.binder != nil {
			bound, err := r.binder.Rehydrate(def)
			if err != nil {
				return nil, fmt.Errorf("rehydrating catalog %q: %w", tok, err)
			}
			def = bound
		}
		defs = append(defs, def)
	}
	ctxlog.FromContext(ctx).Debug("Read cached catalog.", "token", tok, "parts", len(defs))
	return defs, nil
}
