package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/specialistvlad/partgrid/internal/cache"

// Token identifies one catalog inside an artifact.
type Token string

// CatalogInfo describes where a cached catalog came from.
type CatalogInfo struct {
	// Identifier is the caller's name for the catalog and becomes its token.
	Identifier string
	// Sources are the inputs the definitions were discovered from. A
	// validity policy compares them against the current files.
	Sources []catalog.Source
}

// ErrWriterFlushed is returned by a Writer used after Flush.
var ErrWriterFlushed = errors.New("cache writer already flushed")

// Writer collects catalogs into one artifact. A Writer is not safe for
// concurrent use; call WriteCache sequentially and Flush once.
type Writer struct {
	art     artifact
	tokens  map[Token]bool
	flushed bool
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{tokens: make(map[Token]bool)}
}

// WriteCache records defs under info.Identifier and returns its token. The
// first catalog written becomes the root unless SetRoot says otherwise.
func (w *Writer) WriteCache(ctx context.Context, defs []*definition.PartDefinition, info CatalogInfo) (Token, error) {
	if w.flushed {
		return "", ErrWriterFlushed
	}
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.WriteCache")
	defer span.End()

	tok := Token(info.Identifier)
	if tok == "" {
		return "", fmt.Errorf("catalog identifier is empty")
	}
	if w.tokens[tok] {
		return "", fmt.Errorf("catalog %q already written", tok)
	}
	rec := catalogRecord{Token: string(tok), Sources: encodeSources(info.Sources)}
	for _, def := range defs {
		pr, err := encodePart(def)
		if err != nil {
			return "", fmt.Errorf("caching catalog %q: %w", tok, err)
		}
		rec.Parts = append(rec.Parts, pr)
	}
	w.art.Catalogs = append(w.art.Catalogs, rec)
	w.tokens[tok] = true
	if w.art.Root == "" {
		w.art.Root = string(tok)
	}
	span.SetAttributes(attribute.String("cache.token", string(tok)), attribute.Int("cache.parts", len(defs)))
	ctxlog.FromContext(ctx).Debug("Cached catalog.", "token", tok, "parts", len(defs))
	return tok, nil
}

// WriteCatalog is WriteCache for the current parts of cat.
func (w *Writer) WriteCatalog(ctx context.Context, cat catalog.Catalog, info CatalogInfo) (Token, error) {
	return w.WriteCache(ctx, cat.Parts(ctx), info)
}

// SetRoot marks tok as the root catalog.
func (w *Writer) SetRoot(tok Token) error {
	if !w.tokens[tok] {
		return fmt.Errorf("catalog %q was not written", tok)
	}
	w.art.Root = string(tok)
	return nil
}

// Bytes encodes the artifact written so far. Equal inputs give equal bytes.
func (w *Writer) Bytes() ([]byte, error) {
	return encode(&w.art)
}

// Flush stores the artifact under key. The writer cannot be used
// afterwards.
func (w *Writer) Flush(ctx context.Context, store Store, key string) error {
	if w.flushed {
		return ErrWriterFlushed
	}
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("storing cache %q: %w", key, err)
	}
	w.flushed = true
	ctxlog.FromContext(ctx).Info("Cache written.", "key", key, "catalogs", len(w.art.Catalogs), "bytes", len(data))
	return nil
}
