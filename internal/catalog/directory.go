package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/manifest"
)

// Source identifies one input a catalog was built from.
type Source struct {
	Path    string
	ModTime time.Time
}

// DirectoryConfig configures a Directory catalog.
type DirectoryConfig struct {
	// Paths are manifest files or directories scanned recursively.
	Paths []string
	// Binder binds loaded definitions to Go factories. Without one the
	// definitions cannot create parts, which is enough for cache writing.
	Binder Binder
	// Debounce coalesces bursts of file events while watching.
	Debounce time.Duration
}

// Directory is a catalog backed by HCL manifests on disk. Refresh rescans
// the paths and reports the structural difference; Watch does so on file
// system events.
type Directory struct {
	cfg     DirectoryConfig
	mu      sync.RWMutex
	defs    []*definition.PartDefinition
	sources []Source
	queries *queryCache
	notifier

	watchMu sync.Mutex
	watch   *watcher
}

var (
	_ Catalog  = (*Directory)(nil)
	_ Notifier = (*Directory)(nil)
)

// NewDirectory loads the manifests under cfg.Paths.
func NewDirectory(ctx context.Context, cfg DirectoryConfig) (*Directory, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	d := &Directory{cfg: cfg, queries: newQueryCache()}
	defs, sources, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	d.defs, d.sources = defs, sources
	ctxlog.FromContext(ctx).Info("Directory catalog loaded.", "parts", len(defs), "files", len(sources))
	return d, nil
}

func (d *Directory) load(ctx context.Context) ([]*definition.PartDefinition, []Source, error) {
	files, err := manifest.Load(ctx, d.cfg.Paths...)
	if err != nil {
		return nil, nil, err
	}
	var defs []*definition.PartDefinition
	sources := make([]Source, 0, len(files))
	for _, f := range files {
		sources = append(sources, Source{Path: f.Path, ModTime: f.ModTime})
		for _, def := range f.Parts {
			if d.cfg.Binder != nil {
				bound, err := d.cfg.Binder.Rehydrate(def)
				if err != nil {
					return nil, nil, fmt.Errorf("binding %s: %w", f.Path, err)
				}
				def = bound
			}
			defs = append(defs, def)
		}
	}
	return defs, sources, nil
}

func (d *Directory) Parts(context.Context) []*definition.PartDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*definition.PartDefinition(nil), d.defs...)
}

func (d *Directory) GetExports(ctx context.Context, c definition.Constraint) []Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queries.getOrCompute(ctx, c, func() []Pair { return match(d.defs, c) })
}

// Sources returns the manifest files and their modification times, sorted
// by path.
func (d *Directory) Sources() []Source {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]Source(nil), d.sources...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Refresh rescans the manifests. Unchanged definitions keep their identity;
// the difference is published to subscribers. A failed rescan leaves the
// catalog untouched.
func (d *Directory) Refresh(ctx context.Context) (ChangeEvent, error) {
	defs, sources, err := d.load(ctx)
	if err != nil {
		return ChangeEvent{}, err
	}
	d.mu.Lock()
	merged, ev := reconcile(d.defs, defs)
	d.defs, d.sources = merged, sources
	d.queries.flush()
	d.mu.Unlock()

	if !ev.Empty() {
		ctxlog.FromContext(ctx).Info("Directory catalog changed.", "added", len(ev.Added), "removed", len(ev.Removed))
		d.publish(ctx, ev)
	}
	return ev, nil
}

// Watch refreshes the catalog whenever a manifest under the configured
// paths changes, until ctx is done or Close is called.
func (d *Directory) Watch(ctx context.Context) error {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watch != nil {
		return fmt.Errorf("directory catalog is already watching")
	}
	w, err := newWatcher(d.cfg.Paths, d.cfg.Debounce)
	if err != nil {
		return err
	}
	changes, err := w.start()
	if err != nil {
		_ = w.stop()
		return err
	}
	d.watch = w

	go func() {
		logger := ctxlog.FromContext(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if _, err := d.Refresh(ctx); err != nil {
					logger.Error("Failed to refresh directory catalog.", "error", err)
				}
			case err, ok := <-w.errors:
				if !ok {
					return
				}
				logger.Warn("Directory watcher reported an error.", "error", err)
			}
		}
	}()
	return nil
}

// Close stops watching. It is safe to call more than once.
func (d *Directory) Close() error {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watch == nil {
		return nil
	}
	err := d.watch.stop()
	d.watch = nil
	return err
}
