package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/composition"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/engine"
)

// Renderer is implemented by exported objects that know how to print
// themselves.
type Renderer interface {
	Render(w io.Writer) error
}

// Run composes the root contract and prints every export of it. With Watch
// set the container stays open and the root contract is printed again
// after each catalog change, until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	cat, dir, err := a.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	defer cat.Close()
	if dir != nil {
		defer dir.Close()
	}

	container := engine.New(ctx, engine.WithCatalog(cat), engine.WithTracer(a.tracing.Tracer()))
	defer func() {
		if err := container.Close(ctx); err != nil {
			logger.Error("Failed to close container.", "error", err)
		}
	}()

	if err := a.printRoot(ctx, container); err != nil {
		return err
	}
	if !a.config.Watch {
		logger.Debug("App.Run method finished.")
		return nil
	}
	if dir == nil {
		logger.Warn("Catalog came from the cache, there are no manifests to watch.")
		return nil
	}

	changed := make(chan struct{}, 1)
	cancel := cat.Subscribe(func(context.Context, catalog.ChangeEvent) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()
	if err := dir.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch manifests: %w", err)
	}

	var srv *http.Server
	if a.config.HealthcheckPort > 0 {
		srv = a.startHealthcheckServer(ctx, a.config.HealthcheckPort, container)
		defer a.closeHealthcheckServer(ctx, srv)
	}

	logger.Info("Watching manifests for changes.", "path", a.config.ManifestsPath)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopped watching.")
			return nil
		case <-changed:
			if err := a.printRoot(ctx, container); err != nil {
				logger.Error("Failed to compose root contract.", "error", err)
			}
		}
	}
}

// printRoot retrieves every export of the root contract and writes it out.
func (a *App) printRoot(ctx context.Context, container *engine.Container) error {
	logger := ctxlog.FromContext(ctx)
	root := a.config.RootContract

	values, err := container.GetExportedObjects(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to compose %q: %w", root, err)
	}
	if len(values) == 0 {
		return &composition.Error{Kind: composition.ErrNoExports, Msg: fmt.Sprintf("nothing exports %q", root)}
	}
	logger.Info("Root contract composed.", "contract", root, "exports", len(values), "parts", len(container.Parts()))

	for _, v := range values {
		if err := a.render(v); err != nil {
			return fmt.Errorf("failed to print %q: %w", root, err)
		}
	}
	return nil
}

func (a *App) render(v any) error {
	switch v := v.(type) {
	case Renderer:
		return v.Render(a.outW)
	case fmt.Stringer:
		_, err := fmt.Fprintln(a.outW, v.String())
		return err
	default:
		_, err := fmt.Fprintf(a.outW, "%v\n", v)
		return err
	}
}
