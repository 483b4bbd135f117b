package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/part"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/specialistvlad/partgrid/internal/tracing"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	site     *part.Site
	tracing  *tracing.Provider
}

// NewApp is the constructor for the main application. Results are written
// to outW and logs to logW. Without modules the built-in ones are
// registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	tp, err := tracing.NewProvider(tracing.Config{
		Exporter:    cfg.TraceExporter,
		Output:      logW,
		SampleRate:  1.0,
		ServiceName: "partgrid",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure tracing: %w", err)
	}

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.RegisterModules(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.TypeNames())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		site:     part.NewSite(reg),
		tracing:  tp,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close flushes pending traces.
func (a *App) Close(ctx context.Context) error {
	return a.tracing.Shutdown(ctx)
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
