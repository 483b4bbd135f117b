package app

import (
	"errors"
	"fmt"
)

// Cache store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

const (
	DefaultCatalogName  = "main"
	DefaultRootContract = "Report"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestsPath string // hcl manifest file or directory
	CachePath     string // cache directory, or database file for sqlite
	CacheStore    string // "file" or "sqlite"
	CatalogName   string // cache key and catalog token
	UseCache      bool   // compose from the cache instead of the manifests
	StrictCache   bool   // refuse cached catalogs whose sources changed
	Watch         bool   // keep composing as manifests change
	RootContract  string

	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	TraceExporter   string
}

// NewConfig fills in defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.CacheStore == "" {
		cfg.CacheStore = StoreFile
	}
	if cfg.CatalogName == "" {
		cfg.CatalogName = DefaultCatalogName
	}
	if cfg.RootContract == "" {
		cfg.RootContract = DefaultRootContract
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = "none"
	}

	var errs []error
	switch cfg.CacheStore {
	case StoreFile, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("invalid cache store %q: must be 'file' or 'sqlite'", cfg.CacheStore))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat))
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel))
	}
	switch cfg.TraceExporter {
	case "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("invalid trace exporter %q: must be 'none' or 'stdout'", cfg.TraceExporter))
	}
	if cfg.UseCache && cfg.CachePath == "" {
		errs = append(errs, errors.New("using the cache requires a cache path"))
	}
	if cfg.Watch && cfg.ManifestsPath == "" {
		errs = append(errs, errors.New("watching requires a manifests path"))
	}
	if cfg.HealthcheckPort < 0 {
		errs = append(errs, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}
