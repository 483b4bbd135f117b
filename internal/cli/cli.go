package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/partgrid/internal/app"
	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read as configuration.
const EnvPrefix = "PARTGRID"

var version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Execute runs the command line in args. Results are written to outW, logs
// and diagnostics to errW. Usage mistakes are returned as *ExitError with
// code 2.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, modules ...registry.Module) error {
	root := NewRootCommand(outW, errW, modules...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the partgrid command tree with its own viper
// instance. Configuration is read, in increasing precedence, from defaults,
// the config file, PARTGRID_* environment variables and flags.
func NewRootCommand(outW, errW io.Writer, modules ...registry.Module) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "partgrid",
		Short: "Compose parts declared in HCL manifests",
		Long: `partgrid discovers part definitions in HCL manifests, matches their
exports to imports by contract and composes them into a running container.
Discovered definitions can be cached so later runs skip discovery.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")
	pf.StringP("manifests", "m", "", "Path to a manifest file or a directory of .hcl manifests.")
	pf.String("cache-path", "", "Cache directory, or database file for the sqlite store.")
	pf.String("cache-store", app.StoreFile, "Cache store. Options: 'file' or 'sqlite'.")
	pf.String("catalog", app.DefaultCatalogName, "Name of the cached catalog.")
	pf.Bool("strict-cache", false, "Refuse cached catalogs whose manifests changed.")
	pf.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.String("trace-exporter", "none", "Trace exporter. Options: 'none' or 'stdout'.")
	bindFlags(v, pf)

	root.AddCommand(newComposeCommand(v, outW, errW, modules), newCacheCommand(v, outW, errW, modules))
	return root
}

func newComposeCommand(v *viper.Viper, outW, errW io.Writer, modules []registry.Module) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose [MANIFESTS_PATH]",
		Short: "Compose the root contract and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(v, args)
			if err != nil {
				return err
			}
			a, err := app.NewApp(outW, errW, cfg, modules...)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))
			return a.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("root", app.DefaultRootContract, "Contract to compose and print.")
	f.Bool("use-cache", false, "Compose from the cache instead of the manifests.")
	f.Bool("watch", false, "Keep running and recompose when manifests change.")
	f.Int("healthcheck-port", 0, "Port for the HTTP health check server while watching. 0 is disabled.")
	bindFlags(v, f)
	return cmd
}

func newCacheCommand(v *viper.Viper, outW, errW io.Writer, modules []registry.Module) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Write, inspect and verify the definition cache",
	}

	write := &cobra.Command{
		Use:   "write [MANIFESTS_PATH]",
		Short: "Discover the manifests and cache their definitions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v, args, outW, errW, modules)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))
			tok, err := a.WriteCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(outW, "Cached catalog %q.\n", tok)
			return nil
		},
	}

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print the cached catalogs as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v, args, outW, errW, modules)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))
			return a.InspectCache(cmd.Context(), outW)
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check that the cache is fresh and matches the registered parts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v, args, outW, errW, modules)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))
			if err := a.VerifyCache(cmd.Context()); err != nil {
				return &ExitError{Code: 1, Message: fmt.Sprintf("cache is not valid: %v", err)}
			}
			fmt.Fprintf(outW, "Cache %q is valid.\n", v.GetString("catalog"))
			return nil
		},
	}

	cmd.AddCommand(write, inspect, verify)
	return cmd
}

func newApp(v *viper.Viper, args []string, outW, errW io.Writer, modules []registry.Module) (*app.App, error) {
	cfg, err := buildConfig(v, args)
	if err != nil {
		return nil, err
	}
	return app.NewApp(outW, errW, cfg, modules...)
}

// initConfig reads the config file when one is given and enables
// environment overrides.
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return &ExitError{Code: 2, Message: fmt.Sprintf("failed to read config file: %v", err)}
	}
	return nil
}

// buildConfig translates the merged settings into the application's
// configuration. A positional argument overrides the manifests path.
func buildConfig(v *viper.Viper, args []string) (*app.Config, error) {
	manifests := v.GetString("manifests")
	if len(args) > 0 {
		manifests = args[0]
	}

	cfg, err := app.NewConfig(app.Config{
		ManifestsPath:   manifests,
		CachePath:       v.GetString("cache-path"),
		CacheStore:      strings.ToLower(v.GetString("cache-store")),
		CatalogName:     v.GetString("catalog"),
		UseCache:        v.GetBool("use-cache"),
		StrictCache:     v.GetBool("strict-cache"),
		Watch:           v.GetBool("watch"),
		RootContract:    v.GetString("root"),
		HealthcheckPort: v.GetInt("healthcheck-port"),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
		LogLevel:        strings.ToLower(v.GetString("log-level")),
		TraceExporter:   strings.ToLower(v.GetString("trace-exporter")),
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", f.Name, err))
		}
	})
}
