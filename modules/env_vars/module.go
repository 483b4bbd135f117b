package env_vars

import (
	"os"
	"strings"

	"github.com/specialistvlad/partgrid/internal/part"
	"github.com/specialistvlad/partgrid/internal/registry"
)

const (
	// TypeName is the registered part type.
	TypeName = "env"
	// Prefix selects the environment variables exported.
	Prefix = "PARTGRID_"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Env snapshots the process environment when it is created.
type Env struct {
	vars map[string]string
}

// NewEnv captures every variable starting with Prefix.
func NewEnv() (*Env, error) {
	vars := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], Prefix) {
			vars[pair[0]] = pair[1]
		}
	}
	return &Env{vars: vars}, nil
}

// All returns a copy of the captured variables.
func (e *Env) All() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Definition returns the builder for the env part type. It exports a
// "Section" titled "environment".
func Definition() *part.Builder[*Env] {
	return part.Define(TypeName, NewEnv).
		Export("Section", func(e *Env) (any, error) { return e.All(), nil },
			part.WithMetadata("title", "environment"),
			part.WithTypeIdentity(part.TypeIdentity[map[string]string]()),
		)
}

// Register registers the env part type.
func (m *Module) Register(r *registry.Registry) {
	Definition().MustRegister(r)
}
