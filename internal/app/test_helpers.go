package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/partgrid/internal/registry"
	"github.com/specialistvlad/partgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. It returns the
// app with buffers capturing its output and its debug logs.
func SetupAppTest(t *testing.T, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	cfg.LogLevel = "debug"
	appConfig, err := NewConfig(cfg)
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	outBuffer := &testutil.SafeBuffer{}
	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(outBuffer, logBuffer, appConfig, modules...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	t.Cleanup(func() {
		_ = testApp.Close(context.Background())
		if os.Getenv("PARTGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, outBuffer, logBuffer
}

// WriteManifest writes an HCL manifest named name into dir.
func WriteManifest(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}
