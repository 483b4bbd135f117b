package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/specialistvlad/partgrid/internal/engine"
	"github.com/specialistvlad/partgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	cfg, err := NewConfig(Config{LogLevel: "debug"})
	require.NoError(t, err)
	logs := &testutil.SafeBuffer{}
	a, err := NewApp(io.Discard, logs, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	container := engine.New(ctx)
	defer container.Close(ctx)
	part := testutil.NewRecordingPart("solo").Export("Thing", 1)
	require.NoError(t, container.Compose(ctx, part))

	rec := httptest.NewRecorder()
	a.healthHandler(container)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\nparts: 1\n", rec.Body.String())
	assert.Contains(t, logs.String(), "Health check endpoint hit.")
}
