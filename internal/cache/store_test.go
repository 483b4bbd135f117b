package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "main")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "main", []byte("first")))
	got, err := store.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	require.NoError(t, store.Put(ctx, "main", []byte("second")))
	got, err = store.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, store.Put(ctx, "other", []byte("x")))
	got, err = store.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got, "keys are independent")
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store := NewFileStore(dir)
	testStore(t, store)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"main.pgc", "other.pgc"}, names, "no temporary files left behind")

	assert.Equal(t, filepath.Join(dir, "a_b_c.pgc"), store.Path("a/b c"))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	testStore(t, store)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got, "data survives reopening")
}
