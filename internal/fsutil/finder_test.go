package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	for _, name := range []string{"b.hcl", "a.hcl", "nested/c.hcl", "skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o644))
	}

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "nested", "c.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })

	collected, err := CollectFiles([]string{filepath.Join(root, "a.hcl"), root, filepath.Join(root, "missing")}, ".hcl")
	require.NoError(t, err)
	assert.Len(t, collected, 3)
	assert.Equal(t, filepath.Join(root, "a.hcl"), collected[0])
}
