package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestDiscoverWalksDirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.png"))
	touch(t, filepath.Join(root, "a.JPG"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "nested", "c.webp"))
	touch(t, filepath.Join(root, ".cache", "d.png"))
	touch(t, filepath.Join(root, ".e.png"))

	single := filepath.Join(t.TempDir(), "single.txt")
	touch(t, single)

	files, stats, err := Discover([]string{single, root})
	require.NoError(t, err)
	assert.Equal(t, []string{
		single,
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "nested", "c.webp"),
	}, files)
	assert.Equal(t, Stats{Scanned: 5, Matched: 4, Skipped: 1}, stats)
}

func TestDiscoverMissingPath(t *testing.T) {
	_, _, err := Discover([]string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestAllowedExt(t *testing.T) {
	assert.True(t, AllowedExt(".jpeg"))
	assert.True(t, AllowedExt("PNG"))
	assert.False(t, AllowedExt(".pdf"))
}
