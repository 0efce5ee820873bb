package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileMatchesHashString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cargo.lock")
	require.NoError(t, os.WriteFile(path, []byte("lockfile"), 0644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashString("lockfile"), h)
	assert.Len(t, h, 64)
}

func TestHashFilesChangesWithContentAndPresence(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0644))

	missing, err := HashFiles([]string{a, b})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(b, []byte(""), 0644))
	present, err := HashFiles([]string{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, missing, present)

	require.NoError(t, os.WriteFile(a, []byte("two"), 0644))
	changed, err := HashFiles([]string{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, present, changed)

	again, err := HashFiles([]string{a, b})
	require.NoError(t, err)
	assert.Equal(t, changed, again)
}
