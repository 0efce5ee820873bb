package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	ls := NewLogStorage(dir)

	path, err := ls.SaveLog("lint", "cargo fmt/check", []byte("Diff in src/lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "lint_cargofmtcheck_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Diff in src/lib.rs", string(data))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "doc-test_1", sanitize("doc-test_1"))
	assert.Equal(t, "step", sanitize("../../"))
}
