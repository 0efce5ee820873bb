package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestKeyFollowsKeyFiles(t *testing.T) {
	root := t.TempDir()
	spec := Spec{KeyPrefix: "cargo", KeyFiles: []string{"Cargo.lock"}, Paths: []string{"target"}}

	missing, err := Key(spec, root)
	require.NoError(t, err)
	assert.Regexp(t, `^cargo-[0-9a-f]{16}$`, missing)

	writeFile(t, filepath.Join(root, "Cargo.lock"), "v1")
	k1, err := Key(spec, root)
	require.NoError(t, err)
	assert.NotEqual(t, missing, k1)

	writeFile(t, filepath.Join(root, "Cargo.lock"), "v2")
	k2, err := Key(spec, root)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestSaveThenRestore(t *testing.T) {
	ctx := context.Background()
	store := NewDirStore(t.TempDir())

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "target", "debug", "dep.rlib"), "compiled")
	writeFile(t, filepath.Join(src, "vendor.txt"), "vendored")

	hit, err := store.Restore(ctx, "k", src, []string{"target"})
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, store.Save(ctx, "k", src, []string{"target", "vendor.txt", "absent"}))

	dst := t.TempDir()
	hit, err = store.Restore(ctx, "k", dst, []string{"target", "vendor.txt", "absent"})
	require.NoError(t, err)
	assert.True(t, hit)

	data, err := os.ReadFile(filepath.Join(dst, "target", "debug", "dep.rlib"))
	require.NoError(t, err)
	assert.Equal(t, "compiled", string(data))
	data, err = os.ReadFile(filepath.Join(dst, "vendor.txt"))
	require.NoError(t, err)
	assert.Equal(t, "vendored", string(data))
}

func TestSaveKeepsExistingEntry(t *testing.T) {
	ctx := context.Background()
	store := NewDirStore(t.TempDir())

	first := t.TempDir()
	writeFile(t, filepath.Join(first, "target", "a"), "first")
	require.NoError(t, store.Save(ctx, "k", first, []string{"target"}))

	second := t.TempDir()
	writeFile(t, filepath.Join(second, "target", "a"), "second")
	require.NoError(t, store.Save(ctx, "k", second, []string{"target"}))

	dst := t.TempDir()
	_, err := store.Restore(ctx, "k", dst, []string{"target"})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dst, "target", "a"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestSpecValidate(t *testing.T) {
	assert.Error(t, (&Spec{}).Validate())
	assert.Error(t, (&Spec{Paths: []string{"/etc"}}).Validate())
	assert.Error(t, (&Spec{Paths: []string{"../up"}}).Validate())
	assert.NoError(t, (&Spec{Paths: []string{"target"}, KeyFiles: []string{"Cargo.lock"}}).Validate())
}
