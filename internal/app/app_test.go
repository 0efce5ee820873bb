package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepci/internal/config"
	"stepci/internal/core"
	"stepci/internal/environment"
	"stepci/internal/logging"
)

func TestFactoryWiresSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.WorkDir = dir
	cfg.LogsDir = filepath.Join(dir, "logs")
	cfg.LedgerPath = filepath.Join(dir, "ledger.jsonl")
	cfg.KeysDir = filepath.Join(dir, "keys")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Sudo = true
	require.NoError(t, cfg.Validate())

	f, err := NewFactory(cfg, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, f.Ledger)
	require.NotNil(t, f.Cache)

	r, err := f.Runner("", nil)
	require.NoError(t, err)
	assert.Equal(t, "local", r.Env.Name())
	assert.True(t, r.Provisioner.Sudo)
	assert.Equal(t, dir, r.WorkDir)

	job := &core.Job{Name: "smoke", Steps: []core.Step{{Name: "echo", Run: "echo hello"}}}
	rec, err := r.Run(context.Background(), job, core.RunOptions{})
	require.NoError(t, err)
	assert.True(t, rec.Success())

	res, _ := rec.Find("echo")
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.NotEmpty(t, res.LogPath)
	assert.Equal(t, 1, f.Ledger.Len())
	assert.NoError(t, f.Ledger.Verify())
}

func TestFactoryCustomEnv(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	f, err := NewFactory(cfg, logging.Discard())
	require.NoError(t, err)

	fake := environment.NewFake()
	f.NewEnv = func(string) (environment.Environment, error) { return fake, nil }

	r, err := f.Runner(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Same(t, fake, r.Env)
}

func TestFactoryRunnerMakesWorkDirAbsolute(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	f, err := NewFactory(cfg, logging.Discard())
	require.NoError(t, err)

	var got string
	f.NewEnv = func(dir string) (environment.Environment, error) {
		got = dir
		return environment.NewFake(), nil
	}

	r, err := f.Runner("crate", nil)
	require.NoError(t, err)
	want, err := filepath.Abs("crate")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, r.WorkDir)
	assert.True(t, filepath.IsAbs(r.WorkDir))
}

func TestFactoryRejectsUnknownManager(t *testing.T) {
	cfg := config.Default()
	cfg.PackageManager = "pacman"
	_, err := NewFactory(cfg, logging.Discard())
	assert.Error(t, err)
}
