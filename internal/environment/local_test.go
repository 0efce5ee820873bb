package environment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCapturesStreamsAndExitCode(t *testing.T) {
	env := NewLocal(t.TempDir())
	require.NoError(t, env.Setup(context.Background()))

	var live bytes.Buffer
	res, err := env.Exec(context.Background(), Command{
		Name:   "mixed",
		Script: "echo out; echo err >&2; exit 3",
		Output: &live,
	})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, live.String(), "out")
	assert.Contains(t, live.String(), "err")
}

func TestLocalEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "crate"), 0755))

	env := NewLocal(dir)
	res, err := env.Exec(context.Background(), Command{
		Name:   "env",
		Script: `printf '%s ' "$GREETING"; basename "$(pwd)"`,
		Env:    map[string]string{"GREETING": "hello"},
		Dir:    "crate",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello crate\n", string(res.Stdout))
}

func TestLocalDeadlineKillsCommand(t *testing.T) {
	env := NewLocal(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := env.Exec(ctx, Command{Name: "sleep", Script: "echo started; sleep 10"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, res)
	assert.Equal(t, -1, res.ExitCode)
}

func TestLocalDetachedChildDoesNotHoldExec(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	env := NewLocal(t.TempDir())
	env.WaitDelay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := env.Exec(ctx, Command{Name: "detach", Script: "setsid sleep 5 & sleep 5"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)

	start = time.Now()
	res, err = env.Exec(context.Background(), Command{Name: "detach", Script: "setsid sleep 5 & echo started"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "started\n", string(res.Stdout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocalSetupRejectsMissingDir(t *testing.T) {
	env := NewLocal(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, env.Setup(context.Background()))
}

func TestFakeRecordsScripts(t *testing.T) {
	f := NewFake()
	f.Results["false"] = Result{ExitCode: 1}

	res, err := f.Exec(context.Background(), Command{Script: "true"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	res, err = f.Exec(context.Background(), Command{Script: "false"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	assert.Equal(t, []string{"true", "false"}, f.Executed())
}
