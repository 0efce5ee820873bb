package environment

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Local runs commands with `sh -c` on the host, inside WorkDir.
type Local struct {
	WorkDir string

	// Inherit passes the host environment through before the command's own env.
	Inherit bool

	// WaitDelay bounds how long output pipes are drained after the shell
	// exits or is killed. Detached children can otherwise hold them open.
	WaitDelay time.Duration
}

const defaultWaitDelay = 2 * time.Second

func NewLocal(workDir string) *Local {
	return &Local{WorkDir: workDir, Inherit: true, WaitDelay: defaultWaitDelay}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Setup(ctx context.Context) error {
	info, err := os.Stat(l.WorkDir)
	if err != nil {
		return errors.Wrap(err, "working directory")
	}
	if !info.IsDir() {
		return errors.Errorf("working directory %s is not a directory", l.WorkDir)
	}
	return nil
}

func (l *Local) Teardown(ctx context.Context) error { return nil }

// Exec runs one script and waits for it. When ctx ends first the whole
// process group is killed and ctx's error is returned with the partial output.
func (l *Local) Exec(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.Command("sh", "-c", c.Script)
	cmd.Dir = l.WorkDir
	if c.Dir != "" {
		cmd.Dir = filepath.Join(l.WorkDir, c.Dir)
	}
	if l.Inherit {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	} else {
		cmd.Env = envList(c.Env)
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = l.WaitDelay

	var stdout, stderr bytes.Buffer
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Output)
		cmd.Stderr = io.MultiWriter(&stderr, c.Output)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", c.Name)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}, ctx.Err()
	case err = <-done:
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if errors.Is(err, exec.ErrWaitDelay) {
		// the shell exited 0; a detached child kept the pipes open
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "run %s", c.Name)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}
