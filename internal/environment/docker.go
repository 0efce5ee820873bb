package environment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerError wraps anything the docker daemon or client returned.
type DockerError struct {
	Op       string
	Original error
}

func (e DockerError) Error() string {
	return fmt.Sprintf("docker %s: %v", e.Op, e.Original)
}

func (e DockerError) Unwrap() error { return e.Original }

// Docker runs every command of a job inside one throwaway container. The host
// working directory is bind-mounted at MountPath.
type Docker struct {
	Client    *docker.Client
	Image     string
	WorkDir   string
	MountPath string
	Pull      bool

	containerID string
}

// NewDocker connects using the DOCKER_* environment variables.
func NewDocker(image, workDir string) (*Docker, error) {
	cli, err := docker.NewEnvClient()
	if err != nil {
		return nil, DockerError{Op: "connect", Original: err}
	}
	return &Docker{
		Client:    cli,
		Image:     image,
		WorkDir:   workDir,
		MountPath: "/workspace",
	}, nil
}

func (d *Docker) Name() string { return "docker:" + d.Image }

func (d *Docker) Setup(ctx context.Context) error {
	if d.Pull {
		rc, err := d.Client.ImagePull(ctx, d.Image, types.ImagePullOptions{})
		if err != nil {
			return DockerError{Op: "pull", Original: err}
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return DockerError{Op: "pull", Original: err}
		}
	}

	cont, err := d.Client.ContainerCreate(
		ctx,
		&container.Config{
			Image:      d.Image,
			WorkingDir: d.MountPath,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			Labels:     map[string]string{"stepci": "job"},
		},
		&container.HostConfig{
			Binds: []string{d.WorkDir + ":" + d.MountPath},
		},
		&network.NetworkingConfig{},
		"",
	)
	if err != nil {
		return DockerError{Op: "create", Original: err}
	}
	d.containerID = cont.ID

	if err := d.Client.ContainerStart(ctx, d.containerID, types.ContainerStartOptions{}); err != nil {
		return DockerError{Op: "start", Original: err}
	}
	return nil
}

func (d *Docker) Exec(ctx context.Context, c Command) (*Result, error) {
	if d.containerID == "" {
		return nil, fmt.Errorf("docker environment %s is not set up", d.Image)
	}

	execConfig := types.ExecConfig{
		Cmd:          []string{"sh", "-c", execScript(d.MountPath, c)},
		Env:          envList(c.Env),
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := d.Client.ContainerExecCreate(ctx, d.containerID, execConfig)
	if err != nil {
		return nil, DockerError{Op: "exec create", Original: err}
	}

	// Attaching starts the exec and streams until it exits.
	resp, err := d.Client.ContainerExecAttach(ctx, created.ID, execConfig)
	if err != nil {
		return nil, DockerError{Op: "exec attach", Original: err}
	}
	defer resp.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			resp.Close()
		case <-stop:
		}
	}()

	var stdout, stderr bytes.Buffer
	var outW, errW io.Writer = &stdout, &stderr
	if c.Output != nil {
		outW = io.MultiWriter(&stdout, c.Output)
		errW = io.MultiWriter(&stderr, c.Output)
	}
	_, copyErr := stdcopy.StdCopy(outW, errW, resp.Reader)
	if ctx.Err() != nil {
		return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}, ctx.Err()
	}
	if copyErr != nil {
		return nil, DockerError{Op: "exec stream", Original: copyErr}
	}

	inspect, err := d.waitExec(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: inspect.ExitCode}, nil
}

// waitExec polls until the daemon reports the exec finished; the stream can
// close slightly before the exit code is recorded.
func (d *Docker) waitExec(ctx context.Context, execID string) (types.ContainerExecInspect, error) {
	for {
		inspect, err := d.Client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return inspect, DockerError{Op: "exec inspect", Original: err}
		}
		if !inspect.Running {
			return inspect, nil
		}
		select {
		case <-ctx.Done():
			return inspect, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (d *Docker) Teardown(ctx context.Context) error {
	if d.containerID == "" {
		return nil
	}
	timeout := 5 * time.Second
	if err := d.Client.ContainerStop(ctx, d.containerID, &timeout); err != nil {
		return DockerError{Op: "stop", Original: err}
	}
	err := d.Client.ContainerRemove(ctx, d.containerID, types.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})
	if err != nil {
		return DockerError{Op: "remove", Original: err}
	}
	d.containerID = ""
	return nil
}

// execScript prefixes c.Script with a cd into c.Dir under the mount, since
// exec has no working directory of its own
func execScript(mountPath string, c Command) string {
	if c.Dir == "" {
		return c.Script
	}
	return fmt.Sprintf("cd %s && %s", shellQuote(path.Join(mountPath, c.Dir)), c.Script)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
