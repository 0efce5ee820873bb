// Package environment provides the ephemeral places a job's commands run in:
// the local host or a throwaway docker container.
package environment

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Command is one shell script to run inside an environment
type Command struct {
	Name   string
	Script string
	Env    map[string]string

	// Dir is relative to the environment's working directory.
	Dir string

	// Output, when set, receives stdout and stderr as they are produced.
	Output io.Writer
}

// Result is what a finished process left behind
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Environment is owned by exactly one job run.
//
// Exec returns an error only when the command could not be run to completion
// (start failure, cancellation); a non-zero exit is reported in Result.
type Environment interface {
	Name() string
	Setup(ctx context.Context) error
	Exec(ctx context.Context, cmd Command) (*Result, error)
	Teardown(ctx context.Context) error
}

// envList renders a map as sorted KEY=VALUE pairs
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
