// Package toolchain makes sure the tools a job's steps call are installed and
// selected before the first step runs.
package toolchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stepci/internal/environment"
	"stepci/internal/report"
)

// StepName is the name the installer reports under
const StepName = "toolchain"

const (
	KindRustup = "rustup"
	KindCustom = "custom"
)

// Spec declares the toolchain a job needs
type Spec struct {
	Kind       string   `yaml:"kind" json:"kind" jsonschema:"enum=rustup,enum=custom,default=rustup"`
	Channel    string   `yaml:"channel,omitempty" json:"channel,omitempty" jsonschema:"description=rustup channel or version e.g. stable"`
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
	Targets    []string `yaml:"targets,omitempty" json:"targets,omitempty"`

	// Check, when it exits 0, means the toolchain is already usable.
	Check string `yaml:"check,omitempty" json:"check,omitempty"`
	// Install commands run in order for the custom kind.
	Install []string `yaml:"install,omitempty" json:"install,omitempty"`
}

// Validate reports spec errors before anything runs
func (s *Spec) Validate() error {
	switch s.Kind {
	case "", KindRustup:
		return nil
	case KindCustom:
		if len(s.Install) == 0 && s.Check == "" {
			return fmt.Errorf("custom toolchain needs install commands or a check")
		}
		return nil
	default:
		return fmt.Errorf("unknown toolchain kind %q", s.Kind)
	}
}

// ToolchainError means the toolchain could not be installed or selected
type ToolchainError struct {
	Command  string
	ExitCode int
	Reason   string

	// Err is set when the command could not be run at all.
	Err error
}

func (e *ToolchainError) Unwrap() error { return e.Err }

func (e *ToolchainError) Error() string {
	if e.Reason != "" {
		return "toolchain: " + e.Reason
	}
	return fmt.Sprintf("toolchain: %q exited %d", e.Command, e.ExitCode)
}

// Installer runs a Spec's commands inside the job environment
type Installer struct {
	Log logrus.FieldLogger
}

func NewInstaller(log logrus.FieldLogger) *Installer {
	return &Installer{Log: log}
}

// Plan returns the check that makes install unnecessary when it passes,
// and the install commands in order
func Plan(spec Spec) (check string, install []string) {
	switch spec.Kind {
	case KindCustom:
		return spec.Check, spec.Install
	default:
		channel := spec.Channel
		if channel == "" {
			channel = "stable"
		}
		cmd := fmt.Sprintf("rustup toolchain install %s --profile minimal --no-self-update", channel)
		if len(spec.Components) > 0 {
			cmd += " --component " + strings.Join(spec.Components, ",")
		}
		if len(spec.Targets) > 0 {
			cmd += " --target " + strings.Join(spec.Targets, ",")
		}
		return spec.Check, []string{"command -v rustup >/dev/null", cmd, "rustup default " + channel}
	}
}

// Install brings the toolchain in place and reports it as a single result
func (i *Installer) Install(ctx context.Context, env environment.Environment, spec Spec) (report.RunResult, error) {
	started := time.Now()
	check, cmds := Plan(spec)
	res := report.RunResult{StepName: StepName, Command: strings.Join(cmds, " && ")}
	log := i.Log.WithFields(logrus.Fields{"step": StepName, "kind": kindOf(spec)})

	finish := func() report.RunResult {
		res.Duration = time.Since(started)
		return res
	}
	run := func(script string) (*environment.Result, error) {
		out, err := env.Exec(ctx, environment.Command{Name: StepName, Script: script})
		if out != nil {
			res.Stdout = append(res.Stdout, out.Stdout...)
			res.Stderr = append(res.Stderr, out.Stderr...)
		}
		return out, err
	}
	// A deadline is left to the caller; anything else is a toolchain failure.
	execFailure := func(script string, err error) (report.RunResult, error) {
		res.ExitCode, res.Error = -1, err.Error()
		if ctx.Err() != nil {
			return finish(), err
		}
		terr := &ToolchainError{Command: script, ExitCode: -1, Reason: "cannot run " + script + ": " + err.Error(), Err: err}
		res.Error = terr.Error()
		log.WithError(err).Error("toolchain command could not run")
		return finish(), terr
	}

	if check != "" {
		out, err := run(check)
		if err != nil {
			return execFailure(check, err)
		}
		if out.ExitCode == 0 {
			log.Info("toolchain already present")
			res.Command = check
			return finish(), nil
		}
	}

	for idx, script := range cmds {
		out, err := run(script)
		if err != nil {
			return execFailure(script, err)
		}
		if out.ExitCode != 0 {
			res.ExitCode = out.ExitCode
			terr := &ToolchainError{Command: script, ExitCode: out.ExitCode}
			if spec.Kind != KindCustom && idx == 0 {
				terr.Reason = "rustup not found"
			}
			res.Error = terr.Error()
			log.WithField("exit", out.ExitCode).Error("toolchain install failed")
			return finish(), terr
		}
	}

	if check != "" {
		out, err := run(check)
		if err != nil {
			return execFailure(check, err)
		}
		if out.ExitCode != 0 {
			res.ExitCode = out.ExitCode
			terr := &ToolchainError{Command: check, ExitCode: out.ExitCode, Reason: "check still failing after install"}
			res.Error = terr.Error()
			return finish(), terr
		}
	}

	log.Info("toolchain ready")
	return finish(), nil
}

func kindOf(spec Spec) string {
	if spec.Kind == "" {
		return KindRustup
	}
	return spec.Kind
}
