// Package provision installs OS-level prerequisite packages before any
// toolchain or step runs.
package provision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stepci/internal/environment"
	"stepci/internal/report"
)

// StepName is the name the provisioner reports under
const StepName = "provision"

var validPackage = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+_:=~-]*$`)

// ProvisionError means the prerequisites could not be installed
type ProvisionError struct {
	Packages    []string
	Unavailable []string
	ExitCode    int
	Reason      string

	// Err is set when a command could not be run at all.
	Err error
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func (e *ProvisionError) Error() string {
	switch {
	case len(e.Unavailable) > 0:
		return fmt.Sprintf("provision: packages unavailable: %s", strings.Join(e.Unavailable, ", "))
	case e.Reason != "":
		return "provision: " + e.Reason
	default:
		return fmt.Sprintf("provision: install of %s exited %d", strings.Join(e.Packages, " "), e.ExitCode)
	}
}

// ParsePackages splits a whitespace-separated package list, dropping duplicates
func ParsePackages(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Fields(s) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Provisioner installs packages through a package manager inside an environment
type Provisioner struct {
	Manager Manager
	Sudo    bool

	// SkipCheck disables the per-package availability probe.
	SkipCheck bool

	Log logrus.FieldLogger
}

func NewProvisioner(manager Manager, log logrus.FieldLogger) *Provisioner {
	return &Provisioner{Manager: manager, Log: log}
}

// Provision installs pkgs. Callers skip it entirely for an empty list; when it
// is called with nothing to do it still returns a passing result.
func (p *Provisioner) Provision(ctx context.Context, env environment.Environment, pkgs []string) (report.RunResult, error) {
	started := time.Now()
	res := report.RunResult{StepName: StepName}
	finish := func() report.RunResult {
		res.Duration = time.Since(started)
		return res
	}

	for _, pkg := range pkgs {
		if !validPackage.MatchString(pkg) {
			res.ExitCode = -1
			res.Error = fmt.Sprintf("invalid package name %q", pkg)
			return finish(), &ProvisionError{Packages: pkgs, ExitCode: -1, Reason: res.Error}
		}
	}
	if len(pkgs) == 0 {
		return finish(), nil
	}

	log := p.Log.WithFields(logrus.Fields{"step": StepName, "manager": p.Manager.Name})

	// A deadline is left to the caller; anything else is a provisioning failure.
	execFailure := func(script string, err error) (report.RunResult, error) {
		res.ExitCode, res.Error = -1, err.Error()
		if ctx.Err() != nil {
			return finish(), err
		}
		perr := &ProvisionError{Packages: pkgs, ExitCode: -1, Reason: "cannot run " + script + ": " + err.Error(), Err: err}
		res.Error = perr.Error()
		log.WithError(err).Error("package command could not run")
		return finish(), perr
	}

	if !p.SkipCheck && p.Manager.Probe != "" {
		var unavailable []string
		for _, pkg := range pkgs {
			probe := p.Manager.ProbeScript(pkg)
			out, err := env.Exec(ctx, environment.Command{
				Name:   StepName,
				Script: probe,
			})
			if err != nil {
				return execFailure(probe, err)
			}
			if out.ExitCode != 0 {
				unavailable = append(unavailable, pkg)
			}
		}
		if len(unavailable) > 0 {
			res.ExitCode = 1
			res.Error = "unavailable: " + strings.Join(unavailable, " ")
			log.WithField("packages", unavailable).Error("packages unavailable")
			return finish(), &ProvisionError{Packages: pkgs, Unavailable: unavailable, ExitCode: 1}
		}
	}

	script := p.Manager.InstallScript(pkgs, p.Sudo)
	res.Command = script
	log.WithField("packages", pkgs).Info("installing packages")

	out, err := env.Exec(ctx, environment.Command{
		Name:   StepName,
		Script: script,
		Env:    p.Manager.Env,
	})
	if out != nil {
		res.Stdout, res.Stderr, res.ExitCode = out.Stdout, out.Stderr, out.ExitCode
	}
	if err != nil {
		return execFailure(script, err)
	}
	if res.ExitCode != 0 {
		log.WithField("exit", res.ExitCode).Error("package install failed")
		return finish(), &ProvisionError{Packages: pkgs, ExitCode: res.ExitCode}
	}
	return finish(), nil
}
