package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepci/internal/environment"
	"stepci/internal/logging"
	"stepci/internal/report"
)

func newAptProvisioner(t *testing.T) *Provisioner {
	t.Helper()
	m, err := LookupManager("apt")
	require.NoError(t, err)
	return NewProvisioner(m, logging.Discard())
}

func TestParsePackages(t *testing.T) {
	assert.Nil(t, ParsePackages(""))
	assert.Nil(t, ParsePackages("  \n\t "))
	assert.Equal(t, []string{"libssl-dev", "pkg-config"}, ParsePackages(" libssl-dev\tpkg-config  libssl-dev\n"))
}

func TestProvisionInstallsPackages(t *testing.T) {
	env := environment.NewFake()
	p := newAptProvisioner(t)
	p.Sudo = true

	res, err := p.Provision(context.Background(), env, []string{"libssl-dev", "pkg-config"})
	require.NoError(t, err)
	assert.Equal(t, StepName, res.StepName)
	assert.Equal(t, report.StatusPassed, res.Status())

	executed := env.Executed()
	require.Len(t, executed, 3, "two probes and one install")
	assert.Equal(t, "apt-cache show libssl-dev >/dev/null 2>&1", executed[0])
	assert.Equal(t, "sudo apt-get update -q && sudo apt-get install -y -q --no-install-recommends libssl-dev pkg-config", executed[2])
	assert.Equal(t, "noninteractive", env.Commands()[2].Env["DEBIAN_FRONTEND"])
}

func TestProvisionReportsUnavailablePackages(t *testing.T) {
	env := environment.NewFake()
	env.Results["apt-cache show nosuchpkg >/dev/null 2>&1"] = environment.Result{ExitCode: 100}
	p := newAptProvisioner(t)

	res, err := p.Provision(context.Background(), env, []string{"curl", "nosuchpkg"})
	require.Error(t, err)

	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, []string{"nosuchpkg"}, perr.Unavailable)
	assert.True(t, res.Failed())
	for _, s := range env.Executed() {
		assert.False(t, strings.Contains(s, "apt-get install"), "nothing installed after a failed probe")
	}
}

func TestProvisionInstallFailure(t *testing.T) {
	env := environment.NewFake()
	p := newAptProvisioner(t)
	p.SkipCheck = true
	env.Results[p.Manager.InstallScript([]string{"curl"}, false)] = environment.Result{
		ExitCode: 100,
		Stderr:   []byte("E: Unable to lock"),
	}

	res, err := p.Provision(context.Background(), env, []string{"curl"})
	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 100, perr.ExitCode)
	assert.Equal(t, 100, res.ExitCode)
	assert.Equal(t, "E: Unable to lock", string(res.Stderr))
	assert.Len(t, env.Executed(), 1)
}

func TestProvisionExecErrorIsProvisionError(t *testing.T) {
	broken := errors.New("exec attach: broken pipe")
	env := environment.NewFake()
	env.Handler = func(ctx context.Context, c environment.Command) (*environment.Result, error) {
		return nil, broken
	}
	p := newAptProvisioner(t)

	res, err := p.Provision(context.Background(), env, []string{"curl"})
	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, perr.Error(), "apt-cache show curl")
	assert.Len(t, env.Executed(), 1)

	p.SkipCheck = true
	_, err = p.Provision(context.Background(), env, []string{"curl"})
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "apt-get install")
}

func TestProvisionExecErrorAfterCancelIsLeftAlone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := environment.NewFake()
	env.Handler = func(ctx context.Context, c environment.Command) (*environment.Result, error) {
		return &environment.Result{ExitCode: -1}, ctx.Err()
	}

	_, err := newAptProvisioner(t).Provision(ctx, env, []string{"curl"})
	var perr *ProvisionError
	assert.False(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvisionRejectsShellInjection(t *testing.T) {
	env := environment.NewFake()
	p := newAptProvisioner(t)

	_, err := p.Provision(context.Background(), env, []string{"curl;rm", "-rf"})
	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Empty(t, env.Executed())
}

func TestLookupManager(t *testing.T) {
	m, err := LookupManager("")
	require.NoError(t, err)
	assert.Equal(t, "apt", m.Name)

	brew, err := LookupManager("brew")
	require.NoError(t, err)
	assert.Equal(t, "brew install jq", brew.InstallScript([]string{"jq"}, true))

	_, err = LookupManager("pacman")
	assert.Error(t, err)
}
