// Package app wires configuration into runners. Each job gets a runner with
// its own environment; the ledger, cache store and log storage are shared.
package app

import (
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stepci/internal/cache"
	"stepci/internal/config"
	"stepci/internal/core"
	"stepci/internal/environment"
	"stepci/internal/ledger"
	"stepci/internal/provision"
	"stepci/internal/security"
	"stepci/internal/storage"
)

type Factory struct {
	Config  *config.Config
	Log     *logrus.Logger
	Manager provision.Manager

	Cache      cache.Store
	LogStorage *storage.LogStorage
	Ledger     *ledger.Ledger

	// NewEnv builds the environment for one run; tests replace it.
	NewEnv func(workDir string) (environment.Environment, error)
}

// NewFactory opens the shared sinks the config asks for
func NewFactory(cfg *config.Config, log *logrus.Logger) (*Factory, error) {
	manager, err := provision.LookupManager(cfg.PackageManager)
	if err != nil {
		return nil, err
	}
	f := &Factory{Config: cfg, Log: log, Manager: manager}
	f.NewEnv = f.defaultEnv

	if cfg.CacheDir != "" {
		f.Cache = cache.NewDirStore(cfg.CacheDir)
	}
	if cfg.LogsDir != "" {
		f.LogStorage = storage.NewLogStorage(cfg.LogsDir)
	}
	if cfg.LedgerPath != "" {
		signer, created, err := security.LoadOrCreateSigner(cfg.KeysDir)
		if err != nil {
			return nil, errors.Wrap(err, "runner keys")
		}
		if created {
			log.WithField("dir", cfg.KeysDir).Info("generated new runner keys")
		}
		f.Ledger, err = ledger.Open(cfg.LedgerPath, signer)
		if err != nil {
			return nil, errors.Wrap(err, "open ledger")
		}
	}
	return f, nil
}

func (f *Factory) defaultEnv(workDir string) (environment.Environment, error) {
	switch f.Config.Environment {
	case config.EnvDocker:
		d, err := environment.NewDocker(f.Config.Image, workDir)
		if err != nil {
			return nil, err
		}
		d.Pull = f.Config.PullImage
		return d, nil
	default:
		return environment.NewLocal(workDir), nil
	}
}

// Runner returns a runner for one job in workDir ("" means the configured one)
func (f *Factory) Runner(workDir string, output io.Writer) (*core.Runner, error) {
	if workDir == "" {
		workDir = f.Config.WorkDir
	}
	// docker treats a relative bind source as a volume name
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, errors.Wrap(err, "working directory")
	}
	env, err := f.NewEnv(workDir)
	if err != nil {
		return nil, err
	}

	r := core.NewRunner(env, f.Manager, f.Log)
	r.Provisioner.Sudo = f.Config.Sudo
	r.Provisioner.SkipCheck = f.Config.SkipPackageCheck
	r.Cache = f.Cache
	r.LogStorage = f.LogStorage
	r.Ledger = f.Ledger
	r.WorkDir = workDir
	r.RunnerID = f.Config.RunnerID
	r.DefaultTimeout = f.Config.JobTimeout
	r.Output = output
	return r, nil
}
