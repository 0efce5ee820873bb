package core

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stepci/internal/cache"
	"stepci/internal/environment"
	"stepci/internal/ledger"
	"stepci/internal/provision"
	"stepci/internal/report"
	"stepci/internal/storage"
	"stepci/internal/toolchain"
	"stepci/pkg/utils"
)

// SetupStepName is reported when the environment itself cannot start
const SetupStepName = "setup"

// RunOptions are per-run overrides of what the job file says
type RunOptions struct {
	// Packages overrides Job.Packages when non-nil; an empty string disables provisioning.
	Packages *string
	Inputs   map[string]string
	Only     []string
}

// Runner ties together provisioning, toolchain setup, the dependency cache,
// step execution, log storage and the ledger for one job at a time.
type Runner struct {
	Env         environment.Environment
	Scheduler   *Scheduler
	Provisioner *provision.Provisioner
	Installer   *toolchain.Installer

	// Optional collaborators; nil disables them.
	Cache      cache.Store
	LogStorage *storage.LogStorage
	Ledger     *ledger.Ledger

	WorkDir        string
	RunnerID       string
	DefaultTimeout time.Duration
	Output         io.Writer
	Log            logrus.FieldLogger
}

func NewRunner(env environment.Environment, manager provision.Manager, log logrus.FieldLogger) *Runner {
	return &Runner{
		Env:         env,
		Scheduler:   NewScheduler(),
		Provisioner: provision.NewProvisioner(manager, log),
		Installer:   toolchain.NewInstaller(log),
		RunnerID:    "local-runner",
		Log:         log,
	}
}

// Run executes job start to finish. The JobResult is always returned, also
// on error, and holds every entry recorded so far. The error is one of
// *provision.ProvisionError, *toolchain.ToolchainError, *StepFailure,
// *TimeoutError, or an infrastructure error.
func (r *Runner) Run(ctx context.Context, job *Job, opts RunOptions) (*report.JobResult, error) {
	rec := report.NewJobResult(job.Name)
	defer rec.Finish()

	log := r.Log.WithFields(logrus.Fields{"job": job.Name, "env": r.Env.Name()})

	steps, err := r.Scheduler.Plan(job, opts.Only)
	if err != nil {
		return rec, err
	}

	timeout := job.Timeout.Std()
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	packages := job.Packages
	if opts.Packages != nil {
		packages = *opts.Packages
	}
	inputs := make(map[string]string, len(job.Inputs)+len(opts.Inputs)+1)
	for k, v := range job.Inputs {
		inputs[k] = v
	}
	for k, v := range opts.Inputs {
		inputs[k] = v
	}
	inputs["packages"] = packages

	exec := &Executor{
		Env:        r.Env,
		Log:        log,
		Output:     r.Output,
		OnResult:   func(res *report.RunResult) { r.record(job, res) },
		JobTimeout: timeout,
	}
	abort := func(reason report.SkipReason) {
		for _, st := range steps {
			exec.add(rec, report.Skip(st.Name, st.Run, reason))
		}
	}

	log.WithField("steps", len(steps)).Info("starting job")

	if err := r.Env.Setup(ctx); err != nil {
		exec.add(rec, report.RunResult{StepName: SetupStepName, ExitCode: -1, Error: err.Error()})
		abort(report.SkipAborted)
		return rec, errors.Wrapf(err, "set up %s environment", r.Env.Name())
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Env.Teardown(tctx); err != nil {
			log.WithError(err).Warn("environment teardown failed")
		}
	}()

	if pkgs := provision.ParsePackages(packages); len(pkgs) > 0 {
		res, err := r.Provisioner.Provision(ctx, r.Env, pkgs)
		exec.add(rec, res)
		if err != nil {
			abort(report.SkipAborted)
			return rec, r.setupFailure(ctx, provision.StepName, timeout, err)
		}
	}

	if job.Toolchain != nil {
		res, err := r.Installer.Install(ctx, r.Env, *job.Toolchain)
		exec.add(rec, res)
		if err != nil {
			abort(report.SkipAborted)
			return rec, r.setupFailure(ctx, toolchain.StepName, timeout, err)
		}
	}

	key := r.restoreCache(ctx, job, log)

	err = exec.RunSteps(ctx, job, steps, inputs, rec)
	if err == nil && key != "" {
		if serr := r.Cache.Save(ctx, key, r.WorkDir, job.Cache.Paths); serr != nil {
			log.WithError(serr).Warn("cache save failed")
		} else {
			log.WithField("key", key).Info("cache saved")
		}
	}

	passed, failed, skipped := rec.Counts()
	log.WithFields(logrus.Fields{
		"success": rec.Success(),
		"passed":  passed,
		"failed":  failed,
		"skipped": skipped,
	}).Info("job finished")
	return rec, err
}

// setupFailure prefers a TimeoutError when the job deadline is what broke
// provisioning or toolchain setup
func (r *Runner) setupFailure(ctx context.Context, stage string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Step: stage, Timeout: timeout, Scope: "job"}
	}
	return err
}

// restoreCache returns the key to save under after a successful run, or ""
// when caching is off or broken. Cache problems never fail the job.
func (r *Runner) restoreCache(ctx context.Context, job *Job, log logrus.FieldLogger) string {
	if r.Cache == nil || job.Cache == nil {
		return ""
	}
	key, err := cache.Key(*job.Cache, r.WorkDir)
	if err != nil {
		log.WithError(err).Warn("cache key failed, caching disabled for this run")
		return ""
	}
	hit, err := r.Cache.Restore(ctx, key, r.WorkDir, job.Cache.Paths)
	switch {
	case err != nil:
		log.WithError(err).WithField("key", key).Warn("cache restore failed")
	case hit:
		log.WithField("key", key).Info("cache restored")
	default:
		log.WithField("key", key).Info("cache miss")
	}
	return key
}

// record saves the output of executed entries and chains them into the ledger.
// Both are best effort; a broken sink does not fail the job.
func (r *Runner) record(job *Job, res *report.RunResult) {
	if res.Skipped {
		return
	}
	log := r.Log.WithFields(logrus.Fields{"job": job.Name, "step": res.StepName})

	output := res.Output()
	logHash := utils.HashBytes(output)
	if r.LogStorage != nil {
		path, err := r.LogStorage.SaveLog(job.Name, res.StepName, output)
		if err != nil {
			log.WithError(err).Warn("cannot save step log")
		} else {
			res.LogPath = path
		}
	}

	if r.Ledger != nil {
		blk, err := r.Ledger.Append(ledger.Entry{
			Job:      job.Name,
			Step:     res.StepName,
			ExitCode: res.ExitCode,
			Status:   string(res.Status()),
			LogPath:  res.LogPath,
			LogHash:  logHash,
			RunnerID: r.RunnerID,
		})
		if err != nil {
			log.WithError(err).Warn("cannot append ledger block")
			return
		}
		log.WithFields(logrus.Fields{"block": blk.Index, "hash": blk.Hash[:16]}).Debug("ledger block appended")
	}
}
