package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"stepci/internal/environment"
	"stepci/internal/report"
)

// Executor runs a job's steps one after another inside one environment,
// stopping at the first failure.
type Executor struct {
	Env environment.Environment
	Log logrus.FieldLogger

	// Output receives live step output when set.
	Output io.Writer

	// OnResult sees every result before it is added to the job record.
	OnResult func(*report.RunResult)

	// JobTimeout is the deadline the caller put on ctx, for error reports.
	JobTimeout time.Duration
}

func NewExecutor(env environment.Environment, log logrus.FieldLogger) *Executor {
	return &Executor{Env: env, Log: log}
}

// RunSteps executes steps in order and records one result per step in rec.
//
// A false condition skips the step and execution continues. The first failing
// step ends execution: it is returned as a *StepFailure, and every later step
// is recorded as skipped without running. A step or job deadline ends the run
// with a *TimeoutError.
func (e *Executor) RunSteps(ctx context.Context, job *Job, steps []Step, inputs map[string]string, rec *report.JobResult) error {
	var failure error
	skipReason := report.SkipPreviousFailure

	for _, st := range steps {
		if failure != nil {
			e.add(rec, report.Skip(st.Name, st.Run, skipReason))
			continue
		}
		if err := ctx.Err(); err != nil {
			failure = e.contextFailure(ctx, job, st.Name)
			skipReason = report.SkipAborted
			e.add(rec, report.Skip(st.Name, st.Run, skipReason))
			continue
		}

		log := e.Log.WithField("step", st.Name)

		ok, err := EvalCondition(st.If, ConditionContext{Inputs: inputs, Env: job.Env, Steps: rec.Results})
		if err != nil {
			res := report.RunResult{StepName: st.Name, Command: st.Run, ExitCode: -1, Error: err.Error()}
			e.add(rec, res)
			log.WithError(err).Error("condition failed")
			failure = &StepFailure{Result: res, Err: err}
			continue
		}
		if !ok {
			log.WithField("if", st.If).Info("condition false, skipping")
			e.add(rec, report.Skip(st.Name, st.Run, report.SkipCondition))
			continue
		}

		res, err := e.runStep(ctx, job, st)
		e.add(rec, res)

		switch {
		case err != nil:
			var timeout *TimeoutError
			if errors.As(err, &timeout) || errors.Is(err, context.Canceled) {
				skipReason = report.SkipAborted
			}
			log.WithError(err).Error("step aborted")
			failure = err
		case res.ExitCode != 0:
			log.WithField("exit", res.ExitCode).Error("step failed")
			failure = &StepFailure{Result: res}
		default:
			log.WithField("duration", res.Duration.Round(time.Millisecond)).Info("step passed")
		}
	}
	return failure
}

func (e *Executor) runStep(ctx context.Context, job *Job, st Step) (report.RunResult, error) {
	res := report.RunResult{StepName: st.Name, Command: st.Run}

	stepCtx := ctx
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, st.Timeout.Std())
		defer cancel()
	}

	env := make(map[string]string, len(job.Env)+len(st.Env)+2)
	for k, v := range job.Env {
		env[k] = v
	}
	for k, v := range st.Env {
		env[k] = v
	}
	env["STEPCI_JOB"] = job.Name
	env["STEPCI_STEP"] = st.Name

	e.Log.WithFields(logrus.Fields{"step": st.Name, "run": st.Run}).Info("running step")
	started := time.Now()
	out, err := e.Env.Exec(stepCtx, environment.Command{
		Name:   st.Name,
		Script: st.Run,
		Env:    env,
		Dir:    st.WorkingDirectory,
		Output: e.Output,
	})
	res.Duration = time.Since(started)
	if out != nil {
		res.Stdout, res.Stderr, res.ExitCode = out.Stdout, out.Stderr, out.ExitCode
	}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	switch {
	case ctx.Err() != nil:
		ferr := e.contextFailure(ctx, job, st.Name)
		res.Error = ferr.Error()
		return res, ferr
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		terr := &TimeoutError{Step: st.Name, Timeout: st.Timeout.Std(), Scope: "step"}
		res.Error = terr.Error()
		return res, terr
	default:
		res.Error = err.Error()
		return res, &StepFailure{Result: res, Err: err}
	}
}

// contextFailure turns the job context's end into the error the run reports
func (e *Executor) contextFailure(ctx context.Context, job *Job, step string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Step: step, Timeout: e.JobTimeout, Scope: "job"}
	}
	return fmt.Errorf("job %s cancelled during %s: %w", job.Name, step, ctx.Err())
}

func (e *Executor) add(rec *report.JobResult, res report.RunResult) {
	if e.OnResult != nil {
		e.OnResult(&res)
	}
	rec.Add(res)
}
