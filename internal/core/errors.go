package core

import (
	"errors"
	"fmt"
	"time"

	"stepci/internal/provision"
	"stepci/internal/report"
	"stepci/internal/toolchain"
)

// StepFailure is a step that exited non-zero (or could not be run at all)
type StepFailure struct {
	Result report.RunResult
	Err    error
}

func (e *StepFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed: %v", e.Result.StepName, e.Err)
	}
	return fmt.Sprintf("step %s failed with exit code %d", e.Result.StepName, e.Result.ExitCode)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// TimeoutError means a job or step deadline expired; the whole job is aborted
type TimeoutError struct {
	Step    string
	Timeout time.Duration

	// Scope is "job" or "step", whichever deadline fired.
	Scope string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout of %s exceeded during %s", e.Scope, e.Timeout, e.Step)
}

// Exit codes for the error kinds a run can end with
const (
	ExitOK        = 0
	ExitStep      = 1
	ExitProvision = 2
	ExitToolchain = 3
	ExitTimeout   = 4
	ExitInternal  = 5
)

// Classify maps a Runner.Run error to its kind and process exit code
func Classify(err error) (kind string, code int) {
	var (
		perr *provision.ProvisionError
		terr *toolchain.ToolchainError
		serr *StepFailure
		tout *TimeoutError
	)
	switch {
	case err == nil:
		return "", ExitOK
	case errors.As(err, &tout):
		return "timeout", ExitTimeout
	case errors.As(err, &perr):
		return "provision", ExitProvision
	case errors.As(err, &terr):
		return "toolchain", ExitToolchain
	case errors.As(err, &serr):
		return "step", ExitStep
	default:
		return "internal", ExitInternal
	}
}
