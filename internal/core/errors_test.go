package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"stepci/internal/provision"
	"stepci/internal/report"
	"stepci/internal/toolchain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind string
		code int
	}{
		{nil, "", ExitOK},
		{&StepFailure{Result: report.RunResult{StepName: "clippy", ExitCode: 1}}, "step", ExitStep},
		{&provision.ProvisionError{Unavailable: []string{"x"}}, "provision", ExitProvision},
		{&toolchain.ToolchainError{Reason: "rustup not found"}, "toolchain", ExitToolchain},
		{fmt.Errorf("wrapped: %w", &TimeoutError{Step: "fmt", Scope: "job"}), "timeout", ExitTimeout},
		{errors.New("docker down"), "internal", ExitInternal},
	}
	for _, tc := range cases {
		kind, code := Classify(tc.err)
		assert.Equal(t, tc.kind, kind)
		assert.Equal(t, tc.code, code)
	}
}

func TestStepFailureMessage(t *testing.T) {
	err := &StepFailure{Result: report.RunResult{StepName: "clippy", ExitCode: 101}}
	assert.Equal(t, "step clippy failed with exit code 101", err.Error())

	cause := errors.New("condition broken")
	wrapped := &StepFailure{Result: report.RunResult{StepName: "doctest"}, Err: cause}
	assert.True(t, errors.Is(wrapped, cause))
}
