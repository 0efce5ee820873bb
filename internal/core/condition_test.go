package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepci/internal/report"
)

func TestEvalCondition(t *testing.T) {
	ctx := ConditionContext{
		Inputs: map[string]string{"packages": "", "features": "all"},
		Env:    map[string]string{"CI": "true"},
		Steps: []report.RunResult{
			{StepName: "fmt"},
			report.Skip("clippy", "", report.SkipCondition),
		},
	}

	cases := []struct {
		cond string
		want bool
	}{
		{"", true},
		{"true", true},
		{"inputs.packages != ''", false},
		{"${{ inputs.features == 'all' }}", true},
		{"env.CI == 'true' && success", true},
		{"failure", false},
		{"steps.fmt.outcome == 'success'", true},
		{"steps.clippy.outcome == 'skipped'", true},
		{"steps.fmt.exit_code == 0", true},
	}
	for _, tc := range cases {
		got, err := EvalCondition(tc.cond, ctx)
		require.NoError(t, err, tc.cond)
		assert.Equal(t, tc.want, got, tc.cond)
	}
}

func TestEvalConditionSeesFailure(t *testing.T) {
	ctx := ConditionContext{Steps: []report.RunResult{{StepName: "fmt", ExitCode: 1}}}

	got, err := EvalCondition("failure && steps.fmt.outcome == 'failure'", ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalConditionErrors(t *testing.T) {
	_, err := EvalCondition("inputs.x ==", ConditionContext{})
	assert.Error(t, err)

	_, err = EvalCondition("'not a bool'", ConditionContext{})
	assert.Error(t, err)

	assert.Error(t, CompileCondition("unknown_name == 1"))
	assert.NoError(t, CompileCondition("${{ inputs.packages == '' }}"))
}
