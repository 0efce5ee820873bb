package core

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"stepci/internal/report"
)

// Outcome names exposed to conditions as steps.<name>.outcome
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// ConditionContext is what a step's `if` can see
type ConditionContext struct {
	Inputs map[string]string
	Env    map[string]string
	Steps  []report.RunResult
}

func (c ConditionContext) env() map[string]any {
	inputs := make(map[string]any, len(c.Inputs))
	for k, v := range c.Inputs {
		inputs[k] = v
	}
	vars := make(map[string]any, len(c.Env))
	for k, v := range c.Env {
		vars[k] = v
	}
	steps := make(map[string]any, len(c.Steps))
	success := true
	for _, r := range c.Steps {
		outcome := OutcomeSuccess
		switch r.Status() {
		case report.StatusFailed:
			outcome = OutcomeFailure
			success = false
		case report.StatusSkipped:
			outcome = OutcomeSkipped
		}
		steps[r.StepName] = map[string]any{
			"outcome":   outcome,
			"exit_code": r.ExitCode,
		}
	}
	return map[string]any{
		"inputs":  inputs,
		"env":     vars,
		"steps":   steps,
		"success": success,
		"failure": !success,
	}
}

// stripWrapper accepts the ${{ ... }} form used by hosted CI files
func stripWrapper(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "${{") && strings.HasSuffix(s, "}}") {
		s = strings.TrimSpace(s[3 : len(s)-2])
	}
	return s
}

// CompileCondition reports syntax errors in an `if` expression
func CompileCondition(cond string) error {
	cond = stripWrapper(cond)
	if cond == "" {
		return nil
	}
	env := ConditionContext{}.env()
	if _, err := expr.Compile(cond, expr.Env(env), expr.AsBool()); err != nil {
		return fmt.Errorf("compile condition %q: %w", cond, err)
	}
	return nil
}

// EvalCondition evaluates cond against c. An empty condition is true.
func EvalCondition(cond string, c ConditionContext) (bool, error) {
	cond = stripWrapper(cond)
	if cond == "" {
		return true, nil
	}
	env := c.env()
	program, err := expr.Compile(cond, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", cond, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", cond, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", cond, output)
	}
	return result, nil
}
