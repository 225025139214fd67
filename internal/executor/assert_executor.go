package executor

import (
	"context"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/logger"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// AssertExecutor evaluates a boolean condition against prior step results.
// A false condition fails, warns, or skips depending on the step's
// on_failure policy. Assertion failures are never retried.
type AssertExecutor struct{}

// NewAssertExecutor creates an AssertExecutor.
func NewAssertExecutor() *AssertExecutor {
	return &AssertExecutor{}
}

// Kind returns the handled step kind.
func (e *AssertExecutor) Kind() types.StepKind {
	return types.StepKindAssert
}

// ValidateInputs checks the condition through the expression validator.
func (e *AssertExecutor) ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error {
	return execCtx.Validator.ValidateExpression(execCtx.ExecutionID, step.ID, step.Condition)
}

// Execute evaluates the assertion.
func (e *AssertExecutor) Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error) {
	result := types.NewStepResult(step.ID)
	defer result.Finish()

	ok, err := expression.Evaluate(step.Condition, execCtx.Namespace())
	if err != nil {
		execErr := NewExecutionError(step.ID, "evaluating assertion", err)
		result.Fail(execErr)
		return result, execErr
	}

	result.Outputs["passed"] = ok
	if ok {
		return result, nil
	}

	message := resolved.Message
	if message == "" {
		message = "assertion failed: " + step.Condition
	}
	result.Outputs["message"] = message

	switch step.OnFailure {
	case "warn":
		logger.Warn("step %s: %s", step.ID, message)
		return result, nil
	case "skip":
		result.Skip()
		return result, nil
	default:
		assertErr := NewAssertionError(step.ID, message)
		result.Fail(assertErr)
		return result, assertErr
	}
}
