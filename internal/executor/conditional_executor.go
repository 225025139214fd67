package executor

import (
	"context"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// ConditionalExecutor evaluates a branch condition and records which of the
// step's then/else lists is taken. The scheduler skips (and transitively
// skips the dependents of) every step on the untaken branch.
type ConditionalExecutor struct{}

// NewConditionalExecutor creates a ConditionalExecutor.
func NewConditionalExecutor() *ConditionalExecutor {
	return &ConditionalExecutor{}
}

// Kind returns the handled step kind.
func (e *ConditionalExecutor) Kind() types.StepKind {
	return types.StepKindConditional
}

// ValidateInputs checks the condition through the expression validator.
func (e *ConditionalExecutor) ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error {
	return execCtx.Validator.ValidateExpression(execCtx.ExecutionID, step.ID, step.Condition)
}

// Execute evaluates the branch condition.
func (e *ConditionalExecutor) Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error) {
	result := types.NewStepResult(step.ID)
	defer result.Finish()

	ok, err := expression.Evaluate(step.Condition, execCtx.Namespace())
	if err != nil {
		execErr := NewExecutionError(step.ID, "evaluating condition", err)
		result.Fail(execErr)
		return result, execErr
	}

	branch := "else"
	taken, skipped := step.Else, step.Then
	if ok {
		branch = "then"
		taken, skipped = step.Then, step.Else
	}
	result.Outputs["branch"] = branch
	result.Outputs["taken"] = stringsToAny(taken)
	result.Outputs["skipped"] = stringsToAny(skipped)
	return result, nil
}

// TakenBranch reads the chosen branch lists back out of a conditional
// step's result.
func TakenBranch(result *types.StepResult) (taken, skipped []string) {
	return anyToStrings(result.Outputs["taken"]), anyToStrings(result.Outputs["skipped"])
}

// Outputs round-trip through JSON for caching and persistence, so branch
// lists are stored as []any.
func stringsToAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func anyToStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
