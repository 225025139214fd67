package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// maxRenderedTemplate bounds the size of a rendered template file.
const maxRenderedTemplate = 4 << 20

// TemplateExecutor renders an interpolated template body to a file inside
// the workspace root.
type TemplateExecutor struct{}

// NewTemplateExecutor creates a TemplateExecutor.
func NewTemplateExecutor() *TemplateExecutor {
	return &TemplateExecutor{}
}

// Kind returns the handled step kind.
func (e *TemplateExecutor) Kind() types.StepKind {
	return types.StepKindTemplate
}

// ValidateInputs checks the raw template body and the resolved output path.
// The body is validated before interpolation so a forbidden reference is
// rejected rather than rendered.
func (e *TemplateExecutor) ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error {
	if err := execCtx.Validator.ValidateTemplate(execCtx.ExecutionID, step.ID, step.Template); err != nil {
		return err
	}
	return execCtx.Validator.ValidatePath(execCtx.ExecutionID, step.ID, resolved.Output)
}

// Execute renders the template and writes the output file.
func (e *TemplateExecutor) Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error) {
	result := types.NewStepResult(step.ID)
	defer result.Finish()

	rendered, err := expression.Interpolate(step.Template, execCtx.Namespace())
	if err != nil {
		execErr := NewExecutionError(step.ID, "rendering template", err)
		result.Fail(execErr)
		return result, execErr
	}
	if len(rendered) > maxRenderedTemplate {
		execErr := NewExecutionError(step.ID, fmt.Sprintf("rendered template exceeds %d bytes", maxRenderedTemplate), nil)
		result.Fail(execErr)
		return result, execErr
	}

	target := filepath.Join(execCtx.Validator.WorkspaceRoot(), filepath.Clean(resolved.Output))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		execErr := NewExecutionError(step.ID, "creating output directory", err)
		result.Fail(execErr)
		return result, execErr
	}
	if err := os.WriteFile(target, []byte(rendered), 0o644); err != nil {
		execErr := NewExecutionError(step.ID, "writing output file", err)
		result.Fail(execErr)
		return result, execErr
	}

	result.Outputs["path"] = resolved.Output
	result.Outputs["bytes"] = len(rendered)
	return result, nil
}
