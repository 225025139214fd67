package engine

import (
	"github.com/NSvoltage/secureflow/internal/executor"
	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// StepPlan is the simulated outcome of one step in a dry run.
type StepPlan struct {
	StepID    string   `json:"step_id"`
	Kind      string   `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
	// Command is the resolved command for command steps, when resolvable
	// at plan time.
	Command string   `json:"command,omitempty"`
	Issues  []string `json:"issues,omitempty"`
	Valid   bool     `json:"valid"`
}

// DryRunReport is the result of planning a workflow without executing it.
type DryRunReport struct {
	WorkflowName    string     `json:"workflow_name"`
	WorkflowVersion string     `json:"workflow_version"`
	Order           []string   `json:"order"`
	Steps           []StepPlan `json:"steps"`
	Valid           bool       `json:"valid"`
}

// DryRun parses, validates, resolves, and security-checks a workflow
// without running any executor. References to prior step outputs cannot
// be resolved at plan time and are noted, not failed.
func (e *Engine) DryRun(workflow *types.Workflow, supplied map[string]any, secCtx types.SecurityContext) (*DryRunReport, error) {
	bound, err := validateAndBind(workflow, supplied)
	if err != nil {
		return nil, err
	}
	g, err := parser.BuildGraph(workflow)
	if err != nil {
		return nil, err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	// Planning never executes, so the plan_only execution gate does not
	// apply; static command checks still run against the restricted
	// allow-list.
	planCtx := secCtx
	if planCtx.Profile != nil && !planCtx.Profile.AllowExecution {
		p := *planCtx.Profile
		p.AllowExecution = true
		// ProfileByName always copies the allow-list into a non-nil slice,
		// so emptiness is the signal, not nilness.
		if len(p.AllowedCommands) == 0 {
			p.AllowedCommands = types.ProfileByName(types.ProfileRestricted).AllowedCommands
		}
		planCtx.Profile = &p
	}
	validator := e.newValidator(planCtx)
	execCtx := executor.NewExecutionContext("dry-run", workflow, bound).WithValidator(validator)

	report := &DryRunReport{
		WorkflowName:    workflow.Name,
		WorkflowVersion: workflow.Version,
		Order:           order,
		Valid:           true,
	}

	for _, id := range order {
		step := workflow.StepByID(id)
		plan := StepPlan{
			StepID:    id,
			Kind:      string(step.Kind),
			DependsOn: g.Dependencies(id),
			Valid:     true,
		}

		resolved, err := executor.Resolve(step, execCtx.Namespace())
		if err != nil {
			// Step-output references resolve only at run time.
			plan.Issues = append(plan.Issues, "unresolvable at plan time: "+err.Error())
			report.Steps = append(report.Steps, plan)
			continue
		}
		plan.Command = resolved.Command

		exec, err := e.registry.Get(step.Kind)
		if err != nil {
			plan.Valid = false
			plan.Issues = append(plan.Issues, err.Error())
			report.Steps = append(report.Steps, plan)
			report.Valid = false
			continue
		}
		if err := validateForPlan(exec, step, resolved, execCtx); err != nil {
			plan.Valid = false
			plan.Issues = append(plan.Issues, err.Error())
			report.Valid = false
		}
		report.Steps = append(report.Steps, plan)
	}
	return report, nil
}

// validateForPlan runs the security choke point for planning purposes.
// Delegated steps without a configured bridge still plan fine.
func validateForPlan(exec executor.Executor, step *types.Step, resolved *executor.ResolvedStep, execCtx *executor.ExecutionContext) error {
	return exec.ValidateInputs(step, resolved, execCtx)
}
