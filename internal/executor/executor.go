// Package executor provides the per-kind step executors and the dispatch
// registry. Every executor implements an explicit validate/execute pair;
// the validate half runs the security choke point against the step's fully
// resolved inputs before anything else happens.
package executor

import (
	"context"
	"sync"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/internal/security"
	"github.com/NSvoltage/secureflow/pkg/types"
)

// Executor executes steps of one kind.
type Executor interface {
	// Kind returns the step kind this executor handles.
	Kind() types.StepKind

	// ValidateInputs runs the security validator against the resolved
	// step. No executor action may run unless this passed.
	ValidateInputs(step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) error

	// Execute performs the step's action.
	Execute(ctx context.Context, step *types.Step, resolved *ResolvedStep, execCtx *ExecutionContext) (*types.StepResult, error)
}

// ExecutionContext carries the per-execution runtime state shared by all
// executors: resolved workflow inputs, prior step results, and the
// security validator. It is constructed once per execution by the engine.
type ExecutionContext struct {
	ExecutionID string
	Workflow    *types.Workflow
	Inputs      map[string]any
	Validator   *security.Validator
	Bridge      AgentBridge

	mu      sync.RWMutex
	results map[string]*types.StepResult
}

// NewExecutionContext creates an empty context for one execution.
func NewExecutionContext(executionID string, workflow *types.Workflow, inputs map[string]any) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		Workflow:    workflow,
		Inputs:      inputs,
		results:     make(map[string]*types.StepResult),
	}
}

// WithValidator sets the security validator.
func (c *ExecutionContext) WithValidator(v *security.Validator) *ExecutionContext {
	c.Validator = v
	return c
}

// WithBridge sets the delegated-agent bridge.
func (c *ExecutionContext) WithBridge(b AgentBridge) *ExecutionContext {
	c.Bridge = b
	return c
}

// SetResult stores a finished step's result.
func (c *ExecutionContext) SetResult(stepID string, result *types.StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[stepID] = result
}

// Result retrieves a prior step's result.
func (c *ExecutionContext) Result(stepID string) (*types.StepResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[stepID]
	return r, ok
}

// Namespace builds the expression namespace visible to this execution:
// workflow inputs, prior step results, and workflow/execution identity.
// Nothing engine-internal is ever bound.
func (c *ExecutionContext) Namespace() *expression.Namespace {
	c.mu.RLock()
	steps := make(map[string]any, len(c.results))
	for id, result := range c.results {
		entry := map[string]any{
			"status":  string(result.Status),
			"outputs": result.Outputs,
		}
		for k, v := range result.Outputs {
			// Promote common outputs for terse references like
			// steps.build.exit_code.
			if k == "exit_code" || k == "stdout" || k == "stderr" {
				entry[k] = v
			}
		}
		steps[id] = entry
	}
	c.mu.RUnlock()

	ns := expression.NewNamespace().
		Bind(expression.RootInputs, c.Inputs).
		Bind(expression.RootSteps, steps).
		Bind(expression.RootExecution, map[string]any{"id": c.ExecutionID})
	if c.Workflow != nil {
		ns.Bind(expression.RootWorkflow, map[string]any{
			"name":    c.Workflow.Name,
			"version": c.Workflow.Version,
		})
	}
	return ns
}
