package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/NSvoltage/secureflow/internal/expression"
	"github.com/NSvoltage/secureflow/internal/graph"
	"github.com/NSvoltage/secureflow/pkg/types"
)

var stepIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

var inputTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "list": true, "map": true,
}

// Validate checks a decoded workflow and returns the complete list of
// issues. It never executes anything and never stops at the first problem.
func Validate(workflow *types.Workflow) ValidationErrors {
	v := &validator{workflow: workflow}

	v.validateHeader()
	v.validateInputs()
	v.validateSteps()
	v.validateOutputs()

	// Graph construction is meaningful only when every step reference is
	// sound; broken references already have their own issues recorded.
	if !v.errs.HasErrors() {
		v.validateGraph()
	}
	return v.errs
}

type validator struct {
	workflow *types.Workflow
	errs     ValidationErrors
}

func (v *validator) addError(field, message string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: message})
}

func (v *validator) validateHeader() {
	if v.workflow.Name == "" {
		v.addError("name", "workflow name is required")
	}
	if v.workflow.Version == "" {
		v.addError("version", "workflow version is required")
	}
	if len(v.workflow.Steps) == 0 {
		v.addError("steps", "workflow must declare at least one step")
	}
	if v.workflow.Timeout.Std() < 0 {
		v.addError("timeout", "timeout must be positive")
	}
}

func (v *validator) validateInputs() {
	seen := make(map[string]bool)
	for i, input := range v.workflow.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		if input.Name == "" {
			v.addError(field, "input name is required")
			continue
		}
		field = "inputs." + input.Name
		if seen[input.Name] {
			v.addError(field, "duplicate input name")
		}
		seen[input.Name] = true

		if input.Type != "" && !inputTypes[input.Type] {
			v.addError(field, "unknown input type: "+input.Type)
		}
		if input.Required && input.Default != nil {
			v.addError(field, "required inputs cannot declare a default")
		}
		if input.Pattern != "" {
			if _, err := regexp.Compile(input.Pattern); err != nil {
				v.addError(field, "invalid validation pattern")
			}
		}
		if input.Default != nil && input.Type != "" {
			if !defaultMatchesType(input.Default, input.Type) {
				v.addError(field, fmt.Sprintf("default value does not match declared type %s", input.Type))
			}
		}
	}
}

func (v *validator) validateSteps() {
	ids := make(map[string]bool, len(v.workflow.Steps))
	for _, step := range v.workflow.Steps {
		if step.ID != "" {
			if ids[step.ID] {
				v.addError("steps."+step.ID, "duplicate step id")
			}
			ids[step.ID] = true
		}
	}

	for i := range v.workflow.Steps {
		step := &v.workflow.Steps[i]
		field := "steps." + step.ID
		if step.ID == "" {
			v.addError(fmt.Sprintf("steps[%d]", i), "step id is required")
			continue
		}
		if !stepIDPattern.MatchString(step.ID) {
			v.addError(field, "step id must start with a letter and contain only letters, digits, dashes, and underscores")
		}
		if !types.ValidStepKind(step.Kind) {
			v.addError(field, fmt.Sprintf("unknown step kind: %s", step.Kind))
			continue
		}

		for _, dep := range step.DependsOn {
			if dep == step.ID {
				v.addError(field, "step cannot depend on itself")
			} else if !ids[dep] {
				v.addError(field, "depends_on references unknown step: "+dep)
			}
		}

		v.validateRetry(field, step)
		if step.Timeout.Std() < 0 {
			v.addError(field, "timeout must be positive")
		}
		if step.Resources != nil {
			if step.Resources.MemoryMB < 0 {
				v.addError(field, "memory override must be positive")
			}
			if step.Resources.Timeout.Std() < 0 {
				v.addError(field, "timeout override must be positive")
			}
		}
		if step.Cache != nil && step.Cache.TTL.Std() < 0 {
			v.addError(field, "cache ttl must be positive")
		}

		v.validateKindPayload(field, step, ids)
		v.validateTemplatedFields(field, step, ids)
	}
}

func (v *validator) validateRetry(field string, step *types.Step) {
	if step.Retry == nil {
		return
	}
	if step.Retry.MaxAttempts < 1 {
		v.addError(field, "retry max_attempts must be at least 1")
	}
	if step.Retry.Delay.Std() < 0 {
		v.addError(field, "retry delay must be positive")
	}
	if step.Retry.MaxDelay.Std() < 0 {
		v.addError(field, "retry max_delay must be positive")
	}
	if step.Kind == types.StepKindDelegated && !step.Idempotent && step.Retry.MaxAttempts > 1 {
		v.addError(field, "delegated steps are not retried unless marked idempotent")
	}
}

func (v *validator) validateKindPayload(field string, step *types.Step, ids map[string]bool) {
	switch step.Kind {
	case types.StepKindCommand:
		if strings.TrimSpace(step.Command) == "" {
			v.addError(field, "command steps require a command")
		}
	case types.StepKindAssert:
		if step.Condition == "" {
			v.addError(field, "assert steps require a condition")
		}
		switch step.OnFailure {
		case "", "fail", "warn", "skip":
		default:
			v.addError(field, "on_failure must be one of fail, warn, skip")
		}
	case types.StepKindTemplate:
		if step.Template == "" {
			v.addError(field, "template steps require a template body")
		}
		if step.Output == "" {
			v.addError(field, "template steps require an output path")
		}
	case types.StepKindConditional:
		if step.Condition == "" {
			v.addError(field, "conditional steps require a condition")
		}
		if len(step.Then)+len(step.Else) == 0 {
			v.addError(field, "conditional steps must gate at least one step")
		}
		for _, gated := range append(append([]string{}, step.Then...), step.Else...) {
			if gated == step.ID {
				v.addError(field, "conditional step cannot gate itself")
			} else if !ids[gated] {
				v.addError(field, "branch references unknown step: "+gated)
			}
		}
	case types.StepKindDelegated:
		if strings.TrimSpace(step.Prompt) == "" {
			v.addError(field, "delegated steps require a prompt")
		}
	}
}

func (v *validator) validateTemplatedFields(field string, step *types.Step, ids map[string]bool) {
	if step.Condition != "" {
		if ast, err := expression.Parse(step.Condition); err != nil {
			v.addError(field, "condition does not parse: "+err.Error())
		} else {
			v.checkReferences(field, ast.References(), ids)
		}
	}

	for _, text := range templatedFields(step) {
		refs, err := expression.ScanReferences(text)
		if err != nil {
			v.addError(field, "unparsable expression in templated field")
		}
		v.checkReferences(field, refs, ids)
	}
}

func (v *validator) checkReferences(field string, refs []string, ids map[string]bool) {
	for _, ref := range refs {
		parts := strings.Split(ref, ".")
		if parts[0] != expression.RootSteps {
			continue
		}
		if len(parts) < 2 {
			v.addError(field, "step reference is missing a step id")
			continue
		}
		if !ids[parts[1]] {
			v.addError(field, "reference to unknown step: "+parts[1])
		}
	}
}

func (v *validator) validateOutputs() {
	seen := make(map[string]bool)
	for i, output := range v.workflow.Outputs {
		field := fmt.Sprintf("outputs[%d]", i)
		if output.Name == "" {
			v.addError(field, "output name is required")
			continue
		}
		field = "outputs." + output.Name
		if seen[output.Name] {
			v.addError(field, "duplicate output name")
		}
		seen[output.Name] = true

		if output.From == "" {
			v.addError(field, "output source path is required")
			continue
		}
		parts := strings.Split(output.From, ".")
		if parts[0] != expression.RootSteps || len(parts) < 2 {
			v.addError(field, "output source must reference a step, e.g. steps.<id>.outputs.<name>")
			continue
		}
		if v.workflow.StepByID(parts[1]) == nil {
			v.addError(field, "output references unknown step: "+parts[1])
		}
	}
}

func (v *validator) validateGraph() {
	g, err := BuildGraph(v.workflow)
	if err != nil {
		v.addError("steps", err.Error())
		return
	}
	if _, err := g.TopoOrder(); err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			v.addError("steps", fmt.Sprintf("dependency cycle between steps: %s", strings.Join(cycleErr.Members, ", ")))
			return
		}
		v.addError("steps", err.Error())
	}
}

func defaultMatchesType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "list":
		_, ok := value.([]any)
		return ok
	case "map":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
